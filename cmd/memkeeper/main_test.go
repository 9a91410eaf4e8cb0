package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goclaw/memkeeper/config"
	"github.com/goclaw/memkeeper/pkg/version"
)

// isolate points every config source at a fresh directory and returns a
// project directory inside it.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("MEMKEEPER_LOG_OUTPUT", "discard")
	t.Setenv("MEMKEEPER_REMOTE_BACKEND", "none")

	project := filepath.Join(home, "project")
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}
	return project
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runCLI(t, "", "version")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
	if out != version.String() {
		t.Errorf("output = %q, want %q", out, version.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	project := isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"hook without name", []string{"-project", project, "hook"}},
		{"unknown flag", []string{"-nope", "version"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, "", tt.args...)
			if code != exitUsage {
				t.Errorf("exit code = %d, want %d", code, exitUsage)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	code, _, stderr := runCLI(t, "", "-help")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
	for _, want := range []string{"hook <name>", "session-end-save", "-config"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("help does not mention %q", want)
		}
	}
}

func TestRunUnknownHook(t *testing.T) {
	project := isolate(t)

	code, _, stderr := runCLI(t, "{}", "-project", project, "hook", "nope")
	if code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "nope") {
		t.Errorf("stderr = %q, want the hook name", stderr)
	}
}

func TestRunSessionEndSave(t *testing.T) {
	project := isolate(t)

	input := `{"memories":[
		{"content":"Use WAL mode for SQLite","tier":"project","category":"decision","reason":"concurrent readers"},
		{"content":"Prefer table-driven tests","tier":"global","category":"pattern"}
	]}`
	code, out, _ := runCLI(t, input, "-project", project, "hook", "session-end-save")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}

	want := "<memory-save-summary>\n" +
		"Saved 0 global memories to remote memory\n" +
		"Saved 1 project memories to .memory/\n" +
		"Stored 1 global memories locally (remote unavailable)\n" +
		"</memory-save-summary>\n"
	if out != want {
		t.Errorf("summary = %q, want %q", out, want)
	}

	for _, dir := range []string{"decisions", "patterns"} {
		entries, err := os.ReadDir(filepath.Join(project, ".memory", dir))
		if err != nil {
			t.Fatalf("read %s: %v", dir, err)
		}
		if len(entries) != 1 {
			t.Errorf("%s holds %d files, want 1", dir, len(entries))
		}
	}

	code, out, _ = runCLI(t, "{}", "-project", project, "hook", "session-start")
	if code != exitOK {
		t.Fatalf("session-start exit code = %d", code)
	}
	if !strings.Contains(out, "Use WAL mode for SQLite") {
		t.Errorf("session-start output = %q, want the saved decision", out)
	}
}

func TestRunPreToolBash(t *testing.T) {
	project := isolate(t)

	code, _, stderr := runCLI(t, `{"tool_name":"Bash","tool_input":{"command":"sudo rm -rf /"}}`,
		"-project", project, "hook", "pre-tool-bash")
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.HasPrefix(stderr, "Blocked: ") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunConfigErrorDoesNotBlockHooks(t *testing.T) {
	project := isolate(t)
	t.Setenv("MEMKEEPER_REMOTE_BACKEND", "carrier-pigeon")

	code, _, stderr := runCLI(t, "{}", "-project", project, "hook", "session-start")
	if code != exitOK {
		t.Errorf("hook exit code = %d, want %d", code, exitOK)
	}
	if !strings.Contains(stderr, "load configuration") {
		t.Errorf("stderr = %q", stderr)
	}

	code, _, _ = runCLI(t, "", "-project", project, "prune")
	if code != exitFailure {
		t.Errorf("prune exit code = %d, want %d", code, exitFailure)
	}
}

func TestRunSyncAndPrune(t *testing.T) {
	project := isolate(t)

	code, out, _ := runCLI(t, "", "-project", project, "sync")
	if code != exitOK {
		t.Fatalf("sync exit code = %d, want %d", code, exitOK)
	}
	if out != "Synced 0 queued memories, skipped 0 duplicates, 0 remaining\n" {
		t.Errorf("sync output = %q", out)
	}

	code, out, _ = runCLI(t, "", "-project", project, "prune")
	if code != exitOK {
		t.Fatalf("prune exit code = %d, want %d", code, exitOK)
	}
	if out != "decisions: evicted 0\npatterns: evicted 0\nlearnings: evicted 0\n" {
		t.Errorf("prune output = %q", out)
	}
}

func TestRunSyncWithoutOutbox(t *testing.T) {
	project := isolate(t)
	t.Setenv("MEMKEEPER_OUTBOX_ENABLED", "false")

	code, _, stderr := runCLI(t, "", "-project", project, "sync")
	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr, "outbox is disabled") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunConfigCommand(t *testing.T) {
	project := isolate(t)
	root := filepath.Join(t.TempDir(), "mem")
	t.Setenv("MEMKEEPER_MEMORY_ROOT", root)

	code, out, _ := runCLI(t, "", "-project", project, "-log-level", "warn", "config")
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
	for _, want := range []string{"Remote: none", fmt.Sprintf("Root: %q", root)} {
		if !strings.Contains(out, want) {
			t.Errorf("config output %q does not contain %q", out, want)
		}
	}
}

func TestBuildOverrides(t *testing.T) {
	got := buildOverrides(globalOptions{logLevel: "warn"})
	if got["log.level"] != "warn" {
		t.Errorf("log.level = %v, want warn", got["log.level"])
	}

	got = buildOverrides(globalOptions{logLevel: "warn", debug: true})
	if got["log.level"] != "debug" || got["app.debug"] != true {
		t.Errorf("debug overrides = %v", got)
	}

	if got := buildOverrides(globalOptions{}); len(got) != 0 {
		t.Errorf("empty options produced overrides %v", got)
	}
}

func TestRemoteName(t *testing.T) {
	tests := []struct {
		cfg  config.RemoteConfig
		want string
	}{
		{config.RemoteConfig{Backend: "none"}, "remote memory"},
		{config.RemoteConfig{Backend: "http", BaseURL: "http://letta:8283/"}, "archival memory (http://letta:8283)"},
		{config.RemoteConfig{Backend: "postgres"}, "archival memory (postgres)"},
	}
	for _, tt := range tests {
		if got := remoteName(tt.cfg); got != tt.want {
			t.Errorf("remoteName(%q) = %q, want %q", tt.cfg.Backend, got, tt.want)
		}
	}
}

func TestServe(t *testing.T) {
	project := isolate(t)

	var stdout, stderr bytes.Buffer
	a, err := newApp(context.Background(), globalOptions{projectDir: project}, strings.NewReader(""), &stdout, &stderr)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("GET /health: %v", err)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Errorf("decode health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
