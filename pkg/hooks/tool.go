package hooks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/sessionlog"
)

const (
	editPreviewLen    = 100
	commandPreviewLen = 200
	blockedPreviewLen = 100
)

var safeCommands = compileAll(
	`^ls\b`, `^pwd$`, `^echo\s`, `^cat\s`, `^head\b`, `^tail\b`, `^wc\b`,
	`^find\b`, `^which\b`, `^type\b`, `^file\b`, `^stat\b`,
	`^git\s+status`, `^git\s+log`, `^git\s+diff`, `^git\s+branch`, `^git\s+show`,
	`^git\s+remote\s+-v`,
)

var blockedCommands = compileAll(
	`sudo\s+rm\s+-rf\s+/`,
	`>\s*/dev/sda`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Decision is the permission verdict for a shell command.
type Decision int

const (
	Ask Decision = iota
	Allow
	Block
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Block:
		return "block"
	default:
		return "ask"
	}
}

// Classify decides whether a shell command runs without a prompt, is refused,
// or needs the user's confirmation. Block patterns win over allow patterns.
func Classify(command string) Decision {
	command = strings.TrimSpace(command)
	switch {
	case matchAny(blockedCommands, command):
		return Block
	case matchAny(safeCommands, command):
		return Allow
	default:
		return Ask
	}
}

// preToolBash gates shell commands. Unparseable input and other tools pass.
func (r *Runner) preToolBash(ctx context.Context, in *input) (int, error) {
	if !in.valid || in.ToolName != "Bash" {
		return ExitOK, nil
	}
	command := strings.TrimSpace(in.ToolInput.Command)
	if command == "" {
		return ExitOK, nil
	}

	switch Classify(command) {
	case Block:
		fmt.Fprintf(r.stderr, "Blocked: %s\n", memory.Truncate(command, blockedPreviewLen))
		r.log.InfoContext(ctx, "blocked shell command", "command", memory.Truncate(command, blockedPreviewLen))
		return ExitBlock, nil
	case Allow:
		return ExitOK, nil
	default:
		if d := strings.TrimSpace(in.ToolInput.Description); d != "" {
			fmt.Fprintf(r.stderr, "Command: %s\n", d)
		}
		fmt.Fprintf(r.stderr, "$ %s\n", memory.Truncate(command, commandPreviewLen))
		return ExitAsk, nil
	}
}

// postTool appends an event for file edits, writes and shell commands to
// today's session log. Failures are logged and never fail the hook.
func (r *Runner) postTool(ctx context.Context, in *input) (int, error) {
	if !in.valid {
		return ExitOK, nil
	}

	ev, ok := toolEvent(in)
	if !ok {
		return ExitOK, nil
	}

	if err := r.store.Initialize(); err != nil {
		r.log.ErrorContext(ctx, "failed to initialise memory directory", "error", err)
		return ExitOK, nil
	}
	if err := r.sessions.Append(ctx, ev); err != nil {
		r.log.ErrorContext(ctx, "failed to log tool event", "tool", in.ToolName, "error", err)
	}
	return ExitOK, nil
}

func toolEvent(in *input) (sessionlog.Event, bool) {
	ti := in.ToolInput
	switch in.ToolName {
	case "Edit":
		return sessionlog.Event{
			Type:             sessionlog.TypeEdit,
			File:             ti.FilePath,
			OldStringPreview: memory.Truncate(ti.OldString, editPreviewLen),
			NewStringPreview: memory.Truncate(ti.NewString, editPreviewLen),
		}, true
	case "MultiEdit":
		return sessionlog.Event{
			Type:      sessionlog.TypeMultiEdit,
			File:      ti.FilePath,
			EditCount: len(ti.Edits),
		}, true
	case "Write":
		return sessionlog.Event{
			Type:          sessionlog.TypeWrite,
			File:          ti.FilePath,
			ContentLength: len(ti.Content),
		}, true
	case "Bash":
		return sessionlog.Event{
			Type:           sessionlog.TypeBash,
			CommandPreview: memory.Truncate(ti.Command, commandPreviewLen),
		}, true
	default:
		return sessionlog.Event{}, false
	}
}
