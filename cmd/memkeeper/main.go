// Command memkeeper keeps the two-tier memory of a coding assistant: project
// records under <project>/.memory and global records in a remote service.
// The host runs "memkeeper hook <name>" at each lifecycle event.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/goclaw/memkeeper/pkg/hooks"
	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/version"
)

// Exit codes of the maintenance commands.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// globalOptions are the flags accepted before the command name.
type globalOptions struct {
	configPath string
	projectDir string
	logLevel   string
	debug      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args and executes one command. It returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("memkeeper", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts globalOptions
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.projectDir, "project", "", "Project directory (defaults to the working directory)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override log level")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.Usage = func() { printHelp(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printHelp(fs)
		return exitUsage
	}
	command, rest := rest[0], rest[1:]

	switch command {
	case "version":
		fmt.Fprint(stdout, version.String())
		return exitOK
	case "help":
		printHelp(fs)
		return exitOK
	case "hook", "sync", "prune", "serve", "config":
	default:
		fmt.Fprintf(stderr, "memkeeper: unknown command %q\n", command)
		printHelp(fs)
		return exitUsage
	}

	if command == "hook" && len(rest) != 1 {
		fmt.Fprintf(stderr, "usage: memkeeper hook <%s>\n", joinNames(hooks.Names()))
		return exitUsage
	}

	a, err := newApp(ctx, opts, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "memkeeper: %v\n", err)
		// hooks must never block the host on a configuration problem
		if command == "hook" {
			return exitOK
		}
		return exitFailure
	}
	defer a.close()

	ctx, span := otel.Tracer("memkeeper.cli").Start(ctx, "memkeeper "+command)
	defer span.End()
	span.SetAttributes(attribute.String("memkeeper.project", a.projectDir))

	var code int
	switch command {
	case "hook":
		span.SetAttributes(attribute.String("memkeeper.hook", rest[0]))
		code = a.runHook(ctx, rest[0])
	case "sync":
		code = a.runSync(ctx)
	case "prune":
		code = a.runPrune(ctx)
	case "serve":
		code = a.runServe(ctx)
	case "config":
		fmt.Fprintln(stdout, a.cfg.String())
	}
	if code != exitOK {
		span.SetStatus(otelcodes.Error, fmt.Sprintf("exit %d", code))
	}
	return code
}

func (a *app) runHook(ctx context.Context, name string) int {
	code, err := a.runner.Run(ctx, name)
	if err != nil {
		fmt.Fprintf(a.stderr, "memkeeper: %v\n", err)
		return exitUsage
	}
	return code
}

func (a *app) runSync(ctx context.Context) int {
	res, err := a.runner.Sync(ctx)
	if errors.Is(err, hooks.ErrNoOutbox) {
		fmt.Fprintln(a.stderr, "memkeeper: outbox is disabled, nothing to sync")
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "Synced %d queued memories, skipped %d duplicates, %d remaining\n",
		res.Flushed, res.Duplicates, res.Remaining)
	if res.DeadLettered > 0 {
		fmt.Fprintf(a.stdout, "Gave up on %d queued memories, kept in the outbox dead letters\n", res.DeadLettered)
	}
	if err != nil {
		a.log.ErrorContext(ctx, "sync failed", "remaining", res.Remaining, "error", err)
		fmt.Fprintf(a.stderr, "memkeeper: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func (a *app) runPrune(ctx context.Context) int {
	evicted, err := a.runner.Prune(ctx)
	for _, c := range memory.Categories() {
		fmt.Fprintf(a.stdout, "%s: evicted %d\n", c.Dir(), evicted[c])
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "memkeeper: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func joinNames(names []string) string {
	return strings.Join(names, "|")
}

func printHelp(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "memkeeper - two-tier memory for coding sessions\n\n")
	fmt.Fprintf(w, "Usage: memkeeper [options] <command> [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  hook <name>   Run a lifecycle hook (%s)\n", joinNames(hooks.Names()))
	fmt.Fprintf(w, "  sync          Replay global memories queued while the remote was down\n")
	fmt.Fprintf(w, "  prune         Enforce the per-category retention cap\n")
	fmt.Fprintf(w, "  serve         Serve the read-only inspection API\n")
	fmt.Fprintf(w, "  config        Print the effective configuration\n")
	fmt.Fprintf(w, "  version       Print version information\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  memkeeper hook session-start < input.json\n")
	fmt.Fprintf(w, "  memkeeper -config memkeeper.yaml sync\n")
	fmt.Fprintf(w, "  memkeeper -log-level debug serve\n")
}
