package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/hookwarden/hookwarden/internal/config"
	"github.com/hookwarden/hookwarden/internal/event"
	"github.com/hookwarden/hookwarden/internal/logger"
	"github.com/hookwarden/hookwarden/internal/rules"
	"github.com/hookwarden/hookwarden/internal/types"
)

// Version is set at build time via ldflags: -X main.Version=x.y.z
var Version = "1.0.0"

var log = logger.New("main")

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hook":
			runHook(os.Args[2:])
			return
		case "validate":
			runValidate(os.Args[2:])
			return
		case "explain":
			runExplain(os.Args[2:])
			return
		case "watch":
			runWatch(os.Args[2:])
			return
		case "list-rules":
			runListRules(os.Args[2:])
			return
		case "help", "-h", "--help":
			printUsage()
			return
		case "version", "-v", "--version":
			fmt.Printf("hookwarden version %s\n", Version)
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
			printUsage()
			os.Exit(2)
		}
	}

	// No subcommand: the agent invokes the binary bare as its hook
	// handler, so hook mode is the default.
	runHook(nil)
}

// settingsFlags registers the flags shared by every subcommand on fs and
// returns a closure that loads settings with those overrides applied.
func settingsFlags(fs *flag.FlagSet) func() (*config.Settings, error) {
	configPath := fs.String("config", config.DefaultSettingsPath(), "Path to settings file")
	rulesDir := fs.String("rules-dir", "", "Rules directory (overrides settings)")
	auditLog := fs.String("audit-log", "", "Audit log path (overrides settings)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	noColor := fs.Bool("no-color", false, "Disable colored log output")

	return func() (*config.Settings, error) {
		s, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		if *rulesDir != "" {
			s.RulesDir = *rulesDir
		}
		if *auditLog != "" {
			s.AuditLog = *auditLog
		}
		if *logLevel != "" {
			s.LogLevel = *logLevel
		}
		if *noColor {
			s.NoColor = true
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}

		logger.SetGlobalLevelFromString(s.LogLevel)
		logger.SetColored(!s.NoColor)
		return s, nil
	}
}

// runHook is the hook protocol: one JSON event on stdin, one JSON
// decision on stdout, exit 0. The agent treats a non-zero exit or garbage
// output as a hook failure, so every internal error is folded into the
// decision via the fail policy instead of crashing.
func runHook(args []string) {
	fs := flag.NewFlagSet("hook", flag.ExitOnError)
	load := settingsFlags(fs)
	_ = fs.Parse(args)

	settings, err := load()
	if err != nil {
		// Settings are broken; the conservative default applies.
		log.Error("Settings error: %v", err)
		emit(os.Stdout, rules.BlockDecision(fmt.Sprintf("hookwarden configuration error: %v", err)))
		return
	}

	eng, err := rules.New(settings)
	if err != nil {
		emit(os.Stdout, failDecision(settings, fmt.Sprintf("rule load error: %v", err)))
		return
	}

	emit(os.Stdout, decide(eng, settings, os.Stdin))
}

// decide runs one event from in through the engine, degrading per the
// fail policy when the event cannot be decoded.
func decide(eng *rules.Engine, settings *config.Settings, in io.Reader) rules.Decision {
	e, err := event.Decode(in)
	if err != nil {
		return failDecision(settings, fmt.Sprintf("invalid hook event: %v", err))
	}
	return eng.Evaluate(context.Background(), e)
}

func failDecision(settings *config.Settings, reason string) rules.Decision {
	if settings.FailPolicy == types.FailOpen {
		log.Warn("Continuing despite error (fail open): %s", reason)
		return rules.ContinueDecision()
	}
	return rules.BlockDecision(reason)
}

func emit(w io.Writer, d rules.Decision) {
	if err := json.NewEncoder(w).Encode(d); err != nil {
		log.Error("Failed to write decision: %v", err)
	}
}

// runValidate checks settings and every rule file strictly, reporting all
// problems instead of the first.
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	load := settingsFlags(fs)
	_ = fs.Parse(args)

	// Explicit file arguments bypass the rules directory.
	if fs.NArg() > 0 {
		failed := false
		for _, path := range fs.Args() {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
				continue
			}
			errs := rules.ValidateBytes(data)
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, e)
			}
			if len(errs) > 0 {
				failed = true
			} else {
				fmt.Printf("%s: OK\n", path)
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	settings, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	loaded, errs := rules.NewLoader(settings.RulesDir, nil).LoadStrict()
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "%v\n", e)
	}
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "\n%d problem(s) found\n", len(errs))
		os.Exit(1)
	}
	fmt.Printf("%d rules valid in %s\n", len(loaded), settings.RulesDir)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7"))
	blockStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E")).Bold(true)
	allowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A")).Bold(true)
)

// runExplain reads an event from stdin and shows which rules match and
// what the engine would decide, without writing the hook protocol output.
func runExplain(args []string) {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	load := settingsFlags(fs)
	_ = fs.Parse(args)

	settings, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	// Explaining should never append to the real audit trail.
	settings.AuditLog = ""

	eng, err := rules.New(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load rules: %v\n", err)
		os.Exit(1)
	}

	e, err := event.Decode(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read event from stdin: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s %s", headerStyle.Render("Event:"), e.Kind)
	if e.ToolName != "" {
		fmt.Printf(" (%s)", e.ToolName)
	}
	fmt.Println()

	d := eng.Evaluate(context.Background(), e)

	matched := eng.MatchedRules(e)
	if len(matched) == 0 {
		fmt.Println("\nNo rules match this event.")
	} else {
		fmt.Printf("\n%s\n", headerStyle.Render("Matching rules:"))
		for _, cr := range matched {
			r := &cr.Rule
			fmt.Printf("  %s  mode=%s priority=%d hits=%d  (%s)\n",
				nameStyle.Render(r.Name), r.GetMode(), r.Priority, r.HitCount, r.FilePath)
		}
	}

	fmt.Println()
	if d.Continue {
		fmt.Printf("%s %s\n", headerStyle.Render("Decision:"), allowStyle.Render("continue"))
		if d.Context != "" {
			fmt.Printf("%s\n%s\n", headerStyle.Render("Injected context:"), d.Context)
		}
	} else {
		fmt.Printf("%s %s\n", headerStyle.Render("Decision:"), blockStyle.Render("block"))
		fmt.Printf("%s %s\n", headerStyle.Render("Reason:"), d.Reason)
	}
}

// runWatch keeps the engine resident with hot reload, for iterating on
// rule files: edit a rule, save, pipe events in as JSONL and read the
// decisions back. The pattern cache persists across events and is cleared
// on each reload.
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	load := settingsFlags(fs)
	_ = fs.Parse(args)

	settings, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	eng, err := rules.New(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load rules: %v\n", err)
		os.Exit(1)
	}

	watcher, err := rules.NewWatcher(eng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create watcher: %v\n", err)
		os.Exit(1)
	}
	if err := watcher.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start watcher: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Watching %s (%d rules loaded). JSONL events on stdin; Ctrl-C to stop.\n",
		settings.RulesDir, eng.RuleCount())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	serveEvents(eng, os.Stdin, os.Stdout, sig)

	if err := watcher.Stop(); err != nil {
		log.Warn("Watcher shutdown: %v", err)
	}
}

// serveEvents evaluates one JSONL event per input line, writing one
// decision line per event. Returns on end of input or a signal. Malformed
// lines are logged and skipped rather than ending the session.
func serveEvents(eng *rules.Engine, in io.Reader, out io.Writer, sig <-chan os.Signal) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
		for sc.Scan() {
			lines <- sc.Text()
		}
		if err := sc.Err(); err != nil {
			log.Warn("Reading events: %v", err)
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			e, err := event.Decode(strings.NewReader(line))
			if err != nil {
				log.Warn("Skipping malformed event: %v", err)
				continue
			}
			emit(out, eng.Evaluate(context.Background(), e))
		case <-sig:
			return
		}
	}
}

// runListRules prints the loaded rule set in file order.
func runListRules(args []string) {
	fs := flag.NewFlagSet("list-rules", flag.ExitOnError)
	load := settingsFlags(fs)
	asJSON := fs.Bool("json", false, "Output as JSON")
	_ = fs.Parse(args)

	settings, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	eng, err := rules.New(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load rules: %v\n", err)
		os.Exit(1)
	}

	loaded := eng.Rules()

	if *asJSON {
		out := make([]rules.Rule, len(loaded))
		for i := range loaded {
			out[i] = loaded[i].Rule
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(loaded) == 0 {
		fmt.Printf("No rules loaded from %s\n", settings.RulesDir)
		return
	}
	for i := range loaded {
		r := &loaded[i].Rule
		state := ""
		if !r.IsEnabled() {
			state = "  [disabled]"
		}
		fmt.Printf("%s  mode=%s priority=%d  (%s)%s\n",
			nameStyle.Render(r.Name), r.GetMode(), r.Priority, r.FilePath, state)
	}
}

func printUsage() {
	fmt.Println(`hookwarden - Policy enforcement for AI coding agent hooks

Usage:
  hookwarden [hook] [flags]          Evaluate one hook event (JSON on stdin,
                                     decision JSON on stdout)
  hookwarden validate [file.yaml...] Check rule files strictly; no arguments
                                     validates the whole rules directory
  hookwarden explain [flags]         Show which rules match an event on stdin
                                     and what would be decided
  hookwarden watch [flags]           Stay resident with hot reload; evaluate
                                     JSONL events from stdin
  hookwarden list-rules [--json]     List the loaded rules

  hookwarden help                    Show this help message
  hookwarden version                 Show version

Flags (all subcommands):
  --config string      Path to settings file (default ~/.hookwarden/config.yaml)
  --rules-dir string   Rules directory (overrides settings)
  --audit-log string   Audit log path (overrides settings)
  --log-level string   Log level: debug, info, warn, error
  --no-color           Disable colored log output

Environment Variables:
  HOOKWARDEN_RULES_DIR, HOOKWARDEN_AUDIT_LOG, HOOKWARDEN_FAIL_POLICY,
  HOOKWARDEN_SCRIPT_TIMEOUT_SECS, HOOKWARDEN_LOG_LEVEL override settings.

Examples:
  hookwarden validate ~/.hookwarden/rules.d/10-git.yaml
  hookwarden explain < event.json
  hookwarden list-rules --json`)
}
