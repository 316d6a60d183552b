package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/stackwatch/stackwatch/internal/config"
	xerrors "github.com/stackwatch/stackwatch/internal/errors"
	"github.com/stackwatch/stackwatch/internal/profiler"
)

// Shell is the interactive control surface. It owns the single profiling
// session and dispatches operator commands to it while the sampling loop
// runs concurrently.
type Shell struct {
	cfg     *config.Config
	logger  zerolog.Logger
	session *profiler.Session
	out     io.Writer
}

// NewShell creates a shell around a fresh idle session.
func NewShell(cfg *config.Config, logger zerolog.Logger) *Shell {
	session := profiler.NewSession(profiler.Options{
		SampleTimeout:    cfg.Profiler.SampleTimeout,
		FailureThreshold: cfg.Profiler.FailureThreshold,
		DebuggerPath:     cfg.Debugger.Path,
		AttachRetries:    cfg.Debugger.AttachRetries,
		Logger:           logger,
	})
	return &Shell{
		cfg:     cfg,
		logger:  logger.With().Str("component", "shell").Logger(),
		session: session,
		out:     os.Stdout,
	}
}

// Run starts the REPL. When initial is non-empty it is executed as a
// first command before the prompt, so
// `stackwatch start -p 123 -f work` drops straight into a running session.
func (sh *Shell) Run(initial []string) error {
	if sh.cfg.HistoryFile != "" {
		// Best effort; history is a convenience, not a requirement.
		_ = os.MkdirAll(filepath.Dir(sh.cfg.HistoryFile), 0o750)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "stackwatch> ",
		HistoryFile:     sh.cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer xerrors.DeferClose(sh.logger, rl, "failed to close readline")

	fmt.Fprintln(sh.out, "stackwatch interactive shell. Type 'help' for commands, 'exit' to quit.")
	fmt.Fprintln(sh.out)

	if len(initial) > 0 {
		if exit := sh.Execute(initial); exit {
			return nil
		}
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C: drop the current line, keep the shell (and any
				// running session) alive.
				continue
			} else if err == io.EOF {
				fmt.Fprintln(sh.out)
				break
			}
			sh.shutdown()
			return fmt.Errorf("readline error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if exit := sh.Execute(strings.Fields(line)); exit {
			return nil
		}
	}

	sh.shutdown()
	return nil
}

// Execute dispatches one operator command. Returns true when the shell
// should terminate. Command failures are printed, never propagated; no
// operator mistake may take the control surface down.
func (sh *Shell) Execute(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "start":
		sh.cmdStart(args[1:])
	case "stop":
		sh.cmdStop()
	case "add":
		sh.cmdAdd(args[1:])
	case "remove":
		sh.cmdRemove(args[1:])
	case "interval":
		sh.cmdInterval(args[1:])
	case "results":
		sh.cmdResults()
	case "status":
		sh.cmdStatus()
	case "ps":
		sh.cmdPs()
	case "help":
		sh.printHelp()
	case "exit", "quit":
		sh.shutdown()
		fmt.Fprintln(sh.out, "Bye.")
		return true
	default:
		fmt.Fprintf(sh.out, "Unknown command %q. Type 'help' for commands.\n", args[0])
	}
	return false
}

// shutdown stops an active session before the shell exits.
func (sh *Shell) shutdown() {
	status := sh.session.CurrentStatus()
	if status.State != profiler.StateRunning {
		return
	}

	fmt.Fprintln(sh.out, "Stopping active session...")
	sh.session.Stop()
	sh.printResults()
}

func (sh *Shell) printHelp() {
	fmt.Fprint(sh.out, `Commands:
  start -p <pid> -f <func>... [-t <seconds>]   Start profiling a process
  add -f <func>...                             Track more functions
  remove -f <func>...                          Stop tracking functions
  interval -t <seconds>                        Change the sampling interval
  results                                      Show current estimates
  status                                       Show session state
  stop                                         Stop the session and show results
  ps                                           List candidate Python processes
  help                                         Show this help
  exit                                         Leave the shell
`)
}
