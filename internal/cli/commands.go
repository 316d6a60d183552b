package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/stackwatch/stackwatch/internal/inspect"
	"github.com/stackwatch/stackwatch/internal/profiler"
	"github.com/stackwatch/stackwatch/internal/sys/proc"
)

// newFlagSet builds a flag set that reports parse errors instead of
// calling os.Exit, so a typo never kills the shell.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (sh *Shell) cmdStart(args []string) {
	fs := newFlagSet("start")
	pid := fs.Int32P("pid", "p", 0, "target process id")
	funcs := fs.StringSliceP("func", "f", nil, "function names to track")
	seconds := fs.Float64P("interval", "t", sh.cfg.Profiler.Interval.Seconds(), "sampling interval in seconds")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(sh.out, "start: %v\n", err)
		fmt.Fprintln(sh.out, "Usage: start -p <pid> -f <func>[,<func>...] [-t <seconds>]")
		return
	}

	interval := time.Duration(*seconds * float64(time.Second))
	err := sh.session.Start(context.Background(), *pid, *funcs, interval)
	switch {
	case err == nil:
		fmt.Fprintf(sh.out, "Profiling started for PID %d (interval %s).\n", *pid, interval)
	case errors.Is(err, profiler.ErrAlreadyRunning):
		fmt.Fprintln(sh.out, "A session is already running. Stop it first.")
	case errors.Is(err, profiler.ErrInvalidArgument):
		fmt.Fprintf(sh.out, "start: %v\n", err)
		fmt.Fprintln(sh.out, "Usage: start -p <pid> -f <func>[,<func>...] [-t <seconds>]")
	case errors.Is(err, inspect.ErrTargetUnavailable):
		fmt.Fprintf(sh.out, "Cannot attach: process %d is not available.\n", *pid)
	default:
		fmt.Fprintf(sh.out, "Failed to start profiling: %v\n", err)
	}
}

func (sh *Shell) cmdStop() {
	status := sh.session.CurrentStatus()
	if status.State != profiler.StateRunning {
		fmt.Fprintln(sh.out, "No session is running.")
		return
	}

	sh.session.Stop()
	fmt.Fprintln(sh.out, "Profiling stopped.")
	sh.printResults()
}

func (sh *Shell) cmdAdd(args []string) {
	names, ok := sh.parseFuncs("add", args)
	if !ok {
		return
	}

	added, err := sh.session.Add(names)
	if err != nil {
		sh.printMutationError("add", err)
		return
	}
	if len(added) == 0 {
		fmt.Fprintln(sh.out, "All of those functions are already tracked.")
		return
	}
	fmt.Fprintf(sh.out, "Now tracking: %v\n", added)
}

func (sh *Shell) cmdRemove(args []string) {
	names, ok := sh.parseFuncs("remove", args)
	if !ok {
		return
	}

	removed, err := sh.session.Remove(names)
	if err != nil {
		sh.printMutationError("remove", err)
		return
	}
	if len(removed) == 0 {
		fmt.Fprintln(sh.out, "None of those functions were tracked.")
		return
	}
	fmt.Fprintf(sh.out, "Stopped tracking: %v\n", removed)
}

func (sh *Shell) parseFuncs(cmd string, args []string) ([]string, bool) {
	fs := newFlagSet(cmd)
	funcs := fs.StringSliceP("func", "f", nil, "function names")
	if err := fs.Parse(args); err != nil || len(*funcs) == 0 {
		if err != nil {
			fmt.Fprintf(sh.out, "%s: %v\n", cmd, err)
		}
		fmt.Fprintf(sh.out, "Usage: %s -f <func>[,<func>...]\n", cmd)
		return nil, false
	}
	return *funcs, true
}

func (sh *Shell) cmdInterval(args []string) {
	fs := newFlagSet("interval")
	seconds := fs.Float64P("interval", "t", 0, "sampling interval in seconds")
	if err := fs.Parse(args); err != nil || *seconds == 0 {
		if err != nil {
			fmt.Fprintf(sh.out, "interval: %v\n", err)
		}
		fmt.Fprintln(sh.out, "Usage: interval -t <seconds>")
		return
	}

	d := time.Duration(*seconds * float64(time.Second))
	if err := sh.session.SetInterval(d); err != nil {
		sh.printMutationError("interval", err)
		return
	}
	fmt.Fprintf(sh.out, "Sampling interval set to %s.\n", d)
	fmt.Fprintln(sh.out, "Note: estimates now mix observations taken at different intervals.")
}

func (sh *Shell) cmdResults() {
	sh.printResults()
}

func (sh *Shell) printResults() {
	results, err := sh.session.Results()
	if err != nil {
		if errors.Is(err, profiler.ErrNoSession) {
			fmt.Fprintln(sh.out, "No session has been started yet.")
			return
		}
		fmt.Fprintf(sh.out, "results: %v\n", err)
		return
	}
	renderResults(sh.out, results)
}

func (sh *Shell) cmdStatus() {
	renderStatus(sh.out, sh.session.CurrentStatus())
}

func (sh *Shell) cmdPs() {
	procs, err := proc.FindPython()
	if err != nil {
		fmt.Fprintf(sh.out, "ps: %v\n", err)
		return
	}
	if len(procs) == 0 {
		fmt.Fprintln(sh.out, "No Python processes found.")
		return
	}
	renderProcesses(sh.out, procs)
}

func (sh *Shell) printMutationError(cmd string, err error) {
	switch {
	case errors.Is(err, profiler.ErrNotRunning):
		fmt.Fprintln(sh.out, "No session is running. Use 'start' first.")
	case errors.Is(err, profiler.ErrInvalidArgument):
		fmt.Fprintf(sh.out, "%s: %v\n", cmd, err)
	default:
		fmt.Fprintf(sh.out, "%s: %v\n", cmd, err)
	}
}
