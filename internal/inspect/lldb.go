package inspect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackwatch/stackwatch/internal/retry"
	"github.com/stackwatch/stackwatch/internal/sys/proc"
)

// lldbPrompt delimits debugger output; LLDB prints it whenever it is ready
// for the next command.
const lldbPrompt = "(lldb)"

// attachTimeout bounds the wait for the debugger to come up after spawn.
const attachTimeout = 10 * time.Second

// LLDBOptions configures an LLDB source.
type LLDBOptions struct {
	// Path is the lldb binary (default "lldb").
	Path string
	// SampleTimeout bounds one stack capture (default 2s).
	SampleTimeout time.Duration
	// AttachRetries is the number of spawn attempts (default 3).
	AttachRetries int
	Logger        zerolog.Logger
}

// LLDB drives a persistent interactive lldb session attached to a target
// pid. Each Sample suspends the target, captures the Python backtrace with
// py-bt, and resumes it.
type LLDB struct {
	pid  int32
	opts LLDBOptions

	// sem serializes captures; the debugger cannot service two commands at
	// once, and a timed-out capture keeps the slot until its output is
	// fully drained. A channel rather than a mutex so waiters stay
	// cancellable.
	sem chan struct{}

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	// recMu guards the wedge-recovery state below.
	recMu sync.Mutex
	// timeouts counts consecutive capture timeouts.
	timeouts int
	// respawn is set once a wedged debugger has been killed; the next
	// capture spawns a fresh one.
	respawn bool
}

// NewLLDB creates an LLDB source for the given target pid.
func NewLLDB(pid int32, opts LLDBOptions) *LLDB {
	if opts.Path == "" {
		opts.Path = "lldb"
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = 2 * time.Second
	}
	if opts.AttachRetries < 1 {
		opts.AttachRetries = 3
	}
	return &LLDB{
		pid:  pid,
		opts: opts,
		sem:  make(chan struct{}, 1),
	}
}

// Attach spawns lldb and attaches it to the target, retrying transient
// spawn failures with backoff.
func (l *LLDB) Attach(ctx context.Context) error {
	if !proc.Alive(l.pid) {
		return fmt.Errorf("pid %d: %w", l.pid, ErrTargetUnavailable)
	}

	rcfg := retry.Config{
		MaxRetries:     l.opts.AttachRetries,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}

	err := retry.Do(ctx, rcfg, func() error {
		return l.spawn(ctx)
	}, func(err error) bool {
		return !errors.Is(err, ErrTargetUnavailable)
	})
	if err != nil {
		return fmt.Errorf("attach lldb to pid %d: %w", l.pid, err)
	}

	l.opts.Logger.Debug().Int32("pid", l.pid).Msg("Debugger attached")
	return nil
}

// spawn starts the lldb subprocess and waits for its first prompt.
func (l *LLDB) spawn(ctx context.Context) error {
	if !proc.Alive(l.pid) {
		return fmt.Errorf("pid %d: %w", l.pid, ErrTargetUnavailable)
	}

	//nolint:gosec // G204: binary path comes from validated configuration.
	cmd := exec.Command(l.opts.Path, "-p", strconv.Itoa(int(l.pid)), "--local-lldbinit")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", l.opts.Path, err)
	}

	l.cmd = cmd
	l.stdin = stdin
	l.stdout = bufio.NewReader(stdout)

	// Wait for the debugger to be ready for its first command.
	if _, err := l.readUntilPromptTimeout(ctx, attachTimeout); err != nil {
		l.kill()
		return fmt.Errorf("waiting for debugger prompt: %w", err)
	}

	return nil
}

// Sample captures the target's current Python stack and returns the subset
// of names present on it. At most one capture runs at a time; a capture
// that outlives its deadline keeps draining in the background so the
// session stays usable. The deadline covers waiting for the slot too, so
// Sample always returns within one timeout even when the debugger has
// wedged mid-capture.
func (l *LLDB) Sample(ctx context.Context, names []string) (map[string]struct{}, error) {
	if l.cmd == nil {
		return nil, fmt.Errorf("%w: not attached", ErrSample)
	}
	if !proc.Alive(l.pid) {
		return nil, fmt.Errorf("pid %d: %w", l.pid, ErrTargetUnavailable)
	}

	timer := time.NewTimer(l.opts.SampleTimeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		l.noteTimeout()
		return nil, fmt.Errorf("previous capture still draining after %s: %w", l.opts.SampleTimeout, ErrSampleTimeout)
	}

	if err := l.recoverIfNeeded(ctx); err != nil {
		<-l.sem
		return nil, fmt.Errorf("%w: %v", ErrSample, err)
	}

	type result struct {
		output string
		err    error
	}
	resCh := make(chan result, 1)

	go func() {
		defer func() { <-l.sem }()
		output, err := l.capture()
		resCh <- result{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		l.noteTimeout()
		return nil, fmt.Errorf("capture exceeded %s: %w", l.opts.SampleTimeout, ErrSampleTimeout)
	case res := <-resCh:
		l.noteCompleted()
		if res.err != nil {
			if !proc.Alive(l.pid) || l.cmd.ProcessState != nil {
				return nil, fmt.Errorf("pid %d: %w", l.pid, ErrTargetUnavailable)
			}
			return nil, fmt.Errorf("%w: %v", ErrSample, res.err)
		}
		return presentNames(ParseBacktrace(res.output), names), nil
	}
}

// noteTimeout counts consecutive capture timeouts. After the second one
// the debugger is assumed wedged (no prompt is coming): it is killed so
// the draining reader unblocks, and the next capture respawns it.
func (l *LLDB) noteTimeout() {
	l.recMu.Lock()
	defer l.recMu.Unlock()

	l.timeouts++
	if l.timeouts >= 2 && !l.respawn {
		l.opts.Logger.Warn().Int32("pid", l.pid).Msg("Debugger wedged, killing it")
		l.kill()
		l.respawn = true
	}
}

func (l *LLDB) noteCompleted() {
	l.recMu.Lock()
	l.timeouts = 0
	l.recMu.Unlock()
}

// recoverIfNeeded respawns the debugger after a wedge forced a kill. The
// caller holds the capture slot.
func (l *LLDB) recoverIfNeeded(ctx context.Context) error {
	l.recMu.Lock()
	respawn := l.respawn
	l.recMu.Unlock()
	if !respawn {
		return nil
	}

	l.opts.Logger.Info().Int32("pid", l.pid).Msg("Respawning debugger")
	if err := l.spawn(ctx); err != nil {
		return err
	}

	l.recMu.Lock()
	l.respawn = false
	l.timeouts = 0
	l.recMu.Unlock()
	return nil
}

// capture performs one suspend / py-bt / resume cycle and returns the raw
// debugger output between prompts.
func (l *LLDB) capture() (string, error) {
	// Suspend the target (equivalent of Ctrl-C in the debugger).
	if err := l.command("process signal SIGINT"); err != nil {
		return "", err
	}
	if _, err := l.readUntilPrompt(); err != nil {
		return "", err
	}

	if err := l.command("py-bt"); err != nil {
		return "", err
	}
	btOutput, err := l.readUntilPrompt()
	if err != nil {
		return "", err
	}

	if err := l.command("process continue"); err != nil {
		return "", err
	}
	// py-bt output can arrive buffered after the continue command; keep
	// both reads and parse the concatenation.
	contOutput, err := l.readUntilPrompt()
	if err != nil {
		return "", err
	}

	return btOutput + "\n" + contOutput, nil
}

// command writes one line to the debugger's stdin.
func (l *LLDB) command(cmd string) error {
	if _, err := io.WriteString(l.stdin, cmd+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// readUntilPrompt consumes debugger output up to and including the next
// prompt and returns what came before it.
func (l *LLDB) readUntilPrompt() (string, error) {
	return readUntilPrompt(l.stdout)
}

// readUntilPromptTimeout reads up to the next prompt with a deadline,
// used during attach where the debugger may never come up.
func (l *LLDB) readUntilPromptTimeout(ctx context.Context, timeout time.Duration) (string, error) {
	type result struct {
		output string
		err    error
	}
	resCh := make(chan result, 1)

	go func() {
		output, err := l.readUntilPrompt()
		resCh <- result{output: output, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("no debugger prompt within %s: %w", timeout, ErrSampleTimeout)
	case res := <-resCh:
		return res.output, res.err
	}
}

// Detach releases the target and reaps the debugger subprocess.
func (l *LLDB) Detach() error {
	if l.cmd == nil {
		return nil
	}

	// Wait briefly for an in-flight capture so the polite detach does not
	// interleave with its command stream. A wedged capture never yields
	// the slot; the kill below unblocks its reader.
	polite := false
	select {
	case l.sem <- struct{}{}:
		polite = true
		defer func() { <-l.sem }()
	case <-time.After(l.opts.SampleTimeout):
	}

	if polite {
		_ = l.command("process detach")
		_ = l.command("quit")
	}
	_ = l.stdin.Close()

	// Give lldb a moment to exit cleanly, then force it.
	done := make(chan error, 1)
	go func() { done <- l.cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(3 * time.Second):
		l.kill()
		err = <-done
	}

	l.cmd = nil

	if err != nil && !isExpectedExit(err) {
		return fmt.Errorf("debugger exit: %w", err)
	}

	l.opts.Logger.Debug().Int32("pid", l.pid).Msg("Debugger detached")
	return nil
}

func (l *LLDB) kill() {
	if l.cmd != nil && l.cmd.Process != nil {
		_ = l.cmd.Process.Kill()
	}
}

// isExpectedExit filters the exit errors a quit-on-request debugger
// legitimately produces.
func isExpectedExit(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// readUntilPrompt accumulates bytes from r until the stream contains the
// lldb prompt, then returns everything before it. The prompt is not
// newline-terminated, so this reads byte-wise rather than line-wise.
func readUntilPrompt(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			return sb.String(), fmt.Errorf("debugger output ended: %w", err)
		}
		sb.WriteByte(b)

		if b == ')' && strings.HasSuffix(sb.String(), lldbPrompt) {
			out := sb.String()
			return out[:len(out)-len(lldbPrompt)], nil
		}
	}
}
