package cli

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackwatch/stackwatch/internal/config"
	"github.com/stackwatch/stackwatch/internal/inspect"
	"github.com/stackwatch/stackwatch/internal/profiler"
	"github.com/stackwatch/stackwatch/internal/testutil"
)

// quietSource attaches successfully and reports every sampled function as
// absent, so shell flows can run against a real session without lldb.
type quietSource struct{}

func (quietSource) Attach(ctx context.Context) error { return nil }

func (quietSource) Sample(ctx context.Context, names []string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (quietSource) Detach() error { return nil }

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HistoryFile = ""
	logger := testutil.NewTestLogger(t)

	session := profiler.NewSession(profiler.Options{
		FailureThreshold: cfg.Profiler.FailureThreshold,
		NewSource:        func(pid int32) inspect.Source { return quietSource{} },
		Logger:           logger,
	})

	var buf bytes.Buffer
	return &Shell{
		cfg:     cfg,
		logger:  logger,
		session: session,
		out:     &buf,
	}, &buf
}

// startRunning starts a session against this test process and fails the
// test if the shell did not reach the running state.
func startRunning(t *testing.T, sh *Shell, buf *bytes.Buffer, funcs string) {
	t.Helper()

	sh.Execute([]string{"start", "-p", pidArg(), "-f", funcs})
	require.Contains(t, buf.String(), "Profiling started")
	buf.Reset()
}

func pidArg() string {
	return strconv.Itoa(os.Getpid())
}

func TestShellUnknownCommand(t *testing.T) {
	sh, buf := newTestShell(t)

	exit := sh.Execute([]string{"frobnicate"})

	assert.False(t, exit)
	assert.Contains(t, buf.String(), "Unknown command")
}

func TestShellHelp(t *testing.T) {
	sh, buf := newTestShell(t)

	sh.Execute([]string{"help"})

	out := buf.String()
	for _, cmd := range []string{"start", "stop", "add", "remove", "interval", "results", "status", "exit"} {
		assert.Contains(t, out, cmd)
	}
}

func TestShellStartValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing functions",
			args: []string{"start", "-p", pidArg()},
			want: "Usage: start",
		},
		{
			name: "dead pid",
			args: []string{"start", "-p", "8388608", "-f", "fib"},
			want: "Usage: start",
		},
		{
			name: "unknown flag",
			args: []string{"start", "--bogus"},
			want: "Usage: start",
		},
		{
			name: "negative interval",
			args: []string{"start", "-p", pidArg(), "-f", "fib", "-t", "-1"},
			want: "Usage: start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh, buf := newTestShell(t)

			sh.Execute(tt.args)

			assert.Contains(t, buf.String(), tt.want)
			assert.Equal(t, profiler.StateIdle, sh.session.CurrentStatus().State)
		})
	}
}

func TestShellStartStopFlow(t *testing.T) {
	sh, buf := newTestShell(t)

	startRunning(t, sh, buf, "fib,main")
	assert.Equal(t, profiler.StateRunning, sh.session.CurrentStatus().State)

	sh.Execute([]string{"status"})
	assert.Contains(t, buf.String(), "running")
	buf.Reset()

	sh.Execute([]string{"stop"})
	out := buf.String()
	assert.Contains(t, out, "Profiling stopped")
	assert.Contains(t, out, "fib")
	assert.Contains(t, out, "main")
	assert.Equal(t, profiler.StateStopped, sh.session.CurrentStatus().State)
}

func TestShellStopWithoutSession(t *testing.T) {
	sh, buf := newTestShell(t)

	sh.Execute([]string{"stop"})

	assert.Contains(t, buf.String(), "No session is running")
}

func TestShellStartWhileRunning(t *testing.T) {
	sh, buf := newTestShell(t)
	startRunning(t, sh, buf, "fib")
	defer sh.session.Stop()

	sh.Execute([]string{"start", "-p", pidArg(), "-f", "other"})

	assert.Contains(t, buf.String(), "already running")
}

func TestShellAddRemove(t *testing.T) {
	sh, buf := newTestShell(t)
	startRunning(t, sh, buf, "fib")
	defer sh.session.Stop()

	sh.Execute([]string{"add", "-f", "main,fib"})
	assert.Contains(t, buf.String(), "Now tracking")
	assert.Contains(t, buf.String(), "main")
	buf.Reset()

	sh.Execute([]string{"add", "-f", "main"})
	assert.Contains(t, buf.String(), "already tracked")
	buf.Reset()

	sh.Execute([]string{"remove", "-f", "main"})
	assert.Contains(t, buf.String(), "Stopped tracking")
	buf.Reset()

	sh.Execute([]string{"remove", "-f", "never_added"})
	assert.Contains(t, buf.String(), "None of those functions were tracked")
}

func TestShellMutationsRequireRunning(t *testing.T) {
	sh, buf := newTestShell(t)

	for _, args := range [][]string{
		{"add", "-f", "fib"},
		{"remove", "-f", "fib"},
		{"interval", "-t", "0.05"},
	} {
		buf.Reset()
		sh.Execute(args)
		assert.Contains(t, buf.String(), "No session is running", "args: %v", args)
	}
}

func TestShellInterval(t *testing.T) {
	sh, buf := newTestShell(t)
	startRunning(t, sh, buf, "fib")
	defer sh.session.Stop()

	sh.Execute([]string{"interval", "-t", "0.05"})
	assert.Contains(t, buf.String(), "50ms")
	assert.Equal(t, 50*time.Millisecond, sh.session.CurrentStatus().Interval)
	buf.Reset()

	sh.Execute([]string{"interval"})
	assert.Contains(t, buf.String(), "Usage: interval")
}

func TestShellResultsBeforeAnySession(t *testing.T) {
	sh, buf := newTestShell(t)

	sh.Execute([]string{"results"})

	assert.Contains(t, buf.String(), "No session has been started yet")
}

func TestShellResultsListsRemovedFunctions(t *testing.T) {
	sh, buf := newTestShell(t)
	startRunning(t, sh, buf, "fib,gone")

	sh.Execute([]string{"remove", "-f", "gone"})
	buf.Reset()

	sh.Execute([]string{"results"})
	out := buf.String()
	assert.Contains(t, out, "fib")
	assert.Contains(t, out, "gone")

	sh.session.Stop()
}

func TestShellExitStopsActiveSession(t *testing.T) {
	sh, buf := newTestShell(t)
	startRunning(t, sh, buf, "fib")

	exit := sh.Execute([]string{"exit"})

	assert.True(t, exit)
	assert.Contains(t, buf.String(), "Stopping active session")
	assert.Equal(t, profiler.StateStopped, sh.session.CurrentStatus().State)
}

func TestShellExitWhenIdle(t *testing.T) {
	sh, buf := newTestShell(t)

	exit := sh.Execute([]string{"exit"})

	assert.True(t, exit)
	assert.Contains(t, buf.String(), "Bye")
}
