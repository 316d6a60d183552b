package inspect

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

// newWedgedLLDB builds a source whose debugger accepts commands but never
// prints another prompt, so every capture hangs in readUntilPrompt until
// the returned writer is closed.
func newWedgedLLDB(t *testing.T, sampleTimeout time.Duration) (*LLDB, *io.PipeWriter) {
	t.Helper()

	pr, pw := io.Pipe()
	l := NewLLDB(int32(os.Getpid()), LLDBOptions{
		Path:          "lldb-test-missing",
		SampleTimeout: sampleTimeout,
		Logger:        zerolog.Nop(),
	})
	l.cmd = exec.Command(l.opts.Path)
	l.stdin = nopWriteCloser{}
	l.stdout = bufio.NewReader(pr)

	t.Cleanup(func() { _ = pw.Close() })
	return l, pw
}

func TestSample_TimeoutDoesNotBlockNextSample(t *testing.T) {
	l, _ := newWedgedLLDB(t, 50*time.Millisecond)

	_, err := l.Sample(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrSampleTimeout)

	// The wedged capture still holds the slot; the next call must time out
	// on its own instead of parking behind it forever.
	done := make(chan error, 1)
	go func() {
		_, err := l.Sample(context.Background(), []string{"a"})
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSampleTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Sample blocked behind a wedged capture")
	}
}

func TestSample_CancelledWhileWaitingForSlot(t *testing.T) {
	l, _ := newWedgedLLDB(t, 200*time.Millisecond)

	_, err := l.Sample(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrSampleTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Sample(ctx, []string{"a"})
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Sample ignored cancellation while waiting for the slot")
	}
}

func TestSample_RespawnsAfterRepeatedTimeouts(t *testing.T) {
	l, pw := newWedgedLLDB(t, 50*time.Millisecond)

	_, err := l.Sample(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrSampleTimeout)

	// Second consecutive timeout declares the debugger wedged and kills it.
	_, err = l.Sample(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrSampleTimeout)

	// With a real subprocess the kill closes its pipes; do the same so the
	// draining reader unblocks and yields the slot.
	_ = pw.Close()

	// The next capture respawns the debugger. The binary does not exist,
	// so the respawn fails as a sample error rather than hanging.
	_, err = l.Sample(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrSample)
}

func TestDetach_DoesNotBlockOnWedgedCapture(t *testing.T) {
	l, pw := newWedgedLLDB(t, 50*time.Millisecond)

	_, err := l.Sample(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrSampleTimeout)

	done := make(chan struct{})
	go func() {
		_ = l.Detach()
		close(done)
	}()

	// Detach force-closes the debugger; unblock the reader the way a real
	// process exit would.
	time.AfterFunc(100*time.Millisecond, func() { _ = pw.Close() })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Detach blocked behind a wedged capture")
	}
}
