package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// StderrTailSize is how much encoder diagnostic output is kept for errors.
const StderrTailSize = 4 * 1024

// ErrTimeout is returned when a run exceeds its deadline.
var ErrTimeout = errors.New("ffmpeg timed out")

// ExitError carries the tail of ffmpeg's stderr for a failed run.
type ExitError struct {
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg failed: %v\n%s", e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// RunOptions controls a single ffmpeg invocation.
type RunOptions struct {
	// Timeout bounds the whole run; zero means only ctx applies.
	Timeout time.Duration
	Stdin   io.Reader
	Stdout  io.Writer
}

// RunArgs executes ffmpeg with arguments compiled by ffmpeg-go's GetArgs.
func (p *Processor) RunArgs(ctx context.Context, args []string, opts RunOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd, stderr := p.Command(ctx, args)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout

	start := time.Now()
	err := cmd.Run()
	p.log.Debug().
		Dur("elapsed", time.Since(start)).
		Bool("ok", err == nil).
		Msg("ffmpeg finished")

	return Classify(ctx, err, stderr)
}

// Command prepares an ffmpeg process bound to ctx whose stderr is captured
// into the returned tail buffer. Callers wire stdin/stdout themselves.
func (p *Processor) Command(ctx context.Context, args []string) (*exec.Cmd, *TailBuffer) {
	p.log.Debug().Strs("args", args).Msg("ffmpeg command")

	stderr := NewTailBuffer(StderrTailSize)
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	cmd.Stderr = stderr
	return cmd, stderr
}

// Classify turns a process error into ErrTimeout, a context error or an
// *ExitError with the captured stderr.
func Classify(ctx context.Context, err error, stderr *TailBuffer) error {
	if err == nil {
		return nil
	}
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrapf(ErrTimeout, "%s", stderr.String())
	case context.Canceled:
		return errors.Wrap(ctx.Err(), "ffmpeg cancelled")
	}
	return &ExitError{Err: err, Stderr: stderr.String()}
}

// TailBuffer is an io.Writer that keeps only the last N bytes written.
type TailBuffer struct {
	mu   sync.Mutex
	size int
	buf  []byte
}

func NewTailBuffer(size int) *TailBuffer {
	return &TailBuffer{size: size}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if len(p) >= t.size {
		p = p[len(p)-t.size:]
		t.buf = append(t.buf[:0], p...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.size; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
