package progress

import (
	"fmt"
	"io"
	"sync"
)

// Checkpoints reported by a generation job.
const (
	LoadingAssets      = 10
	BackgroundPrepared = 30
	BannerPrepared     = 50
	CaptionsPrepared   = 70
	Compositing        = 80
	Complete           = 100
)

// Reporter writes machine-readable progress lines of the form
// "PROGRESS <pct> <stage>". A nil *Reporter discards everything.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// WithPrefix returns a reporter sharing the writer whose stage labels are
// prefixed, e.g. with the batch job id.
func (r *Reporter) WithPrefix(prefix string) *Reporter {
	if r == nil {
		return nil
	}
	return &Reporter{w: &lockedWriter{mu: &r.mu, w: r.w}, prefix: prefix}
}

// Report writes one progress line. Percentages are clamped to [0,100].
func (r *Reporter) Report(pct int, stage string) {
	if r == nil || r.w == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if r.prefix != "" {
		stage = r.prefix + " " + stage
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "PROGRESS %d %s\n", pct, stage)
}

// lockedWriter serializes writes from prefixed reporters onto the parent's
// writer so lines from concurrent jobs never interleave.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
