package align

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// Aligner produces word timings for narration audio and its transcript.
// Timings are relative to the start of audioPath.
type Aligner interface {
	Align(ctx context.Context, audioPath, text string) ([]types.WordTiming, error)
}

// DurationProber measures audio length. *ffmpeg.Processor implements it.
type DurationProber interface {
	AudioDuration(path string) (float64, error)
}

// Options selects and configures an alignment strategy.
type Options struct {
	Kind types.AlignerKind
	// SidecarPath is the precomputed alignment file read by the sidecar strategy.
	SidecarPath string
	// Command is the argv template for the engine strategy.
	Command []string
	// WorkDir holds the engine strategy's transcript file.
	WorkDir string
	// Timeout bounds a single engine run.
	Timeout time.Duration
	// WordsPerSecond is the heuristic base speaking rate.
	WordsPerSecond float64
	Prober         DurationProber
}

// New returns the aligner for opts.Kind.
//
// The strategies differ on empty results: the heuristic and sidecar
// strategies return an empty slice (no captions), the engine strategy
// fails with types.ErrNoWordsDetected.
func New(opts Options, log logger.Logger) (Aligner, error) {
	switch opts.Kind {
	case types.AlignerSidecar:
		return NewSidecarAligner(opts.SidecarPath, log), nil
	case types.AlignerHeuristic:
		if opts.Prober == nil {
			return nil, errors.New("heuristic aligner requires a duration prober")
		}
		return NewHeuristicAligner(opts.Prober, opts.WordsPerSecond, log), nil
	case types.AlignerEngine:
		return NewEngineAligner(opts.Command, opts.WorkDir, opts.Timeout, log)
	default:
		return nil, errors.Errorf("unsupported aligner: %s", opts.Kind)
	}
}
