package encoder

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/compositor"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// Encoder writes a composed timeline to a video file.
type Encoder interface {
	Encode(ctx context.Context, tl *compositor.Timeline, output string, params Params) (*Result, error)
}

// Result describes a finished encode.
type Result struct {
	Path    string
	Size    int64
	Backend types.Backend
	Elapsed time.Duration
	// Suspicious is set when the file is implausibly small. The file is
	// still returned.
	Suspicious bool
}

// New returns the encoder backend. workDir holds intermediate files and
// must outlive the Encode call.
func New(backend types.Backend, proc *ffmpegWrap.Processor, workDir string, log logger.Logger) (Encoder, error) {
	switch backend {
	case types.BackendFilterGraph:
		return NewFilterGraphEncoder(proc, workDir, log), nil
	case types.BackendFrames:
		return NewFramesEncoder(proc, log), nil
	default:
		return nil, errors.Errorf("unsupported backend: %s", backend)
	}
}

// wrapRunError maps ffmpeg failures onto the encode error taxonomy.
func wrapRunError(err error, params Params) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ffmpegWrap.ErrTimeout) {
		return errors.Wrapf(types.ErrEncodeTimeout, "encode exceeded %s: %v", params.Timeout, err)
	}
	return errors.Wrapf(types.ErrEncode, "%v", err)
}

// verifyOutput checks the encoded file exists and is not empty.
func verifyOutput(path string, backend types.Backend, params Params, started time.Time, log logger.Logger) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(types.ErrEncode, "output missing after encode: %v", err)
	}
	if info.Size() == 0 {
		return nil, errors.Wrapf(types.ErrEncode, "output %s is empty", path)
	}

	res := &Result{
		Path:       path,
		Size:       info.Size(),
		Backend:    backend,
		Elapsed:    time.Since(started),
		Suspicious: info.Size() < params.MinPlausibleSize,
	}
	ev := log.Info()
	if res.Suspicious {
		ev = log.Warn().Int64("min_expected", params.MinPlausibleSize)
	}
	ev.Str("path", path).
		Float64("size_mb", float64(res.Size)/1024/1024).
		Dur("elapsed", res.Elapsed).
		Bool("suspicious", res.Suspicious).
		Msg("encode finished")
	return res, nil
}
