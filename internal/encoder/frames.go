package encoder

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/compositor"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// FramesEncoder composites every frame in-process: one ffmpeg decodes the
// prepared background to raw RGBA, banner and captions are drawn in Go,
// and a second ffmpeg encodes the frames and muxes the narration.
type FramesEncoder struct {
	proc *ffmpegWrap.Processor
	log  logger.Logger
}

func NewFramesEncoder(proc *ffmpegWrap.Processor, log logger.Logger) *FramesEncoder {
	return &FramesEncoder{proc: proc, log: log}
}

// DecodeArgs decodes the background layer to raw RGBA on stdout.
func DecodeArgs(tl *compositor.Timeline) []string {
	return ffmpeg.Output([]*ffmpeg.Stream{tl.Background.Stream()}, "pipe:", ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgba",
	}).GetArgs()
}

// EncodeArgs reads raw RGBA frames on stdin and writes the final file.
func EncodeArgs(tl *compositor.Timeline, output string, params Params) ([]string, error) {
	frames := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", tl.Width, tl.Height),
		"framerate": params.FrameRate,
	})
	audio, err := audioStream(tl.Audio)
	if err != nil {
		return nil, err
	}
	return ffmpeg.Output([]*ffmpeg.Stream{frames, audio}, output, params.OutputKwArgs(tl.Total())).
		OverWriteOutput().
		GetArgs(), nil
}

func (e *FramesEncoder) Encode(ctx context.Context, tl *compositor.Timeline, output string, params Params) (*Result, error) {
	started := time.Now()

	encArgs, err := EncodeArgs(tl, output, params)
	if err != nil {
		return nil, errors.Wrapf(types.ErrEncode, "preparing encoder: %v", err)
	}

	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	dec, decStderr := e.proc.Command(ctx, DecodeArgs(tl))
	enc, encStderr := e.proc.Command(ctx, encArgs)

	src, err := dec.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(types.ErrEncode, "decoder pipe: %v", err)
	}
	dst, err := enc.StdinPipe()
	if err != nil {
		return nil, errors.Wrapf(types.ErrEncode, "encoder pipe: %v", err)
	}

	if err := enc.Start(); err != nil {
		return nil, errors.Wrapf(types.ErrEncode, "starting encoder: %v", err)
	}
	if err := dec.Start(); err != nil {
		dst.Close()
		enc.Wait()
		return nil, errors.Wrapf(types.ErrEncode, "starting decoder: %v", err)
	}

	e.log.Info().
		Int("captions", len(tl.Captions)).
		Bool("banner", tl.Banner != nil).
		Float64("total", tl.Total()).
		Str("platform", params.Platform).
		Msg("encoding with frame compositing")

	n, pumpErr := Pump(src, dst, tl, params.FrameRate)
	dst.Close()
	if pumpErr != nil {
		// The encoder went away; stop the decoder instead of letting it block.
		dec.Process.Kill()
	}
	decErr := ffmpegWrap.Classify(ctx, dec.Wait(), decStderr)
	encErr := ffmpegWrap.Classify(ctx, enc.Wait(), encStderr)

	e.log.Debug().Int("frames", n).Msg("frames composited")

	switch {
	case encErr != nil:
		return nil, wrapRunError(encErr, params)
	case decErr != nil && pumpErr == nil:
		return nil, wrapRunError(decErr, params)
	case pumpErr != nil:
		return nil, errors.Wrapf(types.ErrEncode, "streaming frames: %v", pumpErr)
	case n == 0:
		return nil, errors.Wrap(types.ErrEncode, "background produced no frames")
	}
	return verifyOutput(output, types.BackendFrames, params, started, e.log)
}

// Pump reads raw RGBA background frames from src, draws the timeline's
// overlays for each frame time and writes the result to dst. It returns
// the number of frames written. A trailing partial frame is discarded.
func Pump(src io.Reader, dst io.Writer, tl *compositor.Timeline, fps int) (int, error) {
	frame := image.NewRGBA(image.Rect(0, 0, tl.Width, tl.Height))
	for n := 0; ; n++ {
		if _, err := io.ReadFull(src, frame.Pix); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return n, nil
			}
			return n, errors.Wrap(err, "reading background frame")
		}

		tl.DrawOverlays(frame, float64(n)/float64(fps))

		if _, err := dst.Write(frame.Pix); err != nil {
			return n, errors.Wrap(err, "writing frame")
		}
	}
}
