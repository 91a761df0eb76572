package encoder

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/caption"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/compositor"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// runner executes compiled ffmpeg arguments. *ffmpeg.Processor implements it.
type runner interface {
	RunArgs(ctx context.Context, args []string, opts ffmpegWrap.RunOptions) error
}

// FilterGraphEncoder renders the whole timeline as one ffmpeg filter graph.
// Banner and caption images are written to workDir as PNG inputs; the
// bounce is expressed as per-frame scale and overlay expressions.
type FilterGraphEncoder struct {
	run     runner
	workDir string
	log     logger.Logger
}

func NewFilterGraphEncoder(run runner, workDir string, log logger.Logger) *FilterGraphEncoder {
	return &FilterGraphEncoder{run: run, workDir: workDir, log: log}
}

func (e *FilterGraphEncoder) Encode(ctx context.Context, tl *compositor.Timeline, output string, params Params) (*Result, error) {
	started := time.Now()

	args, err := e.BuildArgs(tl, output, params)
	if err != nil {
		return nil, errors.Wrapf(types.ErrEncode, "preparing filter graph: %v", err)
	}

	e.log.Info().
		Int("captions", len(tl.Captions)).
		Bool("banner", tl.Banner != nil).
		Float64("total", tl.Total()).
		Str("platform", params.Platform).
		Msg("encoding with filter graph")

	if err := e.run.RunArgs(ctx, args, ffmpegWrap.RunOptions{Timeout: params.Timeout}); err != nil {
		return nil, wrapRunError(err, params)
	}
	return verifyOutput(output, types.BackendFilterGraph, params, started, e.log)
}

// BuildArgs writes the overlay images and returns the ffmpeg arguments.
func (e *FilterGraphEncoder) BuildArgs(tl *compositor.Timeline, output string, params Params) ([]string, error) {
	fps := params.FrameRate
	video := tl.Background.Stream()

	if tl.Banner != nil {
		path := filepath.Join(e.workDir, "banner.png")
		if err := tl.Banner.WritePNG(path); err != nil {
			return nil, err
		}
		visible := ffmpegWrap.Seconds(tl.Banner.VisibleFor)
		in := ffmpeg.Input(path, ffmpeg.KwArgs{"loop": 1, "framerate": fps, "t": visible})
		video = ffmpeg.Filter([]*ffmpeg.Stream{video, in}, "overlay", ffmpeg.Args{}, ffmpeg.KwArgs{
			"x":          tl.Banner.X,
			"y":          tl.Banner.Y,
			"enable":     enableWindow("0", visible),
			"eof_action": "pass",
		})
	}

	for i, c := range tl.Captions {
		path := filepath.Join(e.workDir, fmt.Sprintf("caption_%04d.png", i))
		if err := c.WritePNG(path); err != nil {
			return nil, err
		}
		video = overlayCaption(video, c, path, fps)
	}

	audio, err := audioStream(tl.Audio)
	if err != nil {
		return nil, err
	}

	out := ffmpeg.Output([]*ffmpeg.Stream{video, audio}, output, params.OutputKwArgs(tl.Total())).
		OverWriteOutput()
	return out.GetArgs(), nil
}

// overlayCaption adds one caption as a looped image input. Its scale runs
// on the caption's own clock; setpts moves it to its timeline start and
// the overlay is gated to its window.
func overlayCaption(video *ffmpeg.Stream, c *caption.Clip, path string, fps int) *ffmpeg.Stream {
	size := c.Size()
	start := ffmpegWrap.Seconds(c.Start)
	end := ffmpegWrap.Seconds(c.End())
	scale := caption.ScaleExpr(c.BounceScale)

	in := ffmpeg.Input(path, ffmpeg.KwArgs{"loop": 1, "framerate": fps, "t": ffmpegWrap.Seconds(c.Duration)}).
		Filter("scale", ffmpeg.Args{}, ffmpeg.KwArgs{
			"w":    fmt.Sprintf("iw*%s", scale),
			"h":    fmt.Sprintf("ih*%s", scale),
			"eval": "frame",
		}).
		Filter("setpts", ffmpeg.Args{fmt.Sprintf("PTS-STARTPTS+%s/TB", start)})

	lift := caption.LiftExpr(c.BouncePx, fmt.Sprintf("t-%s", start))
	return ffmpeg.Filter([]*ffmpeg.Stream{video, in}, "overlay", ffmpeg.Args{}, ffmpeg.KwArgs{
		"x":          fmt.Sprintf("%d+(%d-overlay_w)/2", c.X, size.X),
		"y":          fmt.Sprintf("%d+(%d-overlay_h)/2-%s", c.Y, size.Y, lift),
		"enable":     enableWindow(start, end),
		"eof_action": "pass",
		"eval":       "frame",
	})
}

// enableWindow gates a filter to the half-open interval [start,end), the
// same window Clip.Active and Overlay.Visible use.
func enableWindow(start, end string) string {
	return fmt.Sprintf("gte(t,%s)*lt(t,%s)", start, end)
}

// audioStream concatenates the title and story tracks without gap.
func audioStream(a compositor.AudioTrack) (*ffmpeg.Stream, error) {
	paths := a.Paths()
	if len(paths) == 0 || paths[len(paths)-1] == "" {
		return nil, errors.New("no story audio")
	}
	if len(paths) == 1 {
		return ffmpeg.Input(paths[0]).Audio(), nil
	}

	streams := make([]*ffmpeg.Stream, len(paths))
	for i, p := range paths {
		streams[i] = ffmpeg.Input(p).Audio()
	}
	return ffmpeg.Filter(streams, "concat", ffmpeg.Args{}, ffmpeg.KwArgs{"n": len(streams), "v": 0, "a": 1}), nil
}
