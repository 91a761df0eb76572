package background

import (
	"math"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// MetadataProber reads source dimensions and duration. *ffmpeg.Processor implements it.
type MetadataProber interface {
	GetVideoMetadata(path string) (*ffmpegWrap.VideoMetadata, error)
}

// LoopPlan says how many whole passes of the source cover the timeline.
type LoopPlan struct {
	Loops          int
	SourceDuration float64
	Total          float64
	// Still sources are repeated as a single frame.
	Still bool
}

// Plan computes the loop count for a source of src seconds and a timeline
// of total seconds. The last pass is cut hard at total.
func Plan(src, total float64) (LoopPlan, error) {
	if !(src > 0) {
		return LoopPlan{}, errors.Wrapf(types.ErrBackgroundLoad, "source has zero duration")
	}
	if !(total > 0) {
		return LoopPlan{}, errors.Wrapf(types.ErrBackgroundLoad, "invalid timeline duration %v", total)
	}
	// The epsilon keeps exact multiples from gaining a pass to float noise.
	loops := int(math.Ceil(total/src - 1e-9))
	if loops < 1 {
		loops = 1
	}
	return LoopPlan{Loops: loops, SourceDuration: src, Total: total}, nil
}

// Crop is a cover-scale followed by a centered crop.
type Crop struct {
	ScaledWidth, ScaledHeight int
	X, Y                      int
}

// CoverSize scales sw×sh preserving aspect ratio until both sides reach
// tw×th, then centers a tw×th window on the longer side. Scaled sides are
// rounded up to even values.
func CoverSize(sw, sh, tw, th int) Crop {
	scale := math.Max(float64(tw)/float64(sw), float64(th)/float64(sh))
	w := evenCeil(float64(sw)*scale, tw)
	h := evenCeil(float64(sh)*scale, th)
	return Crop{
		ScaledWidth:  w,
		ScaledHeight: h,
		X:            (w - tw) / 2,
		Y:            (h - th) / 2,
	}
}

func evenCeil(v float64, atLeast int) int {
	n := int(math.Ceil(v - 1e-9))
	if n < atLeast {
		n = atLeast
	}
	return n + n%2
}

// Background is a prepared background layer covering the whole timeline.
type Background struct {
	Path   string
	Width  int
	Height int
	Meta   *ffmpegWrap.VideoMetadata
	Plan   LoopPlan
	Crop   Crop
}

// Preparer probes background sources.
type Preparer struct {
	prober MetadataProber
	log    logger.Logger
}

func NewPreparer(prober MetadataProber, log logger.Logger) *Preparer {
	return &Preparer{prober: prober, log: log}
}

// Prepare probes path and plans a width×height layer lasting exactly total
// seconds. Unreadable or zero-length sources fail with types.ErrBackgroundLoad.
func (p *Preparer) Prepare(path string, width, height int, total float64) (*Background, error) {
	meta, err := p.prober.GetVideoMetadata(path)
	if err != nil {
		return nil, errors.Wrapf(types.ErrBackgroundLoad, "%s: %v", path, err)
	}

	var plan LoopPlan
	if meta.StillImage {
		if !(total > 0) {
			return nil, errors.Wrapf(types.ErrBackgroundLoad, "invalid timeline duration %v", total)
		}
		plan = LoopPlan{Loops: 1, Total: total, Still: true}
	} else {
		plan, err = Plan(meta.Duration, total)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
	}

	bg := &Background{
		Path:   path,
		Width:  width,
		Height: height,
		Meta:   meta,
		Plan:   plan,
		Crop:   CoverSize(meta.Width, meta.Height, width, height),
	}

	p.log.Info().
		Str("path", path).
		Int("src_width", meta.Width).
		Int("src_height", meta.Height).
		Float64("src_duration", meta.Duration).
		Int("loops", plan.Loops).
		Float64("total", total).
		Bool("still", plan.Still).
		Msg("background prepared")
	return bg, nil
}

// Stream builds the ffmpeg-go video stream for the layer: loop, cover
// scale, center crop, constant frame rate, trimmed to the timeline.
func (b *Background) Stream() *ffmpeg.Stream {
	in := ffmpeg.KwArgs{}
	switch {
	case b.Plan.Still:
		in["loop"] = 1
		in["framerate"] = config.FrameRate
	case b.Plan.Loops > 1:
		in["stream_loop"] = b.Plan.Loops - 1
	}

	return ffmpeg.Input(b.Path, in).
		Video().
		Filter("scale", ffmpeg.Args{}, ffmpeg.KwArgs{"w": b.Crop.ScaledWidth, "h": b.Crop.ScaledHeight}).
		Filter("crop", ffmpeg.Args{}, ffmpeg.KwArgs{"w": b.Width, "h": b.Height, "x": b.Crop.X, "y": b.Crop.Y}).
		Filter("fps", ffmpeg.Args{}, ffmpeg.KwArgs{"fps": config.FrameRate}).
		Filter("trim", ffmpeg.Args{}, ffmpeg.KwArgs{"duration": ffmpegWrap.Seconds(b.Plan.Total)}).
		Filter("setpts", ffmpeg.Args{"PTS-STARTPTS"}).
		Filter("setsar", ffmpeg.Args{"1"})
}
