package compositor

import (
	"image"
	"image/draw"
	"math"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/background"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/banner"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/caption"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
)

// durationTolerance absorbs float formatting differences between probes.
const durationTolerance = 1e-6

// AudioTrack is the narration: an optional title track followed directly
// by the story track. TitleDuration is the only value used to offset
// captions, time the banner and concatenate audio.
type AudioTrack struct {
	TitlePath     string
	TitleDuration float64
	StoryPath     string
	StoryDuration float64
}

// HasTitle reports whether a title track plays before the story.
func (a AudioTrack) HasTitle() bool {
	return a.TitlePath != "" && a.TitleDuration > 0
}

// Total is the timeline length in seconds.
func (a AudioTrack) Total() float64 {
	if a.HasTitle() {
		return a.TitleDuration + a.StoryDuration
	}
	return a.StoryDuration
}

// Offset is where the story starts on the timeline.
func (a AudioTrack) Offset() float64 {
	if a.HasTitle() {
		return a.TitleDuration
	}
	return 0
}

// Paths lists the tracks in playback order.
func (a AudioTrack) Paths() []string {
	if a.HasTitle() {
		return []string{a.TitlePath, a.StoryPath}
	}
	return []string{a.StoryPath}
}

type LayerKind string

const (
	LayerBackground LayerKind = "background"
	LayerBanner     LayerKind = "banner"
	LayerCaption    LayerKind = "caption"
)

// Layer is one entry of the paint order with its time window.
type Layer struct {
	Kind  LayerKind
	Start float64
	End   float64
	// Caption is set for caption layers.
	Caption *caption.Clip
}

// Timeline is the complete description of one output video.
type Timeline struct {
	Width, Height int
	Background    *background.Background
	// Banner is nil when the job has none.
	Banner *banner.Overlay
	// Captions are on timeline time, ordered by start.
	Captions []*caption.Clip
	Audio    AudioTrack
}

func (t *Timeline) Total() float64 {
	return t.Audio.Total()
}

// Compose stacks background, banner and captions. Captions are given
// relative to the story track and are shifted by the title duration;
// captions starting after the end are dropped, ones running past it are
// cut.
func Compose(bg *background.Background, overlay *banner.Overlay, captions []*caption.Clip, audio AudioTrack, log logger.Logger) (*Timeline, error) {
	if bg == nil {
		return nil, errors.New("compose: background is required")
	}
	if !(audio.StoryDuration > 0) {
		return nil, errors.Errorf("compose: story audio has no duration (%v)", audio.StoryDuration)
	}

	total := audio.Total()
	if math.Abs(bg.Plan.Total-total) > durationTolerance {
		return nil, errors.Errorf("compose: background covers %.3fs but audio is %.3fs", bg.Plan.Total, total)
	}
	if overlay != nil && math.Abs(overlay.VisibleFor-audio.Offset()) > durationTolerance {
		return nil, errors.Errorf("compose: banner window %.3fs does not match title audio %.3fs",
			overlay.VisibleFor, audio.Offset())
	}

	offset := audio.Offset()
	shifted := make([]*caption.Clip, 0, len(captions))
	dropped := 0
	for _, c := range captions {
		start := offset + c.Start
		if start >= total {
			dropped++
			continue
		}
		clip := *c
		clip.Start = start
		if clip.End() > total {
			clip.Duration = total - start
		}
		shifted = append(shifted, &clip)
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Float64("total", total).Msg("captions start after the end of the audio")
	}

	t := &Timeline{
		Width:      bg.Width,
		Height:     bg.Height,
		Background: bg,
		Banner:     overlay,
		Captions:   shifted,
		Audio:      audio,
	}
	log.Info().
		Float64("total", total).
		Float64("title", audio.Offset()).
		Bool("banner", overlay != nil).
		Int("captions", len(shifted)).
		Msg("timeline composed")
	return t, nil
}

// Layers returns the paint order: background, banner, then captions.
func (t *Timeline) Layers() []Layer {
	layers := make([]Layer, 0, len(t.Captions)+2)
	layers = append(layers, Layer{Kind: LayerBackground, Start: 0, End: t.Total()})
	if t.Banner != nil {
		layers = append(layers, Layer{Kind: LayerBanner, Start: 0, End: t.Banner.VisibleFor})
	}
	for _, c := range t.Captions {
		layers = append(layers, Layer{Kind: LayerCaption, Start: c.Start, End: c.End(), Caption: c})
	}
	return layers
}

// DrawOverlays paints the banner and captions active at timeline time ts
// onto dst, which already holds the background frame. Pixels falling
// outside dst are clipped.
func (t *Timeline) DrawOverlays(dst *image.RGBA, ts float64) {
	if t.Banner != nil && t.Banner.Visible(ts) {
		img := t.Banner.Image
		r := img.Bounds().Add(image.Pt(t.Banner.X, t.Banner.Y))
		draw.Draw(dst, r, img, img.Bounds().Min, draw.Over)
	}
	for _, c := range t.Captions {
		if !c.Active(ts) {
			continue
		}
		img, at := c.FrameAt(ts - c.Start)
		r := img.Bounds().Sub(img.Bounds().Min).Add(at)
		draw.Draw(dst, r, img, img.Bounds().Min, draw.Over)
	}
}
