package caption

import (
	"image"
	"math"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// Renderer turns words into caption clips for one job. It is not safe for
// concurrent use.
type Renderer struct {
	style  config.CaptionStyle
	frame  image.Point
	font   *opentype.Font
	faces  map[float64]font.Face
	fill   *image.Uniform
	stroke *image.Uniform
	log    logger.Logger
}

// NewRenderer loads the style's font (falling back to the embedded face)
// and validates its colors. frame is the output resolution.
func NewRenderer(style config.CaptionStyle, frame image.Point, log logger.Logger) (*Renderer, error) {
	if err := style.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid caption style")
	}
	fill, _ := config.ParseHexColor(style.Fill)
	stroke, _ := config.ParseHexColor(style.Stroke)

	f, source, err := LoadFont(style.FontPaths, log)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("font", source).Msg("caption font loaded")

	return &Renderer{
		style:  style,
		frame:  frame,
		font:   f,
		faces:  make(map[float64]font.Face),
		fill:   image.NewUniform(fill),
		stroke: image.NewUniform(stroke),
		log:    log,
	}, nil
}

// Close releases the cached font faces.
func (r *Renderer) Close() error {
	for size, face := range r.faces {
		face.Close()
		delete(r.faces, size)
	}
	return nil
}

func (r *Renderer) face(size float64) (font.Face, error) {
	if face, ok := r.faces[size]; ok {
		return face, nil
	}
	face, err := newFace(r.font, size)
	if err != nil {
		return nil, err
	}
	r.faces[size] = face
	return face, nil
}

// DisplayText applies the style's case transform.
func (r *Renderer) DisplayText(text string) string {
	if r.style.CaseTransform == config.CaseUpper {
		return strings.ToUpper(text)
	}
	return text
}

// RenderWord draws word onto a transparent canvas with a uniform outline
// and places it on the frame. The clip starts at word.Start; callers shift
// it onto the output timeline.
func (r *Renderer) RenderWord(word types.WordTiming) (*Clip, error) {
	text := r.DisplayText(strings.TrimSpace(word.Text))
	if text == "" {
		return nil, errors.New("empty caption text")
	}

	size := r.style.FontSize
	if word.Emphasis {
		size = r.style.EmphasisFontSize
	}
	face, err := r.face(size)
	if err != nil {
		return nil, err
	}

	bounds, advance := font.BoundString(face, text)
	textW := (bounds.Max.X - bounds.Min.X).Ceil()
	textH := (bounds.Max.Y - bounds.Min.Y).Ceil()
	if textW <= 0 {
		textW = advance.Ceil()
	}
	if textW <= 0 || textH <= 0 {
		return nil, errors.Errorf("caption %q has no visible glyphs", text)
	}

	pad := r.style.Padding()
	img := image.NewRGBA(image.Rect(0, 0, textW+2*pad, textH+2*pad))
	origin := fixed.Point26_6{
		X: fixed.I(pad) - bounds.Min.X,
		Y: fixed.I(pad) - bounds.Min.Y,
	}

	d := &font.Drawer{Dst: img, Face: face}
	sw := r.style.StrokeWidth
	if sw > 0 {
		d.Src = r.stroke
		for dx := -sw; dx <= sw; dx++ {
			for dy := -sw; dy <= sw; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}
				d.Dot = origin.Add(fixed.P(dx, dy))
				d.DrawString(text)
			}
		}
	}
	d.Src = r.fill
	d.Dot = origin
	d.DrawString(text)

	x, y := r.place(img.Bounds().Dx(), img.Bounds().Dy())
	return &Clip{
		Text:        text,
		Image:       img,
		X:           x,
		Y:           y,
		Start:       word.Start,
		Duration:    word.Duration(),
		BounceScale: r.style.BounceScale,
		BouncePx:    r.style.BouncePx,
	}, nil
}

// place returns the resting top-left corner for a w×h caption image.
func (r *Renderer) place(w, h int) (int, int) {
	x := (r.frame.X - w) / 2
	switch r.style.VerticalAnchor {
	case config.AnchorBottom:
		return x, r.frame.Y - h - r.style.BottomOffset
	default:
		return x, (r.frame.Y - h) / 2
	}
}

// RenderAll renders words in timestamp order. Clips keep the word's own
// start; the compositor moves them onto the output timeline. Words that
// fail to render are logged and skipped.
func (r *Renderer) RenderAll(words []types.WordTiming) []*Clip {
	clips := make([]*Clip, 0, len(words))
	for i, w := range words {
		clip, err := r.RenderWord(w)
		if err != nil {
			r.log.Warn().Err(err).Int("index", i).Str("word", w.Text).Msg("skipping caption")
			continue
		}
		clips = append(clips, clip)
	}
	if len(clips) > 0 {
		r.log.Info().
			Int("captions", len(clips)).
			Int("skipped", len(words)-len(clips)).
			Float64("first_start", clips[0].Start).
			Float64("last_end", roundMillis(clips[len(clips)-1].End())).
			Msg("rendered captions")
	}
	return clips
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
