package banner

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// Overlay is the scaled banner and the window in which it is shown.
type Overlay struct {
	Source string
	Image  *image.RGBA
	// X, Y is the top-left corner on the frame.
	X, Y int
	// VisibleFor is the length of the opening segment in seconds.
	VisibleFor float64
}

// Visible reports whether the banner is on screen at timeline time t.
func (o *Overlay) Visible(t float64) bool {
	return t >= 0 && t < o.VisibleFor
}

func (o *Overlay) Size() image.Point {
	return o.Image.Bounds().Size()
}

// Fit scales an iw×ih banner to BannerWidthRatio of the frame width, then
// caps the height at BannerMaxHeightRatio of the frame height, recomputing
// the width so the aspect ratio holds.
func Fit(iw, ih, tw, th int) (int, int) {
	w := int(config.BannerWidthRatio * float64(tw))
	h := int(math.Round(float64(w) * float64(ih) / float64(iw)))

	if maxH := int(config.BannerMaxHeightRatio * float64(th)); h > maxH {
		h = maxH
		w = int(math.Round(float64(h) * float64(iw) / float64(ih)))
	}
	return max(w, 1), max(h, 1)
}

// Prepare loads the banner at path and fits it to a width×height frame.
// A missing file, an empty path or an empty opening window yields
// (nil, nil): the job renders without a banner. Undecodable files fail
// with types.ErrAsset.
func Prepare(path string, width, height int, visibleFor float64, log logger.Logger) (*Overlay, error) {
	if path == "" {
		log.Info().Msg("no banner given, rendering without banner")
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("banner not found, rendering without banner")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(types.ErrAsset, "banner %s: %v", path, err)
	}
	defer f.Close()

	if !(visibleFor > 0) {
		log.Info().Str("path", path).Msg("no opening segment, banner skipped")
		return nil, nil
	}

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(types.ErrAsset, "decoding banner %s: %v", path, err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.Wrapf(types.ErrAsset, "banner %s is empty", path)
	}

	w, h := Fit(b.Dx(), b.Dy(), width, height)
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)

	o := &Overlay{
		Source:     path,
		Image:      scaled,
		X:          (width - w) / 2,
		Y:          (height - h) / 2,
		VisibleFor: visibleFor,
	}
	log.Info().
		Str("path", path).
		Str("format", format).
		Int("width", w).
		Int("height", h).
		Int("y", o.Y).
		Float64("visible_for", visibleFor).
		Msg("banner prepared")
	return o, nil
}

// WritePNG stores the scaled banner with its alpha channel.
func (o *Overlay) WritePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create banner image")
	}
	if err := png.Encode(f, o.Image); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return errors.Wrap(f.Close(), "failed to close banner image")
}
