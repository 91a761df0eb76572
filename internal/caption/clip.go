package caption

import (
	"image"
	"image/png"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Clip is one rendered caption on the output timeline. It is never mutated
// after RenderAll returns; animation is derived from local time only.
type Clip struct {
	Text  string
	Image *image.RGBA
	// X, Y is the resting top-left corner on the frame.
	X, Y int
	// Start and Duration are in seconds on the output timeline.
	Start    float64
	Duration float64

	BounceScale float64
	BouncePx    float64
}

func (c *Clip) End() float64 {
	return c.Start + c.Duration
}

// Active reports whether the clip is on screen at timeline time t.
func (c *Clip) Active(t float64) bool {
	return t >= c.Start && t < c.End()
}

func (c *Clip) Size() image.Point {
	return c.Image.Bounds().Size()
}

// FrameAt returns the image to draw at local clip time t and its top-left
// corner. The image is scaled about the caption's center and lifted by the
// bounce offset.
func (c *Clip) FrameAt(t float64) (image.Image, image.Point) {
	size := c.Size()
	lift := int(math.Round(Lift(t, c.BouncePx)))

	s := Scale(t, c.BounceScale)
	if s == 1.0 {
		return c.Image, image.Pt(c.X, c.Y-lift)
	}

	sw := int(math.Round(float64(size.X) * s))
	sh := int(math.Round(float64(size.Y) * s))
	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), c.Image, c.Image.Bounds(), draw.Src, nil)

	return scaled, image.Pt(c.X+(size.X-sw)/2, c.Y+(size.Y-sh)/2-lift)
}

// WritePNG stores the resting caption image.
func (c *Clip) WritePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create caption image")
	}
	if err := png.Encode(f, c.Image); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return errors.Wrap(f.Close(), "failed to close caption image")
}
