package caption

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/gobold"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

var frame = image.Pt(config.OutputWidth, config.OutputHeight)

func testStyle(preset string) config.CaptionStyle {
	s, err := config.StylePreset(preset)
	if err != nil {
		panic(err)
	}
	s.FontPaths = []string{"/nonexistent/font.ttf"}
	return s
}

func newTestRenderer(t *testing.T, style config.CaptionStyle) *Renderer {
	t.Helper()
	r, err := NewRenderer(style, frame, logger.Nop())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestLoadFont(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.ttf")
	os.WriteFile(garbage, []byte("not a font"), 0644)
	good := filepath.Join(dir, "gobold.ttf")
	os.WriteFile(good, gobold.TTF, 0644)

	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{name: "no candidates", paths: nil, want: FallbackFontName},
		{name: "missing and broken", paths: []string{filepath.Join(dir, "nope.ttf"), garbage}, want: FallbackFontName},
		{name: "first usable wins", paths: []string{garbage, good}, want: good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, source, err := LoadFont(tt.paths, logger.Nop())
			if err != nil {
				t.Fatal(err)
			}
			if f == nil || source != tt.want {
				t.Errorf("source = %q, want %q", source, tt.want)
			}
		})
	}
}

func TestRenderWordDeterministic(t *testing.T) {
	word := types.WordTiming{Text: "Deterministic", Start: 1, End: 2}
	shared := newTestRenderer(t, testStyle("kinetic"))

	tests := []struct {
		name   string
		second *Renderer
	}{
		{name: "separate renderers", second: newTestRenderer(t, testStyle("kinetic"))},
		{name: "cached face", second: shared},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := shared.RenderWord(word)
			if err != nil {
				t.Fatal(err)
			}
			b, err := tt.second.RenderWord(word)
			if err != nil {
				t.Fatal(err)
			}
			if a.Image == b.Image {
				t.Fatal("clips share a pixel buffer")
			}
			if a.Image.Bounds() != b.Image.Bounds() || !bytes.Equal(a.Image.Pix, b.Image.Pix) {
				t.Fatal("rendering the same word twice produced different pixels")
			}
			if a.X != b.X || a.Y != b.Y {
				t.Fatalf("placement differs: (%d,%d) vs (%d,%d)", a.X, a.Y, b.X, b.Y)
			}
		})
	}
}

func TestRenderWordOutlineAndPadding(t *testing.T) {
	style := testStyle("kinetic")
	clip, err := newTestRenderer(t, style).RenderWord(types.WordTiming{Text: "Outline", Start: 0, End: 1})
	if err != nil {
		t.Fatal(err)
	}

	img := clip.Image
	b := img.Bounds()
	margin := style.Padding() - style.StrokeWidth
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := 0; y < margin; y++ {
			if img.RGBAAt(x, y).A != 0 || img.RGBAAt(x, b.Max.Y-1-y).A != 0 {
				t.Fatalf("padding not transparent at column %d", x)
			}
		}
	}

	var sawFill, sawStroke bool
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch img.RGBAAt(x, y) {
			case color.RGBA{255, 255, 255, 255}:
				sawFill = true
			case color.RGBA{0, 0, 0, 255}:
				sawStroke = true
			}
		}
	}
	if !sawFill || !sawStroke {
		t.Errorf("fill seen %v, stroke seen %v; want both", sawFill, sawStroke)
	}
}

func TestRenderWordEmphasisIsLarger(t *testing.T) {
	r := newTestRenderer(t, testStyle("kinetic"))
	normal, _ := r.RenderWord(types.WordTiming{Text: "word", Start: 0, End: 1})
	loud, _ := r.RenderWord(types.WordTiming{Text: "word", Start: 0, End: 1, Emphasis: true})
	if loud.Size().Y <= normal.Size().Y || loud.Size().X <= normal.Size().X {
		t.Errorf("emphasis %v should be larger than normal %v", loud.Size(), normal.Size())
	}
}

func TestRenderWordPlacement(t *testing.T) {
	tests := []struct {
		preset   string
		wantY    func(h int) int
		wantText string
	}{
		{preset: "kinetic", wantY: func(h int) int { return (config.OutputHeight - h) / 2 }, wantText: "placed"},
		{preset: "dyslexic", wantY: func(h int) int { return config.OutputHeight - h - 350 }, wantText: "PLACED"},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			clip, err := newTestRenderer(t, testStyle(tt.preset)).RenderWord(types.WordTiming{Text: "placed", Start: 0, End: 1})
			if err != nil {
				t.Fatal(err)
			}
			size := clip.Size()
			if want := (config.OutputWidth - size.X) / 2; clip.X != want {
				t.Errorf("X = %d, want %d", clip.X, want)
			}
			if want := tt.wantY(size.Y); clip.Y != want {
				t.Errorf("Y = %d, want %d", clip.Y, want)
			}
			if clip.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", clip.Text, tt.wantText)
			}
		})
	}
}

func TestRenderAll(t *testing.T) {
	r := newTestRenderer(t, testStyle("kinetic"))
	words := []types.WordTiming{
		{Text: "one", Start: 0, End: 0.5},
		{Text: "   ", Start: 0.5, End: 0.7},
		{Text: "two", Start: 0.7, End: 1.2},
	}
	clips := r.RenderAll(words)
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}
	// Story-relative; the compositor adds the title offset.
	if clips[0].Start != 0 || clips[1].Start != 0.7 {
		t.Errorf("starts = %v, %v; want 0, 0.7", clips[0].Start, clips[1].Start)
	}
	if math.Abs(clips[1].Duration-0.5) > 1e-9 {
		t.Errorf("duration = %v, want 0.5", clips[1].Duration)
	}

	if clips := r.RenderAll(nil); len(clips) != 0 {
		t.Errorf("no words should give no clips, got %d", len(clips))
	}
}

func TestScaleAndLift(t *testing.T) {
	tests := []struct {
		t         float64
		wantScale float64
		wantLift  float64
	}{
		{t: 0, wantScale: 1.08, wantLift: 8},
		{t: 0.1, wantScale: 1.04, wantLift: 4},
		{t: 0.2, wantScale: 1, wantLift: 0},
		{t: 3, wantScale: 1, wantLift: 0},
		{t: -1, wantScale: 1, wantLift: 0},
	}
	for _, tt := range tests {
		if got := Scale(tt.t, 0.08); math.Abs(got-tt.wantScale) > 1e-9 {
			t.Errorf("Scale(%v) = %v, want %v", tt.t, got, tt.wantScale)
		}
		if got := Lift(tt.t, 8); math.Abs(got-tt.wantLift) > 1e-9 {
			t.Errorf("Lift(%v) = %v, want %v", tt.t, got, tt.wantLift)
		}
	}

	if got := ScaleExpr(0.08); got != "if(lt(t,0.200),1+0.0800*(1-t/0.200),1)" {
		t.Errorf("ScaleExpr = %s", got)
	}
	if got := LiftExpr(8, "t-1.5"); got != "if(lt(t-1.5,0.200),8.000*(1-(t-1.5)/0.200),0)" {
		t.Errorf("LiftExpr = %s", got)
	}
}

func TestClipFrameAt(t *testing.T) {
	clip, err := newTestRenderer(t, testStyle("kinetic")).RenderWord(types.WordTiming{Text: "bounce", Start: 4, End: 5})
	if err != nil {
		t.Fatal(err)
	}
	size := clip.Size()

	img, at := clip.FrameAt(0)
	got := img.Bounds().Size()
	if got.X != int(math.Round(float64(size.X)*1.08)) || got.Y != int(math.Round(float64(size.Y)*1.08)) {
		t.Errorf("scaled size = %v, want 1.08 × %v", got, size)
	}
	if at.Y >= clip.Y {
		t.Errorf("caption should start lifted above rest position: y=%d rest=%d", at.Y, clip.Y)
	}

	img, at = clip.FrameAt(0.5)
	if img != image.Image(clip.Image) || at != image.Pt(clip.X, clip.Y) {
		t.Errorf("after the bounce the resting image is used unchanged")
	}

	if !clip.Active(4) || clip.Active(5) || clip.Active(3.99) {
		t.Error("Active window should be [start, end)")
	}

	// Evaluating out of order gives the same answer.
	a, pa := clip.FrameAt(0.05)
	clip.FrameAt(0.15)
	b, pb := clip.FrameAt(0.05)
	if pa != pb || !bytes.Equal(a.(*image.RGBA).Pix, b.(*image.RGBA).Pix) {
		t.Error("FrameAt depends on call history")
	}
}

func TestClipWritePNG(t *testing.T) {
	clip, err := newTestRenderer(t, testStyle("kinetic")).RenderWord(types.WordTiming{Text: "png", Start: 0, End: 1})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "word.png")
	if err := clip.WritePNG(path); err != nil {
		t.Fatal(err)
	}
	f, _ := os.Open(path)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil || format != "png" || cfg.Width != clip.Size().X {
		t.Errorf("DecodeConfig = %+v %s %v", cfg, format, err)
	}
}
