package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// VerticalAnchor decides where a caption sits on the frame.
type VerticalAnchor string

const (
	AnchorCenter VerticalAnchor = "center"
	AnchorBottom VerticalAnchor = "bottom"
)

// CaseTransform is applied to caption text before measuring and drawing.
type CaseTransform string

const (
	CaseNone  CaseTransform = "none"
	CaseUpper CaseTransform = "upper"
)

// BounceDuration is the length of the pop-in animation at the start of every caption.
const BounceDuration = 200 * time.Millisecond

// CaptionStyle enumerates every caption rendering option.
type CaptionStyle struct {
	// FontSize is the pixel size for regular words. Default 75.
	FontSize float64 `yaml:"font_size"`
	// EmphasisFontSize is used for words flagged as emphasis. Default 90.
	EmphasisFontSize float64 `yaml:"emphasis_font_size"`
	// Fill is the text color as #RRGGBB or #RRGGBBAA. Default #FFFFFF.
	Fill string `yaml:"fill"`
	// Stroke is the outline color. Default #000000.
	Stroke string `yaml:"stroke"`
	// StrokeWidth is the outline radius in pixels; 0 disables the outline. Default 4.
	StrokeWidth int `yaml:"stroke_width"`
	// BouncePx is how far above its resting place a caption starts. Default 8.
	BouncePx float64 `yaml:"bounce_px"`
	// BounceScale is the scale overshoot K at t=0 (scale starts at 1+K). Default 0.08.
	BounceScale float64 `yaml:"bounce_scale"`
	// VerticalAnchor places captions at screen center or above the bottom edge. Default center.
	VerticalAnchor VerticalAnchor `yaml:"vertical_anchor"`
	// BottomOffset is the distance from the bottom edge for the bottom anchor. Default 350.
	BottomOffset int `yaml:"bottom_offset"`
	// CaseTransform upper-cases captions when set to "upper". Default none.
	CaseTransform CaseTransform `yaml:"case_transform"`
	// FontPaths are tried in order; the embedded bold face is used when none load.
	FontPaths []string `yaml:"font_paths"`
}

var defaultFontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
	"/System/Library/Fonts/Arial.ttf",
	"/Windows/Fonts/arialbd.ttf",
}

var stylePresets = map[string]CaptionStyle{
	// Centered mixed-case word pops.
	"kinetic": {
		FontSize:         75,
		EmphasisFontSize: 90,
		Fill:             "#FFFFFF",
		Stroke:           "#000000",
		StrokeWidth:      4,
		BouncePx:         8,
		BounceScale:      0.08,
		VerticalAnchor:   AnchorCenter,
		BottomOffset:     350,
		CaseTransform:    CaseNone,
		FontPaths:        defaultFontPaths,
	},
	// One loud upper-case word at a time, above the bottom edge.
	"dyslexic": {
		FontSize:         85,
		EmphasisFontSize: 120,
		Fill:             "#FFFFFF",
		Stroke:           "#000000",
		StrokeWidth:      5,
		BouncePx:         12,
		BounceScale:      0.1,
		VerticalAnchor:   AnchorBottom,
		BottomOffset:     350,
		CaseTransform:    CaseUpper,
		FontPaths:        defaultFontPaths,
	},
}

// DefaultStyle returns the kinetic preset.
func DefaultStyle() CaptionStyle {
	s, _ := StylePreset("kinetic")
	return s
}

// StylePreset returns a copy of a named preset.
func StylePreset(name string) (CaptionStyle, error) {
	s, ok := stylePresets[strings.ToLower(name)]
	if !ok {
		return CaptionStyle{}, errors.Errorf("unknown caption style: %s (supported: %s)",
			name, strings.Join(StylePresetNames(), ", "))
	}
	s.FontPaths = append([]string(nil), s.FontPaths...)
	return s, nil
}

func StylePresetNames() []string {
	return []string{"dyslexic", "kinetic"}
}

// LoadStyleFile overlays the YAML file at path on base. Keys absent from the
// file keep the base value.
func LoadStyleFile(path string, base CaptionStyle) (CaptionStyle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrap(err, "failed to read style file")
	}

	style := base
	if err := yaml.Unmarshal(data, &style); err != nil {
		return base, errors.Wrapf(err, "failed to parse style file %s", path)
	}
	return style, style.Validate()
}

// Validate checks ranges and colors.
func (s CaptionStyle) Validate() error {
	if s.FontSize <= 0 || s.EmphasisFontSize <= 0 {
		return errors.New("font sizes must be positive")
	}
	if s.StrokeWidth < 0 {
		return errors.Errorf("stroke width must not be negative, got %d", s.StrokeWidth)
	}
	if s.BounceScale < 0 || s.BouncePx < 0 {
		return errors.New("bounce parameters must not be negative")
	}
	switch s.VerticalAnchor {
	case AnchorCenter, AnchorBottom:
	default:
		return errors.Errorf("unsupported vertical anchor: %s", s.VerticalAnchor)
	}
	switch s.CaseTransform {
	case CaseNone, CaseUpper:
	default:
		return errors.Errorf("unsupported case transform: %s", s.CaseTransform)
	}
	if _, err := ParseHexColor(s.Fill); err != nil {
		return errors.Wrap(err, "fill")
	}
	if _, err := ParseHexColor(s.Stroke); err != nil {
		return errors.Wrap(err, "stroke")
	}
	return nil
}

// Padding is the transparent margin around rendered caption text.
func (s CaptionStyle) Padding() int {
	return 2*s.StrokeWidth + 10
}

// ParseHexColor parses #RGB, #RRGGBB or #RRGGBBAA.
func ParseHexColor(v string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(v), "#")
	if len(hex) == 3 {
		hex = fmt.Sprintf("%c%c%c%c%c%c", hex[0], hex[0], hex[1], hex[1], hex[2], hex[2])
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, errors.Errorf("invalid color %q", v)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, errors.Errorf("invalid color %q", v)
	}
	return color.NRGBA{
		R: uint8(n >> 24),
		G: uint8(n >> 16),
		B: uint8(n >> 8),
		A: uint8(n),
	}, nil
}
