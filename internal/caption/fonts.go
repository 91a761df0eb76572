package caption

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
)

// FallbackFontName identifies the embedded face used when no configured
// font file can be loaded.
const FallbackFontName = "Go Bold (embedded)"

// LoadFont returns the first usable font in paths, or the embedded Go Bold
// face. The second return value names the source.
func LoadFont(paths []string, log logger.Logger) (*opentype.Font, string, error) {
	for _, path := range paths {
		f, err := parseFontFile(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("font candidate unusable")
			continue
		}
		return f, path, nil
	}

	log.Warn().
		Strs("tried", paths).
		Msg("no configured font could be loaded, falling back to embedded font")

	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to parse embedded font")
	}
	return f, FallbackFontName, nil
}

func parseFontFile(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttc", ".otc":
		coll, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, errors.Wrap(err, "invalid font collection")
		}
		return coll.Font(0)
	default:
		f, err := opentype.Parse(data)
		if err != nil {
			return nil, errors.Wrap(err, "invalid font file")
		}
		return f, nil
	}
}

// newFace builds a face at size pixels. At 72 DPI one point is one pixel.
func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %.0fpx face", size)
	}
	return face, nil
}
