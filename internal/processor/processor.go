package processor

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/encoder"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// Pipeline stages, as reported in StageError.
const (
	StageValidation = "validation"
	StageAssets     = "assets"
	StageSetup      = "setup"
	StageAudio      = "audio"
	StageBackground = "background"
	StageBanner     = "banner"
	StageAlignment  = "alignment"
	StageCaptions   = "captions"
	StageCompose    = "compose"
	StageEncode     = "encode"
)

// Job is one video to generate. TitleAudioPath, BannerPath and
// AlignmentPath are optional.
type Job struct {
	ID             string          `yaml:"id"`
	TitleAudioPath string          `yaml:"title_audio"`
	StoryAudioPath string          `yaml:"story_audio"`
	BackgroundPath string          `yaml:"background"`
	BannerPath     string          `yaml:"banner"`
	OutputPath     string          `yaml:"output"`
	AlignmentPath  string          `yaml:"alignment"`
	Story          types.StoryData `yaml:"story"`
}

// Result describes a finished job.
type Result struct {
	JobID      string
	OutputPath string
	Size       int64
	Duration   float64
	Captions   int
	Banner     bool
	Suspicious bool
	Elapsed    time.Duration
}

// MediaProber measures inputs. *ffmpeg.Processor implements it.
type MediaProber interface {
	AudioDuration(path string) (float64, error)
	GetVideoMetadata(path string) (*ffmpegWrap.VideoMetadata, error)
}

// encoderFactory builds the encoder for a job-scoped work dir.
type encoderFactory func(workDir string) (encoder.Encoder, error)

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-_.]`)
	repeatedSep = regexp.MustCompile(`_+`)
)

// sanitizeFilename makes a job id safe to embed in a directory name.
func sanitizeFilename(name string) string {
	sanitized := unsafeChars.ReplaceAllString(name, "_")
	sanitized = repeatedSep.ReplaceAllString(sanitized, "_")
	return strings.Trim(sanitized, "_")
}

// ensureOutputDir creates the parent directory of the output file.
func ensureOutputDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return errors.Wrapf(os.MkdirAll(dir, 0755), "failed to create output directory %s", dir)
}

// checkFile fails with types.ErrAsset unless path is a readable regular file.
func checkFile(kind, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.Wrapf(types.ErrAsset, "%s path is required", kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(types.ErrAsset, "%s %s: %v", kind, path, err)
	}
	if info.IsDir() {
		return errors.Wrapf(types.ErrAsset, "%s %s is a directory", kind, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(types.ErrAsset, "%s %s is not readable: %v", kind, path, err)
	}
	return f.Close()
}
