package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

const (
	// Output resolution (9:16 vertical)
	OutputWidth  = 1080
	OutputHeight = 1920
	FrameRate    = 30

	// Banner geometry relative to the output frame
	BannerWidthRatio     = 0.9
	BannerMaxHeightRatio = 0.3

	// Anything smaller is reported as suspicious for a multi-second HD vertical video
	MinPlausibleOutputSize = 200 * 1024

	DefaultEncodeTimeout = 300 * time.Second
	DefaultAlignTimeout  = 120 * time.Second

	// Base speaking rate used by the heuristic aligner
	DefaultWordsPerSecond = 2.2

	DefaultPlatform = "tiktok"

	// Temporary directory prefix
	TempDirPrefix = "story_video_"

	// NoneArg marks an absent optional positional argument
	NoneArg = "NONE"
)

// Config is resolved once at process start and handed to every job.
// FFmpegPath only selects the encoder binary; ffprobe is always looked up
// on PATH.
type Config struct {
	AppEnv         string
	TempRoot       string
	FFmpegPath     string
	Backend        types.Backend
	Aligner        types.AlignerKind
	AlignerCommand []string
	WordsPerSecond float64
	Platform       string
	EncodeTimeout  time.Duration
	AlignTimeout   time.Duration
	Verbose        bool
}

// Load reads .env files (if any) and the environment, applying defaults.
func Load() (*Config, error) {
	// Missing env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	c := &Config{
		AppEnv:         getenv("APP_ENV", "production"),
		TempRoot:       getenv("STORY_VIDEO_TEMP_DIR", os.TempDir()),
		FFmpegPath:     getenv("FFMPEG_PATH", "ffmpeg"),
		Backend:        types.Backend(getenv("STORY_VIDEO_BACKEND", string(types.BackendFilterGraph))),
		Aligner:        types.AlignerKind(getenv("STORY_VIDEO_ALIGNER", string(types.AlignerSidecar))),
		AlignerCommand: strings.Fields(getenv("ALIGN_ENGINE_CMD", "whisper_timestamps {audio}")),
		Platform:       getenv("STORY_VIDEO_PLATFORM", DefaultPlatform),
		WordsPerSecond: DefaultWordsPerSecond,
		EncodeTimeout:  DefaultEncodeTimeout,
		AlignTimeout:   DefaultAlignTimeout,
	}

	if v := os.Getenv("ALIGN_WPS"); v != "" {
		wps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid ALIGN_WPS")
		}
		c.WordsPerSecond = wps
	}
	if v := os.Getenv("STORY_VIDEO_ENCODE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrap(err, "invalid STORY_VIDEO_ENCODE_TIMEOUT")
		}
		c.EncodeTimeout = d
	}
	if v := os.Getenv("ALIGN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrap(err, "invalid ALIGN_TIMEOUT")
		}
		c.AlignTimeout = d
	}
	c.Verbose = c.AppEnv == "development"

	return c, c.Validate()
}

// Validate rejects unknown backends, aligners and non-positive limits.
func (c *Config) Validate() error {
	switch c.Backend {
	case types.BackendFilterGraph, types.BackendFrames:
	default:
		return errors.Errorf("unsupported backend: %s (supported: %s, %s)",
			c.Backend, types.BackendFilterGraph, types.BackendFrames)
	}

	switch c.Aligner {
	case types.AlignerSidecar, types.AlignerHeuristic:
	case types.AlignerEngine:
		if len(c.AlignerCommand) == 0 {
			return errors.New("engine aligner requires ALIGN_ENGINE_CMD")
		}
	default:
		return errors.Errorf("unsupported aligner: %s (supported: %s, %s, %s)",
			c.Aligner, types.AlignerSidecar, types.AlignerHeuristic, types.AlignerEngine)
	}

	if c.WordsPerSecond <= 0 {
		return errors.Errorf("words per second must be positive, got %v", c.WordsPerSecond)
	}
	if c.EncodeTimeout <= 0 {
		return errors.Errorf("encode timeout must be positive, got %v", c.EncodeTimeout)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
