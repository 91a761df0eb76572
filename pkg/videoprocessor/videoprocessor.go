// Package videoprocessor is the public entry point for generating
// narrated story videos.
package videoprocessor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/align"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/platform"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/processor"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/progress"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

type (
	Job        = processor.Job
	Result     = processor.Result
	Manifest   = processor.Manifest
	JobOutcome = processor.JobOutcome
)

// Stages reported by the command line in addition to the pipeline stages.
const (
	StageValidation = processor.StageValidation
	StageAlignment  = processor.StageAlignment
	StageBatch      = "batch"
)

// Options carries the process configuration and job-independent choices.
type Options struct {
	Config *config.Config
	Style  config.CaptionStyle
	// Progress receives PROGRESS lines; nil disables them.
	Progress io.Writer
	Log      logger.Logger
}

func (o Options) generator() (*processor.Generator, error) {
	if o.Config == nil {
		return nil, errors.New("configuration is required")
	}
	if err := o.Config.Validate(); err != nil {
		return nil, err
	}
	var reporter *progress.Reporter
	if o.Progress != nil {
		reporter = progress.NewReporter(o.Progress)
	}
	return processor.NewGenerator(o.Config, o.Style, reporter, o.Log), nil
}

// GenerateVideo runs one job to completion.
func GenerateVideo(ctx context.Context, job Job, opts Options) (*Result, error) {
	gen, err := opts.generator()
	if err != nil {
		return nil, types.AtStage(processor.StageValidation, err)
	}
	return gen.Generate(ctx, job)
}

// RunBatch runs every job of the manifest at path. concurrency overrides
// the manifest value when positive.
func RunBatch(ctx context.Context, manifestPath string, concurrency int, opts Options) ([]JobOutcome, error) {
	m, err := processor.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if concurrency > 0 {
		m.Concurrency = concurrency
	}
	gen, err := opts.generator()
	if err != nil {
		return nil, err
	}
	return processor.NewBatchRunner(gen).Run(ctx, m)
}

// AlignOptions selects how AlignAudio produces timings.
type AlignOptions struct {
	AudioPath  string
	Text       string
	OutputPath string
	Kind       types.AlignerKind
}

// AlignAudio aligns text against audio and writes the sidecar file read
// by the sidecar aligner. It returns the words written.
func AlignAudio(ctx context.Context, ao AlignOptions, cfg *config.Config, log logger.Logger) ([]types.WordTiming, error) {
	if strings.TrimSpace(ao.Text) == "" {
		return nil, errors.Wrap(types.ErrValidation, "text is required")
	}
	if ao.OutputPath == "" {
		return nil, errors.Wrap(types.ErrValidation, "output path is required")
	}
	if ao.Kind == types.AlignerSidecar {
		return nil, errors.Wrap(types.ErrValidation, "sidecar aligner cannot produce a sidecar")
	}

	workDir, err := os.MkdirTemp(cfg.TempRoot, config.TempDirPrefix+"align_")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp directory")
	}
	defer os.RemoveAll(workDir)

	aligner, err := align.New(align.Options{
		Kind:           ao.Kind,
		Command:        cfg.AlignerCommand,
		WorkDir:        workDir,
		Timeout:        cfg.AlignTimeout,
		WordsPerSecond: cfg.WordsPerSecond,
		Prober:         ffmpegWrap.NewProcessor(cfg.FFmpegPath, log),
	}, log)
	if err != nil {
		return nil, err
	}

	words, err := aligner.Align(ctx, ao.AudioPath, ao.Text)
	if err != nil {
		return nil, err
	}
	words = align.Normalize(words, log)
	if err := align.WriteSidecar(ao.OutputPath, words); err != nil {
		return nil, err
	}
	log.Info().Str("output", ao.OutputPath).Int("words", len(words)).Msg("alignment written")
	return words, nil
}

// GetSupportedPlatforms returns a list of supported platforms
func GetSupportedPlatforms() []string {
	return platform.GetSupportedPlatforms()
}

// PlatformInfo returns a one-line summary of a platform's encode profile.
func PlatformInfo(name string) (string, error) {
	p, err := platform.Get(name)
	if err != nil {
		return "", err
	}
	w, h := p.GetMaxDimensions()
	profile, level := p.GetProfile()
	return fmt.Sprintf("%-16s %dx%d  %s@%s  %s@%s  preset=%s  profile=%s/%s  max=%ds/%dMB",
		p.GetName(), w, h,
		p.GetVideoCodec(), p.GetVideoBitrate(),
		p.GetAudioCodec(), p.GetAudioBitrate(),
		p.GetPreset(), profile, level,
		p.GetMaxDuration(), p.GetMaxFileSize()/(1024*1024)), nil
}
