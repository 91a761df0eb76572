package processor

import (
	"context"
	"image"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/align"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/background"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/banner"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/caption"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/compositor"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/encoder"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/platform"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/progress"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// Generator runs the story video pipeline for one job at a time. It holds
// no per-job state and may be shared by concurrent jobs.
type Generator struct {
	cfg        *config.Config
	style      config.CaptionStyle
	prober     MediaProber
	newEncoder encoderFactory
	progress   *progress.Reporter
	log        logger.Logger
}

// NewGenerator creates a generator backed by the ffmpeg binary from cfg.
func NewGenerator(cfg *config.Config, style config.CaptionStyle, reporter *progress.Reporter, log logger.Logger) *Generator {
	proc := ffmpegWrap.NewProcessor(cfg.FFmpegPath, log)
	return &Generator{
		cfg:    cfg,
		style:  style,
		prober: proc,
		newEncoder: func(workDir string) (encoder.Encoder, error) {
			return encoder.New(cfg.Backend, proc, workDir, log)
		},
		progress: reporter,
		log:      log,
	}
}

// withProgress returns a copy reporting to r.
func (g *Generator) withProgress(r *progress.Reporter) *Generator {
	c := *g
	c.progress = r
	return &c
}

// Generate validates the job, prepares every layer and encodes the
// output. Failures are *types.StageError values naming the stage. The
// job's temporary directory is removed on every path.
func (g *Generator) Generate(ctx context.Context, job Job) (*Result, error) {
	started := time.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := g.log.With().Str("job_id", job.ID).Logger()

	if err := job.Story.Validate(); err != nil {
		return nil, types.AtStage(StageValidation, err)
	}
	if job.OutputPath == "" {
		return nil, types.AtStage(StageValidation, errors.Wrap(types.ErrValidation, "output path is required"))
	}
	target, params, err := g.encodeParams()
	if err != nil {
		return nil, types.AtStage(StageValidation, err)
	}

	g.progress.Report(progress.LoadingAssets, "loading_assets")
	if err := checkFile("story audio", job.StoryAudioPath); err != nil {
		return nil, types.AtStage(StageAssets, err)
	}
	if err := checkFile("background", job.BackgroundPath); err != nil {
		return nil, types.AtStage(StageAssets, err)
	}
	if job.TitleAudioPath != "" {
		if err := checkFile("title audio", job.TitleAudioPath); err != nil {
			log.Warn().Err(err).Msg("title audio unusable, continuing without opening segment")
			job.TitleAudioPath = ""
		}
	}

	workDir, err := os.MkdirTemp(g.cfg.TempRoot, config.TempDirPrefix+sanitizeFilename(job.ID)+"_")
	if err != nil {
		return nil, types.AtStage(StageSetup, errors.Wrap(err, "failed to create temp directory"))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn().Err(err).Str("dir", workDir).Msg("failed to remove temp directory")
		}
	}()
	log.Debug().Str("dir", workDir).Msg("job temp directory created")

	audio, err := g.audioTrack(job, log)
	if err != nil {
		return nil, types.AtStage(StageAudio, err)
	}
	total := audio.Total()
	if limit := target.GetMaxDuration(); total > float64(limit) {
		log.Warn().Float64("total", total).Int("max", limit).Str("platform", target.GetName()).
			Msg("video is longer than the platform accepts")
	}
	frame := image.Pt(config.OutputWidth, config.OutputHeight)

	bg, err := background.NewPreparer(g.prober, log).Prepare(job.BackgroundPath, frame.X, frame.Y, total)
	if err != nil {
		return nil, types.AtStage(StageBackground, err)
	}
	g.progress.Report(progress.BackgroundPrepared, "background_prepared")

	var overlay *banner.Overlay
	if job.BannerPath != "" {
		overlay, err = banner.Prepare(job.BannerPath, frame.X, frame.Y, audio.Offset(), log)
		if err != nil {
			return nil, types.AtStage(StageBanner, err)
		}
	}
	g.progress.Report(progress.BannerPrepared, "banner_prepared")

	words, err := g.align(ctx, job, workDir, log)
	if err != nil {
		return nil, types.AtStage(StageAlignment, err)
	}

	renderer, err := caption.NewRenderer(g.style, frame, log)
	if err != nil {
		return nil, types.AtStage(StageCaptions, err)
	}
	defer renderer.Close()
	clips := renderer.RenderAll(words)
	g.progress.Report(progress.CaptionsPrepared, "captions_prepared")

	tl, err := compositor.Compose(bg, overlay, clips, audio, log)
	if err != nil {
		return nil, types.AtStage(StageCompose, err)
	}
	g.progress.Report(progress.Compositing, "compositing")

	if err := ensureOutputDir(job.OutputPath); err != nil {
		return nil, types.AtStage(StageEncode, err)
	}
	enc, err := g.newEncoder(workDir)
	if err != nil {
		return nil, types.AtStage(StageEncode, err)
	}
	out, err := enc.Encode(ctx, tl, job.OutputPath, params)
	if err != nil {
		return nil, types.AtStage(StageEncode, err)
	}

	if limit := target.GetMaxFileSize(); out.Size > limit {
		log.Warn().Int64("size", out.Size).Int64("max", limit).Str("platform", target.GetName()).
			Msg("video is larger than the platform accepts")
	}
	if out.Suspicious {
		g.progress.Report(progress.Complete, "complete_suspicious_size")
	} else {
		g.progress.Report(progress.Complete, "complete")
	}

	res := &Result{
		JobID:      job.ID,
		OutputPath: out.Path,
		Size:       out.Size,
		Duration:   total,
		Captions:   len(tl.Captions),
		Banner:     tl.Banner != nil,
		Suspicious: out.Suspicious,
		Elapsed:    time.Since(started),
	}
	log.Info().
		Str("output", res.OutputPath).
		Float64("duration", res.Duration).
		Int("captions", res.Captions).
		Bool("banner", res.Banner).
		Dur("elapsed", res.Elapsed).
		Msg("video generated")
	return res, nil
}

func (g *Generator) encodeParams() (platform.Platform, encoder.Params, error) {
	p, err := platform.Get(g.cfg.Platform)
	if err != nil {
		return nil, encoder.Params{}, errors.Wrap(types.ErrValidation, err.Error())
	}
	return p, encoder.ParamsFor(p, g.cfg.EncodeTimeout), nil
}

// audioTrack measures the narration. A title track that cannot be
// measured is dropped with a warning; the story track is required.
func (g *Generator) audioTrack(job Job, log logger.Logger) (compositor.AudioTrack, error) {
	story, err := g.prober.AudioDuration(job.StoryAudioPath)
	if err != nil {
		return compositor.AudioTrack{}, errors.Wrapf(types.ErrAsset, "story audio %s: %v", job.StoryAudioPath, err)
	}
	if !(story > 0) {
		return compositor.AudioTrack{}, errors.Wrapf(types.ErrAsset, "story audio %s has no duration", job.StoryAudioPath)
	}
	track := compositor.AudioTrack{StoryPath: job.StoryAudioPath, StoryDuration: story}

	if job.TitleAudioPath != "" {
		title, err := g.prober.AudioDuration(job.TitleAudioPath)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("path", job.TitleAudioPath).Msg("failed to load title audio, continuing without it")
		case !(title > 0):
			log.Warn().Str("path", job.TitleAudioPath).Msg("title audio is empty, continuing without it")
		default:
			track.TitlePath = job.TitleAudioPath
			track.TitleDuration = title
		}
	}

	log.Info().
		Float64("title", track.TitleDuration).
		Float64("story", track.StoryDuration).
		Float64("total", track.Total()).
		Msg("audio measured")
	return track, nil
}

// align produces story-relative word timings for the narrated story.
// Intermediate files go to workDir.
func (g *Generator) align(ctx context.Context, job Job, workDir string, log logger.Logger) ([]types.WordTiming, error) {
	aligner, err := align.New(align.Options{
		Kind:           g.cfg.Aligner,
		SidecarPath:    job.AlignmentPath,
		Command:        g.cfg.AlignerCommand,
		WorkDir:        workDir,
		Timeout:        g.cfg.AlignTimeout,
		WordsPerSecond: g.cfg.WordsPerSecond,
		Prober:         g.prober,
	}, log)
	if err != nil {
		return nil, err
	}

	words, err := aligner.Align(ctx, job.StoryAudioPath, job.Story.NarratedStory())
	if err != nil {
		return nil, err
	}
	return align.Normalize(words, log), nil
}
