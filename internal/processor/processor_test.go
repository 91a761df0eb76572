package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/align"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/compositor"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/encoder"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/progress"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

type fakeProber struct {
	audio map[string]float64
	video *ffmpegWrap.VideoMetadata
	calls int
	mu    sync.Mutex
}

func (f *fakeProber) AudioDuration(path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.audio[path]
	if !ok {
		return 0, errors.Errorf("cannot decode %s", path)
	}
	return d, nil
}

func (f *fakeProber) GetVideoMetadata(path string) (*ffmpegWrap.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.video == nil {
		return nil, errors.Errorf("cannot decode %s", path)
	}
	return f.video, nil
}

// fakeEncoder records the timeline and writes size bytes to the output.
type fakeEncoder struct {
	mu        sync.Mutex
	size      int
	err       error
	timelines []*compositor.Timeline
	workDirs  []string
}

func (f *fakeEncoder) factory(workDir string) (encoder.Encoder, error) {
	f.mu.Lock()
	f.workDirs = append(f.workDirs, workDir)
	f.mu.Unlock()
	return f, nil
}

func (f *fakeEncoder) Encode(_ context.Context, tl *compositor.Timeline, output string, params encoder.Params) (*encoder.Result, error) {
	f.mu.Lock()
	f.timelines = append(f.timelines, tl)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(output, make([]byte, f.size), 0644); err != nil {
		return nil, err
	}
	return &encoder.Result{
		Path:       output,
		Size:       int64(f.size),
		Backend:    types.BackendFilterGraph,
		Suspicious: int64(f.size) < params.MinPlausibleSize,
	}, nil
}

type fixture struct {
	t        *testing.T
	dir      string
	tempRoot string
	cfg      *config.Config
	prober   *fakeProber
	enc      *fakeEncoder
	out      *bytes.Buffer
	job      Job
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("media"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeBanner(t *testing.T, path string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 100))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 0})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	tempRoot := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tempRoot, 0755); err != nil {
		t.Fatal(err)
	}

	title := touch(t, filepath.Join(dir, "title.mp3"))
	story := touch(t, filepath.Join(dir, "story.mp3"))
	bg := touch(t, filepath.Join(dir, "minecraft.mp4"))
	ban := writeBanner(t, filepath.Join(dir, "banner.png"))
	words := filepath.Join(dir, "words.json")
	err := align.WriteSidecar(words, []types.WordTiming{
		{Text: "hello", Start: 0.5, End: 1.0},
		{Text: "world", Start: 1.0, End: 1.5, Emphasis: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{
		t:        t,
		dir:      dir,
		tempRoot: tempRoot,
		cfg: &config.Config{
			TempRoot:       tempRoot,
			Backend:        types.BackendFilterGraph,
			Aligner:        types.AlignerSidecar,
			WordsPerSecond: config.DefaultWordsPerSecond,
			Platform:       "tiktok",
			EncodeTimeout:  time.Minute,
			AlignTimeout:   time.Minute,
		},
		prober: &fakeProber{
			audio: map[string]float64{title: 2.0, story: 4.0},
			video: &ffmpegWrap.VideoMetadata{Duration: 2.0, Width: 1920, Height: 1080, Codec: "h264"},
		},
		enc: &fakeEncoder{size: 300 * 1024},
		out: &bytes.Buffer{},
		job: Job{
			ID:             "job-1",
			TitleAudioPath: title,
			StoryAudioPath: story,
			BackgroundPath: bg,
			BannerPath:     ban,
			OutputPath:     filepath.Join(dir, "out", "video.mp4"),
			AlignmentPath:  words,
			Story: types.StoryData{
				Title:     "AITA for looping my background video?",
				Story:     "hello world [BREAK] not narrated",
				Subreddit: "r/AmItheAsshole",
				Author:    "u/someone",
			},
		},
	}
}

func (f *fixture) generator() *Generator {
	return &Generator{
		cfg:        f.cfg,
		style:      config.DefaultStyle(),
		prober:     f.prober,
		newEncoder: f.enc.factory,
		progress:   progress.NewReporter(f.out),
		log:        logger.Nop(),
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%s should be empty, has %d entries", dir, len(entries))
	}
}

func assertStage(t *testing.T, err error, stage string, target error) {
	t.Helper()
	var se *types.StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected a StageError, got %v", err)
	}
	if se.Stage != stage {
		t.Errorf("stage = %q, want %q (%v)", se.Stage, stage, err)
	}
	if target != nil && !errors.Is(err, target) {
		t.Errorf("error %v is not %v", err, target)
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)

	res, err := f.generator().Generate(context.Background(), f.job)
	if err != nil {
		t.Fatal(err)
	}
	if res.JobID != "job-1" || res.OutputPath != f.job.OutputPath || res.Suspicious {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Duration != 6.0 || res.Captions != 2 || !res.Banner {
		t.Errorf("unexpected result %+v", res)
	}

	tl := f.enc.timelines[0]
	if tl.Width != config.OutputWidth || tl.Height != config.OutputHeight {
		t.Errorf("canvas = %dx%d", tl.Width, tl.Height)
	}
	if tl.Background.Plan.Total != 6.0 || tl.Background.Plan.Loops != 3 {
		t.Errorf("background plan = %+v", tl.Background.Plan)
	}
	if tl.Banner.VisibleFor != tl.Audio.TitleDuration {
		t.Errorf("banner window %v != title duration %v", tl.Banner.VisibleFor, tl.Audio.TitleDuration)
	}
	wantStarts := []float64{2.5, 3.0}
	for i, c := range tl.Captions {
		if math.Abs(c.Start-wantStarts[i]) > 1e-9 {
			t.Errorf("caption %d starts at %v, want %v", i, c.Start, wantStarts[i])
		}
	}

	wantProgress := "PROGRESS 10 loading_assets\n" +
		"PROGRESS 30 background_prepared\n" +
		"PROGRESS 50 banner_prepared\n" +
		"PROGRESS 70 captions_prepared\n" +
		"PROGRESS 80 compositing\n" +
		"PROGRESS 100 complete\n"
	if f.out.String() != wantProgress {
		t.Errorf("progress:\n%s\nwant:\n%s", f.out.String(), wantProgress)
	}

	if _, err := os.Stat(f.enc.workDirs[0]); !os.IsNotExist(err) {
		t.Errorf("temp dir %s should be removed", f.enc.workDirs[0])
	}
	if !strings.HasPrefix(filepath.Base(f.enc.workDirs[0]), config.TempDirPrefix+"job-1_") {
		t.Errorf("unexpected temp dir name %s", f.enc.workDirs[0])
	}
	assertEmptyDir(t, f.tempRoot)
}

func TestGenerateValidationBeforeIO(t *testing.T) {
	f := newFixture(t)
	f.job.Story.Title = strings.Repeat("a", 301)
	f.job.StoryAudioPath = filepath.Join(f.dir, "missing.mp3")

	_, err := f.generator().Generate(context.Background(), f.job)
	assertStage(t, err, StageValidation, types.ErrValidation)

	if f.prober.calls != 0 || len(f.enc.workDirs) != 0 {
		t.Error("validation failure must not touch any input")
	}
	if f.out.Len() != 0 {
		t.Errorf("no progress expected, got %q", f.out.String())
	}
	assertEmptyDir(t, f.tempRoot)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(f *fixture)
		stage  string
		target error
	}{
		{
			name:   "missing story audio",
			modify: func(f *fixture) { f.job.StoryAudioPath = filepath.Join(f.dir, "nope.mp3") },
			stage:  StageAssets,
			target: types.ErrAsset,
		},
		{
			name:   "background is a directory",
			modify: func(f *fixture) { f.job.BackgroundPath = f.dir },
			stage:  StageAssets,
			target: types.ErrAsset,
		},
		{
			name:   "unknown platform",
			modify: func(f *fixture) { f.cfg.Platform = "myspace" },
			stage:  StageValidation,
			target: types.ErrValidation,
		},
		{
			name:   "undecodable story audio",
			modify: func(f *fixture) { delete(f.prober.audio, f.job.StoryAudioPath) },
			stage:  StageAudio,
			target: types.ErrAsset,
		},
		{
			name:   "undecodable background",
			modify: func(f *fixture) { f.prober.video = nil },
			stage:  StageBackground,
			target: types.ErrBackgroundLoad,
		},
		{
			name: "corrupt banner",
			modify: func(f *fixture) {
				f.job.BannerPath = touch(f.t, filepath.Join(f.dir, "corrupt.png"))
			},
			stage:  StageBanner,
			target: types.ErrAsset,
		},
		{
			name: "malformed sidecar",
			modify: func(f *fixture) {
				f.job.AlignmentPath = touch(f.t, filepath.Join(f.dir, "bad.json"))
			},
			stage:  StageAlignment,
			target: types.ErrAlignment,
		},
		{
			name:   "encode timeout",
			modify: func(f *fixture) { f.enc.err = errors.Wrap(types.ErrEncodeTimeout, "exceeded 1m0s") },
			stage:  StageEncode,
			target: types.ErrEncodeTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.modify(f)

			_, err := f.generator().Generate(context.Background(), f.job)
			assertStage(t, err, tt.stage, tt.target)
			assertEmptyDir(t, f.tempRoot)
			if _, err := os.Stat(f.job.OutputPath); err == nil {
				t.Error("no output expected on failure")
			}
		})
	}
}

func TestGenerateOptionalInputs(t *testing.T) {
	tests := []struct {
		name         string
		modify       func(f *fixture)
		wantTotal    float64
		wantBanner   bool
		wantCaptions int
		wantFirst    float64
	}{
		{
			name:         "missing banner",
			modify:       func(f *fixture) { f.job.BannerPath = filepath.Join(f.dir, "nope.png") },
			wantTotal:    6,
			wantCaptions: 2,
			wantFirst:    2.5,
		},
		{
			name:         "no title audio drops the banner",
			modify:       func(f *fixture) { f.job.TitleAudioPath = "" },
			wantTotal:    4,
			wantCaptions: 2,
			wantFirst:    0.5,
		},
		{
			name:         "unreadable title audio is treated as absent",
			modify:       func(f *fixture) { f.job.TitleAudioPath = filepath.Join(f.dir, "nope.mp3") },
			wantTotal:    4,
			wantCaptions: 2,
			wantFirst:    0.5,
		},
		{
			name:         "undecodable title audio is treated as absent",
			modify:       func(f *fixture) { delete(f.prober.audio, f.job.TitleAudioPath) },
			wantTotal:    4,
			wantCaptions: 2,
			wantFirst:    0.5,
		},
		{
			name:       "missing alignment means no captions",
			modify:     func(f *fixture) { f.job.AlignmentPath = filepath.Join(f.dir, "nope.json") },
			wantTotal:  6,
			wantBanner: true,
		},
		{
			name: "heuristic alignment of the narrated story",
			modify: func(f *fixture) {
				f.cfg.Aligner = types.AlignerHeuristic
				f.job.AlignmentPath = ""
			},
			wantTotal:    6,
			wantBanner:   true,
			wantCaptions: 2,
			wantFirst:    2.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.modify(f)

			res, err := f.generator().Generate(context.Background(), f.job)
			if err != nil {
				t.Fatal(err)
			}
			if res.Duration != tt.wantTotal || res.Banner != tt.wantBanner || res.Captions != tt.wantCaptions {
				t.Errorf("result = %+v", res)
			}
			tl := f.enc.timelines[0]
			if tl.Background.Plan.Total != tt.wantTotal {
				t.Errorf("background total = %v, want %v", tl.Background.Plan.Total, tt.wantTotal)
			}
			if tt.wantCaptions > 0 && math.Abs(tl.Captions[0].Start-tt.wantFirst) > 1e-9 {
				t.Errorf("first caption at %v, want %v", tl.Captions[0].Start, tt.wantFirst)
			}
			if n := len(tl.Captions); n > 0 && tl.Captions[n-1].End() > tt.wantTotal+1e-9 {
				t.Errorf("last caption ends at %v past %v", tl.Captions[n-1].End(), tt.wantTotal)
			}
		})
	}
}

func TestGenerateSuspiciousOutput(t *testing.T) {
	f := newFixture(t)
	f.enc.size = 1024

	res, err := f.generator().Generate(context.Background(), f.job)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Suspicious {
		t.Error("tiny output should be flagged")
	}
	if !strings.HasSuffix(f.out.String(), "PROGRESS 100 complete_suspicious_size\n") {
		t.Errorf("progress should surface the suspicious size:\n%s", f.out.String())
	}
}

func TestGenerateAssignsID(t *testing.T) {
	f := newFixture(t)
	f.job.ID = ""

	res, err := f.generator().Generate(context.Background(), f.job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.JobID) != 36 {
		t.Errorf("expected a uuid job id, got %q", res.JobID)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "job-1", want: "job-1"},
		{in: "r/AITA story #42", want: "r_AITA_story_42"},
		{in: "__weird__name__", want: "weird_name"},
		{in: "../../etc/passwd", want: ".._.._etc_passwd"},
		{in: "émoji 🎬 clip.mp4", want: "moji_clip.mp4"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
