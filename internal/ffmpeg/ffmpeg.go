package ffmpeg

import (
	"encoding/json"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
)

// VideoMetadata contains metadata about a video or image file
type VideoMetadata struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
	// StillImage is set for single-frame sources (png, jpeg, ...). Duration is 0.
	StillImage bool
	HasAudio   bool
}

// Processor wraps FFmpeg functionality
type Processor struct {
	ffmpegPath string
	log        logger.Logger
}

// NewProcessor creates a new FFmpeg processor. An empty path means "ffmpeg"
// from PATH. Probing always runs "ffprobe" from PATH; ffmpeg-go's Probe has
// no path setting.
func NewProcessor(ffmpegPath string, log logger.Logger) *Processor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Processor{
		ffmpegPath: ffmpegPath,
		log:        log,
	}
}

// probeOutput is the subset of `ffprobe -show_format -show_streams -of json` we read.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Duration   string `json:"duration"`
	DurationTS int64  `json:"duration_ts"`
	TimeBase   string `json:"time_base"`
	SampleRate string `json:"sample_rate"`
	NbFrames   string `json:"nb_frames"`
	RFrameRate string `json:"r_frame_rate"`
}

func parseProbe(probe string) (*probeOutput, error) {
	var data probeOutput
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return nil, errors.Wrap(err, "failed to decode probe output")
	}
	if len(data.Streams) == 0 {
		return nil, errors.New("no streams found")
	}
	return &data, nil
}

// GetVideoMetadata retrieves metadata about a video or still image
func (p *Processor) GetVideoMetadata(inputPath string) (*VideoMetadata, error) {
	probe, err := ffmpeg.Probe(inputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error probing %s", inputPath)
	}
	return ParseVideoMetadata(probe)
}

// ParseVideoMetadata extracts VideoMetadata from ffprobe JSON.
func ParseVideoMetadata(probe string) (*VideoMetadata, error) {
	data, err := parseProbe(probe)
	if err != nil {
		return nil, err
	}

	var videoStream *probeStream
	hasAudio := false
	for i := range data.Streams {
		s := &data.Streams[i]
		switch s.CodecType {
		case "video":
			if videoStream == nil {
				videoStream = s
			}
		case "audio":
			hasAudio = true
		}
	}
	if videoStream == nil {
		return nil, errors.New("no video stream found")
	}

	meta := &VideoMetadata{
		Width:    videoStream.Width,
		Height:   videoStream.Height,
		Codec:    videoStream.CodecName,
		HasAudio: hasAudio,
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, errors.Errorf("invalid frame size %dx%d", meta.Width, meta.Height)
	}

	if isImageFormat(data.Format.FormatName) {
		meta.StillImage = true
		return meta, nil
	}

	// First try video stream duration
	meta.Duration = parseSeconds(videoStream.Duration)

	// If stream duration is not available, try format duration
	if meta.Duration == 0 {
		meta.Duration = parseSeconds(data.Format.Duration)
	}

	// If still no duration found, try calculating from frames and frame rate
	if meta.Duration == 0 {
		if frames, err := strconv.ParseFloat(videoStream.NbFrames, 64); err == nil {
			if rate := parseRatio(videoStream.RFrameRate); rate > 0 {
				meta.Duration = frames / rate
			}
		}
	}

	if meta.Duration <= 0 {
		return nil, errors.New("could not determine video duration")
	}
	return meta, nil
}

// AudioDuration returns the length of the first audio stream in seconds.
func (p *Processor) AudioDuration(inputPath string) (float64, error) {
	probe, err := ffmpeg.Probe(inputPath)
	if err != nil {
		return 0, errors.Wrapf(err, "error probing %s", inputPath)
	}
	return ParseAudioDuration(probe)
}

// ParseAudioDuration prefers the exact sample count over the rounded
// duration string: duration_ts is in time_base units, which for most audio
// demuxers is 1/sample_rate.
func ParseAudioDuration(probe string) (float64, error) {
	data, err := parseProbe(probe)
	if err != nil {
		return 0, err
	}

	var audio *probeStream
	for i := range data.Streams {
		if data.Streams[i].CodecType == "audio" {
			audio = &data.Streams[i]
			break
		}
	}
	if audio == nil {
		return 0, errors.New("no audio stream found")
	}

	var duration float64
	if audio.DurationTS > 0 {
		if tb := parseRatio(audio.TimeBase); tb > 0 {
			duration = float64(audio.DurationTS) * tb
		}
	}
	if duration == 0 {
		duration = parseSeconds(audio.Duration)
	}
	if duration == 0 {
		duration = parseSeconds(data.Format.Duration)
	}
	if duration <= 0 {
		return 0, errors.New("could not determine audio duration")
	}
	return duration, nil
}

func isImageFormat(name string) bool {
	for _, f := range strings.Split(name, ",") {
		if f == "image2" || strings.HasSuffix(f, "_pipe") {
			return true
		}
	}
	return false
}

func parseSeconds(v string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(d) || d < 0 {
		return 0
	}
	return d
}

// parseRatio parses "num/den" as used by time_base and r_frame_rate.
func parseRatio(v string) float64 {
	nums := strings.Split(v, "/")
	if len(nums) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(nums[0], 64)
	den, err2 := strconv.ParseFloat(nums[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func GetOptimalThreadCount() int {
	cpuCount := runtime.NumCPU()
	// Use 75% of available cores to prevent overload
	return int(math.Max(1, float64(cpuCount)*0.75))
}

// Seconds formats a timestamp for ffmpeg arguments and filter expressions.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
