package encoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
	ffmpegWrap "github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/platform"
)

// Params are fixed for the whole job.
type Params struct {
	Platform     string
	FrameRate    int
	VideoCodec   string
	AudioCodec   string
	VideoBitrate string
	AudioBitrate string
	Preset       string
	Profile      string
	Level        string
	PixelFormat  string
	Threads      int
	Timeout      time.Duration
	// Outputs smaller than this are flagged as suspicious.
	MinPlausibleSize int64
}

// ParamsFor derives encode parameters from a platform profile.
func ParamsFor(p platform.Platform, timeout time.Duration) Params {
	profile, level := p.GetProfile()
	if timeout <= 0 {
		timeout = config.DefaultEncodeTimeout
	}
	return Params{
		Platform:         p.GetName(),
		FrameRate:        config.FrameRate,
		VideoCodec:       p.GetVideoCodec(),
		AudioCodec:       p.GetAudioCodec(),
		VideoBitrate:     p.GetVideoBitrate(),
		AudioBitrate:     p.GetAudioBitrate(),
		Preset:           p.GetPreset(),
		Profile:          profile,
		Level:            level,
		PixelFormat:      "yuv420p",
		Threads:          ffmpegWrap.GetOptimalThreadCount(),
		Timeout:          timeout,
		MinPlausibleSize: config.MinPlausibleOutputSize,
	}
}

// OutputKwArgs are the ffmpeg output options for a total-second timeline.
func (p Params) OutputKwArgs(total float64) ffmpeg.KwArgs {
	kw := ffmpeg.KwArgs{
		"c:v":      p.VideoCodec,
		"c:a":      p.AudioCodec,
		"b:v":      p.VideoBitrate,
		"b:a":      p.AudioBitrate,
		"pix_fmt":  p.PixelFormat,
		"r":        p.FrameRate,
		"movflags": "+faststart",
		"t":        ffmpegWrap.Seconds(total),
	}
	if p.Threads > 0 {
		kw["threads"] = p.Threads
	}

	// Add codec-specific settings
	switch p.VideoCodec {
	case "libx264":
		kw["preset"] = p.Preset
		kw["profile:v"] = p.Profile
		kw["level"] = p.Level
		kw["maxrate"] = p.VideoBitrate
		kw["bufsize"] = scaleBitrate(p.VideoBitrate, 2)
	}
	return kw
}

// scaleBitrate multiplies an ffmpeg bitrate such as "6000k" or "4M",
// keeping its suffix.
func scaleBitrate(bitrate string, factor int) string {
	value := strings.TrimRight(bitrate, "kKM")
	suffix := bitrate[len(value):]
	n, err := strconv.Atoi(value)
	if err != nil {
		return bitrate
	}
	return fmt.Sprintf("%d%s", n*factor, suffix)
}
