package platform

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Platform describes the encode settings a short-form video target expects.
type Platform interface {
	// GetName returns the platform name
	GetName() string

	// GetMaxDimensions returns the output frame size
	GetMaxDimensions() (width, height int)

	// GetMaxDuration returns the longest accepted video in seconds
	GetMaxDuration() int

	// GetMaxFileSize returns the maximum allowed file size in bytes
	GetMaxFileSize() int64

	// GetVideoCodec returns the ffmpeg video encoder name
	GetVideoCodec() string

	// GetAudioCodec returns the ffmpeg audio encoder name
	GetAudioCodec() string

	// GetVideoBitrate returns the target video bitrate, e.g. "6000k"
	GetVideoBitrate() string

	// GetAudioBitrate returns the target audio bitrate, e.g. "192k"
	GetAudioBitrate() string

	// GetPreset returns the x264 speed/quality preset
	GetPreset() string

	// GetProfile returns the H.264 profile and level
	GetProfile() (profile, level string)
}

var platforms = make(map[string]Platform)

// Register adds a platform to the registry
func Register(p Platform) {
	platforms[p.GetName()] = p
}

// Get returns a platform by name
func Get(name string) (Platform, error) {
	p, ok := platforms[name]
	if !ok {
		return nil, errors.Errorf("unsupported platform: %s", name)
	}
	return p, nil
}

// GetSupportedPlatforms returns the registered platform names in sorted order
func GetSupportedPlatforms() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
