package platform

// YouTubeShorts spends more encode time for a higher bitrate.
type YouTubeShorts struct{}

func init() {
	Register(&YouTubeShorts{})
}

func (p *YouTubeShorts) GetName() string {
	return "youtube_shorts"
}

func (p *YouTubeShorts) GetMaxDimensions() (width, height int) {
	return 1080, 1920
}

func (p *YouTubeShorts) GetMaxDuration() int {
	return 60
}

func (p *YouTubeShorts) GetMaxFileSize() int64 {
	return 2 * 1024 * 1024 * 1024 // 2GB
}

func (p *YouTubeShorts) GetVideoCodec() string {
	return "libx264"
}

func (p *YouTubeShorts) GetAudioCodec() string {
	return "aac"
}

func (p *YouTubeShorts) GetVideoBitrate() string {
	return "8000k"
}

func (p *YouTubeShorts) GetAudioBitrate() string {
	return "192k"
}

func (p *YouTubeShorts) GetPreset() string {
	return "slow"
}

func (p *YouTubeShorts) GetProfile() (profile, level string) {
	return "high", "4.2"
}
