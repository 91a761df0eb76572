package platform

// Instagram targets Reels.
type Instagram struct{}

func init() {
	Register(&Instagram{})
}

func (p *Instagram) GetName() string {
	return "instagram_reel"
}

func (p *Instagram) GetMaxDimensions() (width, height int) {
	return 1080, 1920
}

func (p *Instagram) GetMaxDuration() int {
	return 90
}

func (p *Instagram) GetMaxFileSize() int64 {
	return 250 * 1024 * 1024 // 250MB
}

func (p *Instagram) GetVideoCodec() string {
	return "libx264"
}

func (p *Instagram) GetAudioCodec() string {
	return "aac"
}

func (p *Instagram) GetVideoBitrate() string {
	return "5000k"
}

func (p *Instagram) GetAudioBitrate() string {
	return "128k"
}

func (p *Instagram) GetPreset() string {
	return "medium"
}

func (p *Instagram) GetProfile() (profile, level string) {
	return "high", "4.1"
}
