package platform

// Reddit keeps the vertical frame; the player letterboxes it on desktop.
type Reddit struct{}

func init() {
	Register(&Reddit{})
}

func (p *Reddit) GetName() string {
	return "reddit"
}

func (p *Reddit) GetMaxDimensions() (width, height int) {
	return 1080, 1920
}

func (p *Reddit) GetMaxDuration() int {
	return 900
}

func (p *Reddit) GetMaxFileSize() int64 {
	return 1024 * 1024 * 1024 // 1GB
}

func (p *Reddit) GetVideoCodec() string {
	return "libx264"
}

func (p *Reddit) GetAudioCodec() string {
	return "aac"
}

func (p *Reddit) GetVideoBitrate() string {
	return "4000k"
}

func (p *Reddit) GetAudioBitrate() string {
	return "192k"
}

func (p *Reddit) GetPreset() string {
	return "medium"
}

func (p *Reddit) GetProfile() (profile, level string) {
	return "high", "4.1"
}
