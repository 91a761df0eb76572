package platform

// TikTok is the default target and matches the reference story encode.
type TikTok struct{}

func init() {
	Register(&TikTok{})
}

func (p *TikTok) GetName() string {
	return "tiktok"
}

func (p *TikTok) GetMaxDimensions() (width, height int) {
	return 1080, 1920
}

func (p *TikTok) GetMaxDuration() int {
	return 600
}

func (p *TikTok) GetMaxFileSize() int64 {
	return 287 * 1024 * 1024 // 287MB
}

func (p *TikTok) GetVideoCodec() string {
	return "libx264"
}

func (p *TikTok) GetAudioCodec() string {
	return "aac"
}

func (p *TikTok) GetVideoBitrate() string {
	return "6000k"
}

func (p *TikTok) GetAudioBitrate() string {
	return "192k"
}

func (p *TikTok) GetPreset() string {
	return "medium"
}

func (p *TikTok) GetProfile() (profile, level string) {
	return "high", "4.1"
}
