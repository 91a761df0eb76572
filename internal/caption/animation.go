package caption

import (
	"fmt"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/config"
)

// bounceSeconds is the length of the pop-in at the start of every caption.
var bounceSeconds = config.BounceDuration.Seconds()

// Scale is the size multiplier at local clip time t: 1+k at t=0 easing
// linearly to 1 at the end of the bounce, 1 afterwards.
func Scale(t, k float64) float64 {
	if t < 0 || t >= bounceSeconds {
		return 1.0
	}
	return 1.0 + k*(1-t/bounceSeconds)
}

// Lift is how many pixels above its resting place the caption is drawn at
// local clip time t.
func Lift(t, px float64) float64 {
	if t < 0 || t >= bounceSeconds {
		return 0
	}
	return px * (1 - t/bounceSeconds)
}

// ScaleExpr is Scale as an ffmpeg expression over the stream time t.
func ScaleExpr(k float64) string {
	return fmt.Sprintf("if(lt(t,%.3f),1+%.4f*(1-t/%.3f),1)", bounceSeconds, k, bounceSeconds)
}

// LiftExpr is Lift as an ffmpeg expression over local time expression t.
func LiftExpr(px float64, t string) string {
	return fmt.Sprintf("if(lt(%s,%.3f),%.3f*(1-(%s)/%.3f),0)", t, bounceSeconds, px, t, bounceSeconds)
}
