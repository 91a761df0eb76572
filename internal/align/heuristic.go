package align

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

const (
	DefaultWordsPerSecond = 2.2

	MinWordDuration = 0.4
	MaxWordDuration = 2.0

	sentencePunctFactor = 1.8
	clausePunctFactor   = 1.3
	allCapsFactor       = 1.4
)

// captionTrim is stripped from both ends of a word before it is displayed.
const captionTrim = ".,!?;:"

var interjections = map[string]bool{
	"wow":     true,
	"omg":     true,
	"wtf":     true,
	"lol":     true,
	"damn":    true,
	"shit":    true,
	"fuck":    true,
	"amazing": true,
	"crazy":   true,
	"insane":  true,
}

// HeuristicAligner estimates timings from the transcript and the measured
// audio length when no alignment engine is available.
type HeuristicAligner struct {
	prober DurationProber
	wps    float64
	log    logger.Logger
}

func NewHeuristicAligner(prober DurationProber, wordsPerSecond float64, log logger.Logger) *HeuristicAligner {
	if wordsPerSecond <= 0 {
		wordsPerSecond = DefaultWordsPerSecond
	}
	return &HeuristicAligner{prober: prober, wps: wordsPerSecond, log: log}
}

func (a *HeuristicAligner) Align(_ context.Context, audioPath, text string) ([]types.WordTiming, error) {
	total, err := a.prober.AudioDuration(audioPath)
	if err != nil {
		return nil, errors.Wrapf(types.ErrAlignment, "measuring %s: %v", audioPath, err)
	}

	words := Estimate(text, total, a.wps)
	a.log.Info().
		Int("words", len(words)).
		Float64("duration", total).
		Msg("estimated word timings")
	return words, nil
}

// Estimate lays the whitespace-separated words of text out back to back
// using WordDuration, then rescales so the last word ends exactly at total.
// An empty transcript yields an empty slice.
func Estimate(text string, total, wordsPerSecond float64) []types.WordTiming {
	raw := strings.Fields(text)
	if len(raw) == 0 || total <= 0 {
		return []types.WordTiming{}
	}
	if wordsPerSecond <= 0 {
		wordsPerSecond = DefaultWordsPerSecond
	}

	// bounds[i] is where word i starts, bounds[i+1] where it ends.
	bounds := make([]float64, len(raw)+1)
	for i, w := range raw {
		bounds[i+1] = bounds[i] + WordDuration(w, wordsPerSecond)
	}

	cumulative := bounds[len(raw)]
	if !(cumulative > 0) {
		// Cannot rescale; show the whole transcript for the whole track.
		return []types.WordTiming{{
			Text:  strings.Join(raw, " "),
			Start: 0,
			End:   total,
		}}
	}

	scale := total / cumulative
	words := make([]types.WordTiming, len(raw))
	for i, w := range raw {
		words[i] = types.WordTiming{
			Text:     CaptionText(w),
			Start:    bounds[i] * scale,
			End:      bounds[i+1] * scale,
			Emphasis: IsEmphasis(w),
		}
	}
	// Absorb float drift so the track is covered exactly.
	words[len(words)-1].End = total

	return words
}

// WordDuration is the unscaled display time of a raw transcript word,
// always within [MinWordDuration, MaxWordDuration].
func WordDuration(word string, wordsPerSecond float64) float64 {
	base := 1.0 / wordsPerSecond
	length := max(0.8, float64(utf8.RuneCountInString(word))/5.0)
	return clamp(base*length*punctuationFactor(word), MinWordDuration, MaxWordDuration)
}

func punctuationFactor(word string) float64 {
	switch {
	case strings.ContainsAny(word, ".!?"):
		return sentencePunctFactor
	case strings.ContainsAny(word, ",;:"):
		return clausePunctFactor
	case isAllCaps(word):
		return allCapsFactor
	default:
		return 1.0
	}
}

// IsEmphasis reports whether a raw transcript word should render larger.
func IsEmphasis(word string) bool {
	return isAllCaps(word) ||
		strings.ContainsAny(word, "!?") ||
		utf8.RuneCountInString(word) <= 3 ||
		interjections[strings.ToLower(CaptionText(word))]
}

// CaptionText strips surrounding punctuation. A word made only of
// punctuation is kept as is.
func CaptionText(word string) string {
	word = strings.TrimSpace(word)
	if t := strings.Trim(word, captionTrim); t != "" {
		return t
	}
	return word
}

// isAllCaps is true when word has at least one cased letter and no
// lower-case letters.
func isAllCaps(word string) bool {
	cased := false
	for _, r := range word {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
