package align

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/ffmpeg"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

const (
	audioPlaceholder = "{audio}"
	textPlaceholder  = "{text_file}"
)

// EngineAligner runs an external forced-alignment / ASR command that prints
// Whisper-style JSON on stdout.
type EngineAligner struct {
	command []string
	workDir string
	timeout time.Duration
	log     logger.Logger
}

// NewEngineAligner takes an argv template. "{audio}" is replaced with the
// audio path (appended when absent) and "{text_file}" with a temporary file
// holding the transcript, created under workDir.
func NewEngineAligner(command []string, workDir string, timeout time.Duration, log logger.Logger) (*EngineAligner, error) {
	if len(command) == 0 {
		return nil, errors.New("engine aligner requires a command")
	}
	if workDir == "" {
		return nil, errors.New("engine aligner requires a work directory")
	}
	return &EngineAligner{command: command, workDir: workDir, timeout: timeout, log: log}, nil
}

func (a *EngineAligner) Align(ctx context.Context, audioPath, text string) ([]types.WordTiming, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	textFile := ""
	if a.needsTextFile() {
		f, err := os.CreateTemp(a.workDir, "transcript_*.txt")
		if err != nil {
			return nil, errors.Wrap(err, "failed to create transcript file")
		}
		textFile = f.Name()
		defer os.Remove(textFile)

		_, err = f.WriteString(text)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to write transcript file")
		}
	}

	argv := ExpandCommand(a.command, audioPath, textFile)
	var stdout bytes.Buffer
	stderr := ffmpeg.NewTailBuffer(ffmpeg.StderrTailSize)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	a.log.Debug().Strs("argv", argv).Msg("running alignment engine")
	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(types.ErrAlignment, "alignment engine: %v", ctx.Err())
		}
		return nil, errors.Wrapf(types.ErrAlignment, "alignment engine failed: %v: %s", err, stderr.String())
	}

	words, err := ParseEngineOutput(stdout.Bytes(), a.log)
	if err != nil {
		return nil, err
	}
	a.log.Info().
		Int("words", len(words)).
		Dur("elapsed", time.Since(start)).
		Msg("aligned words with engine")
	return words, nil
}

func (a *EngineAligner) needsTextFile() bool {
	for _, arg := range a.command {
		if strings.Contains(arg, textPlaceholder) {
			return true
		}
	}
	return false
}

// ExpandCommand substitutes placeholders in an argv template.
func ExpandCommand(template []string, audioPath, textFile string) []string {
	argv := make([]string, 0, len(template)+1)
	hasAudio := false
	for _, arg := range template {
		if strings.Contains(arg, audioPlaceholder) {
			hasAudio = true
		}
		arg = strings.ReplaceAll(arg, audioPlaceholder, audioPath)
		arg = strings.ReplaceAll(arg, textPlaceholder, textFile)
		argv = append(argv, arg)
	}
	if !hasAudio {
		argv = append(argv, audioPath)
	}
	return argv
}

type engineWord struct {
	Word  string   `json:"word"`
	Text  string   `json:"text"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

// ParseEngineOutput accepts {"segments":[{"words":[...]}]}, {"words":[...]}
// or a bare word array. Malformed segments and words are skipped with a
// warning. No surviving words is types.ErrNoWordsDetected.
func ParseEngineOutput(data []byte, log logger.Logger) ([]types.WordTiming, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.Wrap(types.ErrNoWordsDetected, "alignment engine produced no output")
	}

	var rawWords []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rawWords); err != nil {
			return nil, errors.Wrapf(types.ErrAlignment, "invalid engine output: %v", err)
		}
	} else {
		var doc struct {
			Segments []json.RawMessage `json:"segments"`
			Words    []json.RawMessage `json:"words"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrapf(types.ErrAlignment, "invalid engine output: %v", err)
		}
		if doc.Segments == nil && doc.Words == nil {
			return nil, errors.Wrap(types.ErrAlignment, "engine output has neither segments nor words")
		}
		rawWords = append(rawWords, doc.Words...)
		for i, raw := range doc.Segments {
			var seg struct {
				Words []json.RawMessage `json:"words"`
			}
			if err := json.Unmarshal(raw, &seg); err != nil || seg.Words == nil {
				log.Warn().Int("segment", i).Msg("skipping segment without word data")
				continue
			}
			rawWords = append(rawWords, seg.Words...)
		}
	}

	words := make([]types.WordTiming, 0, len(rawWords))
	for _, raw := range rawWords {
		var w engineWord
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Warn().Str("entry", string(raw)).Msg("skipping invalid word data")
			continue
		}
		text := strings.TrimSpace(w.Word)
		if text == "" {
			text = strings.TrimSpace(w.Text)
		}
		if text == "" || w.Start == nil || w.End == nil || *w.End <= *w.Start {
			log.Warn().Str("entry", string(raw)).Msg("skipping invalid word entry")
			continue
		}
		words = append(words, types.WordTiming{
			Text:     CaptionText(text),
			Start:    *w.Start,
			End:      *w.End,
			Emphasis: IsEmphasis(text),
		})
	}

	words = Normalize(words, log)
	if len(words) == 0 {
		return nil, errors.Wrap(types.ErrNoWordsDetected, "no valid words in engine output")
	}
	return words, nil
}
