package align

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

func TestExpandCommand(t *testing.T) {
	tests := []struct {
		name     string
		template []string
		want     string
	}{
		{name: "audio placeholder", template: []string{"whisper_timestamps", "{audio}"}, want: "whisper_timestamps /a.mp3"},
		{name: "appends audio", template: []string{"aligner", "--json"}, want: "aligner --json /a.mp3"},
		{name: "text file", template: []string{"mfa", "--audio={audio}", "--text={text_file}"}, want: "mfa --audio=/a.mp3 --text=/t.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(ExpandCommand(tt.template, "/a.mp3", "/t.txt"), " ")
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEngineOutput(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantWords []string
		wantErr   error
	}{
		{
			name: "whisper segments",
			output: `{"text":"hi there","segments":[
				{"id":0,"words":[{"word":" Hi","start":0.0,"end":0.4},{"word":" there.","start":0.4,"end":0.9}]},
				{"id":1,"words":[{"word":" Bye","start":1.2,"end":1.6}]}]}`,
			wantWords: []string{"Hi", "there", "Bye"},
		},
		{
			name: "malformed segments and words are skipped",
			output: `{"segments":[
				{"id":0},
				"not a segment",
				{"words":[{"word":"ok","start":0,"end":0.5},{"word":"","start":0.5,"end":0.6},
					{"word":"backwards","start":2,"end":1},{"word":"nostart","end":3},42]}]}`,
			wantWords: []string{"ok"},
		},
		{
			name:      "flat array",
			output:    `[{"word":"one","start":0,"end":0.5},{"text":"two","start":0.5,"end":1}]`,
			wantWords: []string{"one", "two"},
		},
		{
			name:      "overlap clamped",
			output:    `[{"word":"one","start":0,"end":0.8},{"word":"two","start":0.5,"end":1}]`,
			wantWords: []string{"one", "two"},
		},
		{
			name:    "no valid words",
			output:  `{"segments":[{"words":[{"word":"x","start":1,"end":1}]}]}`,
			wantErr: types.ErrNoWordsDetected,
		},
		{
			name:    "empty output",
			output:  "  \n",
			wantErr: types.ErrNoWordsDetected,
		},
		{
			name:    "not json",
			output:  "Traceback (most recent call last):",
			wantErr: types.ErrAlignment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := ParseEngineOutput([]byte(tt.output), logger.Nop())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, w := range words {
				got = append(got, w.Text)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantWords, ",") {
				t.Errorf("words = %v, want %v", got, tt.wantWords)
			}
			if !IsOrdered(words) {
				t.Errorf("words overlap: %+v", words)
			}
		})
	}
}

func TestEngineAlignerRunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	script := `cat "$1" >/dev/null && echo '{"segments":[{"words":[{"word":"hello","start":0,"end":0.5}]}]}'`
	a, err := NewEngineAligner([]string{"sh", "-c", script, "engine", "{text_file}"}, t.TempDir(), time.Minute, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	words, err := a.Align(context.Background(), "/dev/null", "hello")
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(words) != 1 || words[0].Text != "hello" {
		t.Errorf("words = %+v", words)
	}
}

func TestEngineAlignerFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	a, _ := NewEngineAligner([]string{"sh", "-c", "echo boom >&2; exit 3"}, t.TempDir(), time.Minute, logger.Nop())
	_, err := a.Align(context.Background(), "/dev/null", "hello")
	if !errors.Is(err, types.ErrAlignment) || !strings.Contains(err.Error(), "boom") {
		t.Errorf("want ErrAlignment with stderr, got %v", err)
	}

	a, _ = NewEngineAligner([]string{"sh", "-c", "echo '[]'"}, t.TempDir(), time.Minute, logger.Nop())
	if _, err := a.Align(context.Background(), "/dev/null", "hello"); !errors.Is(err, types.ErrNoWordsDetected) {
		t.Errorf("want ErrNoWordsDetected, got %v", err)
	}
}

func TestEngineAlignerTranscriptInWorkDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	workDir := t.TempDir()
	t.Setenv("ENGINE_WORK_DIR", workDir)
	script := `case "$1" in
"$ENGINE_WORK_DIR"/transcript_*) grep -q hello "$1" && echo '[{"word":"inside","start":0,"end":0.5}]' ;;
*) echo '[{"word":"outside","start":0,"end":0.5}]' ;;
esac`
	a, err := NewEngineAligner([]string{"sh", "-c", script, "engine", "{text_file}"}, workDir, time.Minute, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	words, err := a.Align(context.Background(), "/dev/null", "hello")
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(words) != 1 || words[0].Text != "inside" {
		t.Errorf("transcript file not created in %s: %+v", workDir, words)
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("transcript not removed, %s has %d entries", workDir, len(entries))
	}
}

func TestNewEngineAlignerRequiresWorkDir(t *testing.T) {
	if _, err := NewEngineAligner([]string{"whisper_timestamps"}, "", time.Minute, logger.Nop()); err == nil {
		t.Error("expected error without a work directory")
	}
}
