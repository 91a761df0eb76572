package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestReport(t *testing.T) {
	tests := []struct {
		pct   int
		stage string
		want  string
	}{
		{LoadingAssets, "loading_assets", "PROGRESS 10 loading_assets\n"},
		{Complete, "complete", "PROGRESS 100 complete\n"},
		{-5, "start", "PROGRESS 0 start\n"},
		{150, "done", "PROGRESS 100 done\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		NewReporter(&buf).Report(tt.pct, tt.stage)
		if buf.String() != tt.want {
			t.Errorf("Report(%d, %q) = %q, want %q", tt.pct, tt.stage, buf.String(), tt.want)
		}
	}
}

func TestNilReporter(t *testing.T) {
	var r *Reporter
	r.Report(50, "ignored")
	if r.WithPrefix("job") != nil {
		t.Error("prefix of nil reporter should be nil")
	}
}

func TestWithPrefixConcurrent(t *testing.T) {
	var buf bytes.Buffer
	root := NewReporter(&buf)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(r *Reporter) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Report(Compositing, "compositing")
			}
		}(root.WithPrefix(id))
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 200 {
		t.Fatalf("got %d lines, want 200", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "PROGRESS 80 ") || !strings.HasSuffix(l, " compositing") {
			t.Fatalf("malformed line %q", l)
		}
	}
}
