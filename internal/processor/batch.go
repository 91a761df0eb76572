package processor

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Manifest is a batch of independent jobs.
type Manifest struct {
	// Concurrency bounds how many jobs run at once; 0 means 1.
	Concurrency int   `yaml:"concurrency"`
	Jobs        []Job `yaml:"jobs"`
}

// LoadManifest reads a YAML manifest and assigns ids to jobs without one.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", path)
	}
	if len(m.Jobs) == 0 {
		return nil, errors.Errorf("manifest %s has no jobs", path)
	}

	seen := make(map[string]bool, len(m.Jobs))
	for i := range m.Jobs {
		if m.Jobs[i].ID == "" {
			m.Jobs[i].ID = uuid.NewString()
		}
		if seen[m.Jobs[i].ID] {
			return nil, errors.Errorf("duplicate job id %q in manifest", m.Jobs[i].ID)
		}
		seen[m.Jobs[i].ID] = true
	}
	return &m, nil
}

// JobOutcome is the result of one batch entry. Exactly one of Result and
// Err is set.
type JobOutcome struct {
	JobID  string
	Result *Result
	Err    error
}

// BatchRunner runs manifest jobs through a shared Generator.
type BatchRunner struct {
	gen *Generator
}

func NewBatchRunner(gen *Generator) *BatchRunner {
	return &BatchRunner{gen: gen}
}

// Run executes every job with bounded concurrency. A failing job does not
// stop the others; outcomes are returned in manifest order. The error is
// non-nil only when ctx is cancelled.
func (b *BatchRunner) Run(ctx context.Context, m *Manifest) ([]JobOutcome, error) {
	limit := m.Concurrency
	if limit < 1 {
		limit = 1
	}

	outcomes := make([]JobOutcome, len(m.Jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, job := range m.Jobs {
		i, job := i, job
		g.Go(func() error {
			outcomes[i].JobID = job.ID
			if err := gctx.Err(); err != nil {
				outcomes[i].Err = err
				return err
			}

			gen := b.gen.withProgress(b.gen.progress.WithPrefix(job.ID))
			res, err := gen.Generate(gctx, job)
			if err != nil {
				b.gen.log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result = res
			return nil
		})
	}

	err := g.Wait()
	return outcomes, errors.Wrap(err, "batch cancelled")
}
