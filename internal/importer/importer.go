// Package importer bulk-loads towers from CSV, merging them with the stored
// towers by sample count and reporting progress through a job.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/jobs"
	"github.com/couchcryptid/cell-locator/internal/observability"
)

// Row actions, also used as the import_rows_total label.
const (
	ActionCreated        = "created"
	ActionUpdatedSamples = "updated_samples"
	ActionVerified       = "verified"
	ActionSkipped        = "skipped"
	actionInvalid        = "invalid"
)

const (
	DefaultBatchSize = 1000
	progressEvery    = 200
)

// BatchExtractor reads up to batchSize rows. An empty batch ends the import.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]Row, error)
}

// TowerWriter is the slice of the tower store an import needs.
type TowerWriter interface {
	FindByKeys(ctx context.Context, keys []domain.TowerKey) (map[domain.TowerKey]domain.Tower, error)
	InsertTowers(ctx context.Context, towers []domain.Tower) (int, error)
	UpdateTowers(ctx context.Context, towers []domain.Tower) error
}

// Options control one import run.
type Options struct {
	UpdateExisting bool
	BatchSize      int
}

// Importer runs the extract, merge and load loop for CSV imports.
type Importer struct {
	store   TowerWriter
	jobs    jobs.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates an Importer.
func New(store TowerWriter, jobStore jobs.Store, logger *slog.Logger, metrics *observability.Metrics) *Importer {
	return &Importer{
		store:   store,
		jobs:    jobStore,
		logger:  logger,
		metrics: metrics,
		now:     domain.Now,
	}
}

// run holds the state of one import across batches.
type run struct {
	jobID   string
	opts    Options
	result  jobs.Result
	seenNew map[domain.TowerKey]struct{}
	total   int
	done    int
}

// Run imports every row from src and records progress on job jobID. The
// job ends SUCCESS with the result, or FAILED with the error.
func (im *Importer) Run(ctx context.Context, jobID string, src BatchExtractor, opts Options) (jobs.Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	im.metrics.ImportRunning.Inc()
	defer im.metrics.ImportRunning.Dec()

	r := &run{
		jobID:   jobID,
		opts:    opts,
		result:  jobs.Result{Errors: []string{}},
		seenNew: make(map[domain.TowerKey]struct{}),
	}
	im.setJob(ctx, jobID, func(j *jobs.Job) { j.Status = jobs.StatusInProgress })
	im.logger.Info("import started", "job_id", jobID, "batch_size", opts.BatchSize, "update_existing", opts.UpdateExisting)

	if err := im.loop(ctx, r, src); err != nil {
		im.logger.Error("import failed", "job_id", jobID, "rows", r.done, "error", err)
		im.setJob(context.WithoutCancel(ctx), jobID, func(j *jobs.Job) {
			j.Status = jobs.StatusFailed
			j.Error = err.Error()
		})
		return r.result, err
	}

	res := r.result
	im.setJob(ctx, jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusSuccess
		j.ProcessedRows = r.total
		j.Result = &res
	})
	im.logger.Info("import finished", "job_id", jobID,
		"created", res.Created, "updated", res.Updated, "errors", len(res.Errors))
	return res, nil
}

func (im *Importer) loop(ctx context.Context, r *run, src BatchExtractor) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := src.ExtractBatch(ctx, r.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("extract batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := im.processBatch(ctx, r, batch); err != nil {
			return err
		}
	}
}

// processBatch merges one batch against the store and loads the changes.
func (im *Importer) processBatch(ctx context.Context, r *run, batch []Row) error {
	var (
		valid    []domain.Tower
		newErrs  []string
		keys     []domain.TowerKey
		seenKeys = make(map[domain.TowerKey]struct{})
	)
	for _, row := range batch {
		if row.Err != nil {
			newErrs = append(newErrs, fmt.Sprintf("line %d: %v", row.Line, row.Err))
			im.metrics.ImportRows.WithLabelValues(actionInvalid).Inc()
			continue
		}
		valid = append(valid, row.Tower)
		k := row.Tower.Key()
		if _, ok := seenKeys[k]; !ok {
			seenKeys[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	r.result.Errors = append(r.result.Errors, newErrs...)
	r.total += len(valid)
	im.setJob(ctx, r.jobID, func(j *jobs.Job) {
		j.TotalRows = r.total
		j.Errors = append(j.Errors, newErrs...)
	})
	if len(valid) == 0 {
		return nil
	}

	existing, err := im.store.FindByKeys(ctx, keys)
	if err != nil {
		return fmt.Errorf("look up existing towers: %w", err)
	}

	var (
		creates []domain.Tower
		touched = make(map[int64]struct{})
		order   []int64
	)
	for _, row := range valid {
		r.done++
		k := row.Key()
		u, ok := im.merge(r, row, existing)
		if !ok {
			continue
		}
		im.metrics.ImportRows.WithLabelValues(u.Action).Inc()
		if u.Action == ActionCreated {
			row.CheckedCount, row.VerifiedCount = 1, 1
			creates = append(creates, row)
		} else {
			if _, ok := touched[existing[k].ID]; !ok {
				touched[existing[k].ID] = struct{}{}
				order = append(order, existing[k].ID)
			}
		}
		if r.done%progressEvery == 0 {
			im.progress(ctx, r, u)
		}
	}

	if len(creates) > 0 {
		n, err := im.store.InsertTowers(ctx, creates)
		if err != nil {
			return fmt.Errorf("insert towers: %w", err)
		}
		r.result.Created += n
	}
	if len(order) > 0 {
		updates := make([]domain.Tower, 0, len(order))
		byID := make(map[int64]domain.Tower, len(existing))
		for _, t := range existing {
			byID[t.ID] = t
		}
		for _, id := range order {
			updates = append(updates, byID[id])
		}
		if err := im.store.UpdateTowers(ctx, updates); err != nil {
			return fmt.Errorf("update towers: %w", err)
		}
		r.result.Updated += len(updates)
	}

	done := r.done
	im.setJob(ctx, r.jobID, func(j *jobs.Job) { j.ProcessedRows = done })
	return nil
}

// merge classifies row against the stored tower with the same key and
// applies the sample-count policy to existing in place. It returns false
// for a repeat of a tower this import already created.
func (im *Importer) merge(r *run, row domain.Tower, existing map[domain.TowerKey]domain.Tower) (jobs.Update, bool) {
	k := row.Key()
	newSamples := 0
	if row.Samples != nil {
		newSamples = *row.Samples
	}
	u := jobs.Update{
		Key:        jobs.TowerRef{MCC: k.MCC, MNC: k.MNC, CellID: k.CellID, LAC: k.LACPtr()},
		NewSamples: newSamples,
		NewLat:     row.Lat,
		NewLon:     row.Lon,
	}

	if _, dup := r.seenNew[k]; dup {
		return u, false
	}
	cur, ok := existing[k]
	if !ok {
		r.seenNew[k] = struct{}{}
		u.Action = ActionCreated
		return u, true
	}

	oldSamples := 0
	if cur.Samples != nil {
		oldSamples = *cur.Samples
	}
	lat, lon := cur.Lat, cur.Lon
	u.OldSamples, u.OldLat, u.OldLon = &oldSamples, &lat, &lon

	switch {
	case newSamples > oldSamples:
		u.Action = ActionUpdatedSamples
		if r.opts.UpdateExisting {
			cur = overwrite(cur, row)
			cur.Samples = &newSamples
		}
	case newSamples == oldSamples:
		u.Action = ActionVerified
		cur.VerifiedCount++
	default:
		u.Action = ActionSkipped
	}
	cur.CheckedCount++
	cur.UpdatedAt = im.now()
	existing[k] = cur
	return u, true
}

// overwrite copies the imported fields of row onto cur, keeping identity and counters.
func overwrite(cur, row domain.Tower) domain.Tower {
	row.ID = cur.ID
	row.CheckedCount = cur.CheckedCount
	row.VerifiedCount = cur.VerifiedCount
	row.CreatedAt = cur.CreatedAt
	return row
}

func (im *Importer) progress(ctx context.Context, r *run, u jobs.Update) {
	done := r.done
	im.setJob(ctx, r.jobID, func(j *jobs.Job) {
		j.ProcessedRows = done
		j.PushUpdate(u, jobs.DefaultRecentUpdates)
	})
}

// setJob applies a job mutation. Job bookkeeping failures are logged and
// never abort the import.
func (im *Importer) setJob(ctx context.Context, id string, mutate func(*jobs.Job)) {
	if im.jobs == nil || id == "" {
		return
	}
	if _, err := im.jobs.Update(ctx, id, mutate); err != nil {
		im.logger.Warn("job status update failed", "job_id", id, "error", err)
	}
}
