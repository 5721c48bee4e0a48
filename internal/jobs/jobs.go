// Package jobs tracks the status of long-running tower imports.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// DefaultRecentUpdates is how many row updates a job keeps.
const DefaultRecentUpdates = 10

// ErrNotFound is returned for unknown or expired job IDs.
var ErrNotFound = errors.New("job not found")

// TowerRef identifies the tower a row update touched.
type TowerRef struct {
	MCC    int   `json:"mcc"`
	MNC    int   `json:"mnc"`
	CellID int64 `json:"cellId"`
	LAC    *int  `json:"lac"`
}

// Update describes what an import did to one row.
type Update struct {
	Key        TowerRef `json:"key"`
	Action     string   `json:"action"`
	OldSamples *int     `json:"oldSamples"`
	NewSamples int      `json:"newSamples"`
	OldLat     *float64 `json:"oldLat"`
	OldLon     *float64 `json:"oldLon"`
	NewLat     float64  `json:"newLat"`
	NewLon     float64  `json:"newLon"`
}

// Result is the outcome of a finished import.
type Result struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// Job is the externally visible state of one import.
type Job struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	TotalRows     int       `json:"totalRows"`
	ProcessedRows int       `json:"processedRows"`
	Errors        []string  `json:"errors"`
	LastUpdates   []Update  `json:"lastUpdates"`
	Result        *Result   `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store persists jobs. Implementations return copies; mutating a returned
// Job has no effect on the stored one.
type Store interface {
	Create(ctx context.Context) (Job, error)
	// Update applies mutate to the stored job. mutate may run more than once
	// when the backend retries on contention.
	Update(ctx context.Context, id string, mutate func(*Job)) (Job, error)
	AppendUpdate(ctx context.Context, id string, u Update, limit int) error
	Get(ctx context.Context, id string) (Job, error)
}

// New returns a fresh PENDING job.
func New(now time.Time) Job {
	return Job{
		ID:          NewID(),
		Status:      StatusPending,
		Errors:      []string{},
		LastUpdates: []Update{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewID returns a random 32-character hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PushUpdate appends u and keeps only the newest limit entries.
func (j *Job) PushUpdate(u Update, limit int) {
	if limit <= 0 {
		limit = DefaultRecentUpdates
	}
	j.LastUpdates = append(j.LastUpdates, u)
	if n := len(j.LastUpdates); n > limit {
		j.LastUpdates = append([]Update(nil), j.LastUpdates[n-limit:]...)
	}
}

// Clone returns a deep copy.
func (j Job) Clone() Job {
	out := j
	out.Errors = append([]string{}, j.Errors...)
	out.LastUpdates = append([]Update{}, j.LastUpdates...)
	if j.Result != nil {
		r := *j.Result
		r.Errors = append([]string{}, j.Result.Errors...)
		out.Result = &r
	}
	return out
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailed
}
