// Package redis stores import job status in Redis so any replica can answer
// status queries.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/cell-locator/internal/config"
	"github.com/couchcryptid/cell-locator/internal/jobs"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "cell-locator:job:"
	maxRetries = 10
)

// JobStore implements jobs.Store with one JSON value per job, expiring after ttl.
// Updates use WATCH/MULTI and retry on contention.
type JobStore struct {
	client *goredis.Client
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewClient opens a Redis client from the configured address.
func NewClient(cfg *config.Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewJobStore wraps client. A nil clock uses real time.
func NewJobStore(client *goredis.Client, ttl time.Duration, clock clockwork.Clock) *JobStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JobStore{client: client, ttl: ttl, clock: clock}
}

func key(id string) string { return keyPrefix + id }

// Ping reports whether Redis is reachable.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *JobStore) Create(ctx context.Context) (jobs.Job, error) {
	job := jobs.New(s.clock.Now().UTC())
	data, err := json.Marshal(job)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("encode job: %w", err)
	}
	if err := s.client.Set(ctx, key(job.ID), data, s.ttl).Err(); err != nil {
		return jobs.Job{}, fmt.Errorf("store job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (jobs.Job, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return jobs.Job{}, jobs.ErrNotFound
	}
	if err != nil {
		return jobs.Job{}, fmt.Errorf("load job: %w", err)
	}
	return decode(data)
}

func (s *JobStore) Update(ctx context.Context, id string, mutate func(*jobs.Job)) (jobs.Job, error) {
	k := key(id)
	var out jobs.Job

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, goredis.Nil) {
			return jobs.ErrNotFound
		}
		if err != nil {
			return err
		}
		job, err := decode(data)
		if err != nil {
			return err
		}

		mutate(&job)
		job.UpdatedAt = s.clock.Now().UTC()
		encoded, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, k, encoded, s.ttl)
			return nil
		})
		if err == nil {
			out = job
		}
		return err
	}

	for range maxRetries {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				return jobs.Job{}, err
			}
			return jobs.Job{}, fmt.Errorf("update job %s: %w", id, err)
		}
		return out, nil
	}
	return jobs.Job{}, fmt.Errorf("update job %s: too much contention", id)
}

func (s *JobStore) AppendUpdate(ctx context.Context, id string, u jobs.Update, limit int) error {
	_, err := s.Update(ctx, id, func(j *jobs.Job) { j.PushUpdate(u, limit) })
	return err
}

func decode(data []byte) (jobs.Job, error) {
	var job jobs.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return jobs.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
