package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
)

var errNoLocation = errors.New("provider returned no location")

// lookupExternal asks each provider in order and writes the first answer
// back to the tower store.
func (r *Resolver) lookupExternal(ctx context.Context, q domain.ResolveQuery) (domain.ResolveResult, bool) {
	id, ok := identityOf(q)
	if !ok || len(r.providers) == 0 {
		return domain.ResolveResult{}, false
	}

	lookup := domain.ProviderLookup{
		Radio:          domain.NormalizeRadio(string(q.Radio)),
		MCC:            id.mcc,
		MNC:            id.mnc,
		LAC:            id.lac,
		CellID:         id.cellID,
		SignalStrength: q.SignalStrength,
	}
	base := domain.LookupRecord{
		MCC:    id.mcc,
		MNC:    id.mnc,
		LAC:    id.lac,
		CellID: id.cellID,
		PCI:    knownPtr(q.PCI),
		EARFCN: knownPtr(q.EARFCN),
	}

	for _, p := range r.providers {
		rec := base
		rec.Provider = p.Name()

		fix, err := r.callProvider(ctx, p, lookup)
		if err != nil {
			r.logger.Warn("provider lookup failed", "provider", p.Name(), "cell_id", id.cellID, "error", err)
			r.recordFailure(ctx, rec, fix, err)
			continue
		}

		rec.Success = true
		rec.Lat, rec.Lon, rec.AccuracyM = &fix.Lat, &fix.Lon, fix.AccuracyM
		rec.RequestURL, rec.RequestBody, rec.ResponseBody = fix.RequestURL, fix.RequestBody, fix.ResponseBody
		r.record(ctx, rec)

		tower, err := r.upsert(ctx, p.DatasetSource(), lookup, base, *fix)
		if err != nil {
			r.logger.Warn("provider result write-back failed", "provider", p.Name(), "cell_id", id.cellID, "error", err)
			failed := base
			failed.Provider = p.Name()
			r.recordFailure(ctx, failed, fix, err)
			continue
		}
		return domain.ResolveResult{Tower: &tower, Source: p.Name()}, true
	}
	return domain.ResolveResult{}, false
}

func (r *Resolver) callProvider(ctx context.Context, p domain.Provider, q domain.ProviderLookup) (*domain.ProviderFix, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ProviderTimeout)
	defer cancel()

	start := time.Now()
	fix, err := p.Lookup(ctx, q)
	r.metrics.ProviderDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		r.metrics.ProviderRequests.WithLabelValues(p.Name(), "error").Inc()
		return nil, err
	case fix == nil:
		r.metrics.ProviderRequests.WithLabelValues(p.Name(), "empty").Inc()
		return nil, errNoLocation
	}
	r.metrics.ProviderRequests.WithLabelValues(p.Name(), "success").Inc()
	return fix, nil
}

func (r *Resolver) upsert(ctx context.Context, src domain.DatasetSource, q domain.ProviderLookup, rec domain.LookupRecord, fix domain.ProviderFix) (domain.Tower, error) {
	now := domain.Now()
	candidate := domain.Tower{
		Radio:        q.Radio,
		MCC:          q.MCC,
		MNC:          q.MNC,
		LAC:          q.LAC,
		CellID:       q.CellID,
		PCI:          rec.PCI,
		EARFCN:       rec.EARFCN,
		RangeM:       accuracyRange(fix.AccuracyM),
		Approximate:  true,
		Lat:          fix.Lat,
		Lon:          fix.Lon,
		Source:       src,
		CheckedCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tower, created, err := r.store.GetOrCreate(ctx, candidate)
	if err != nil {
		return domain.Tower{}, fmt.Errorf("get or create tower: %w", err)
	}
	if created {
		return tower, nil
	}

	updated, err := r.store.ApplyPatch(ctx, tower.ID, providerPatch(tower, fix, src, now))
	if err != nil {
		return domain.Tower{}, fmt.Errorf("update tower %d: %w", tower.ID, err)
	}
	return updated, nil
}

// providerPatch merges a provider answer into an existing tower. Coordinates
// of manually curated towers are never touched, and neither is their source.
// The checked counter always increments.
func providerPatch(existing domain.Tower, fix domain.ProviderFix, src domain.DatasetSource, now time.Time) domain.TowerPatch {
	p := domain.TowerPatch{CheckedDelta: 1, UpdatedAt: now}
	manual := existing.Source == domain.SourceManual

	updated := false
	if !manual && (existing.Lat != fix.Lat || existing.Lon != fix.Lon) {
		p.Lat, p.Lon = &fix.Lat, &fix.Lon
		updated = true
	}
	if existing.RangeM == nil && fix.AccuracyM != nil {
		p.RangeM = accuracyRange(fix.AccuracyM)
		updated = true
	}
	if updated && !manual {
		approx := true
		p.Source = &src
		p.Approximate = &approx
	}
	return p
}

func accuracyRange(acc *float64) *int {
	if acc == nil {
		return nil
	}
	v := int(*acc)
	return &v
}

func (r *Resolver) recordFailure(ctx context.Context, rec domain.LookupRecord, fix *domain.ProviderFix, err error) {
	rec.Success = false
	rec.Error = err.Error()
	if fix != nil {
		rec.RequestURL, rec.RequestBody, rec.ResponseBody = fix.RequestURL, fix.RequestBody, fix.ResponseBody
	}
	r.record(ctx, rec)
}

func (r *Resolver) record(ctx context.Context, rec domain.LookupRecord) {
	if r.audit == nil {
		return
	}
	rec.CreatedAt = domain.Now()
	ctx, cancel := context.WithTimeout(ctx, r.opts.AuditTimeout)
	defer cancel()
	if err := r.audit.RecordLookup(ctx, rec); err != nil {
		r.metrics.AuditFailures.Inc()
		r.logger.Warn("lookup audit write failed", "provider", rec.Provider, "error", err)
	}
}
