// Package resolver maps cell identities to towers: an exact local match,
// then a local signature (neighbor) match, then external providers whose
// answers are written back to the tower store.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/geometry"
	"github.com/couchcryptid/cell-locator/internal/observability"
)

// Defaults for Options fields left at zero.
const (
	DefaultProviderTimeout = 10 * time.Second
	DefaultAuditTimeout    = 2 * time.Second
	DefaultSignatureLimit  = 200
)

// Options configures a Resolver.
type Options struct {
	// Reference is the caller's best current position estimate. When set,
	// signature matches pick the candidate nearest to it.
	Reference       *geometry.Point
	ProviderTimeout time.Duration
	// AuditTimeout bounds each audit write so a stalled sink cannot hold up
	// resolution.
	AuditTimeout    time.Duration
	SignatureLimit  int
}

// Resolver resolves cell identities for a single locate call. It memoizes
// results for its lifetime and is not safe for concurrent use.
type Resolver struct {
	store     domain.TowerStore
	providers []domain.Provider
	audit     domain.AuditLog
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	cache     map[cacheKey]domain.ResolveResult
}

// New creates a Resolver. Providers are tried in the given order. audit may be nil.
func New(store domain.TowerStore, providers []domain.Provider, audit domain.AuditLog, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Resolver {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = DefaultAuditTimeout
	}
	if opts.SignatureLimit <= 0 {
		opts.SignatureLimit = DefaultSignatureLimit
	}
	return &Resolver{
		store:     store,
		providers: providers,
		audit:     audit,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
		cache:     make(map[cacheKey]domain.ResolveResult),
	}
}

// Resolve returns the tower for q and how it was found. Store and provider
// failures degrade to the next strategy; absence is reported as NOT_FOUND.
func (r *Resolver) Resolve(ctx context.Context, q domain.ResolveQuery) domain.ResolveResult {
	key := newCacheKey(q)
	if res, ok := r.cache[key]; ok {
		r.metrics.ResolverCache.WithLabelValues("hit").Inc()
		return res
	}
	r.metrics.ResolverCache.WithLabelValues("miss").Inc()

	res := r.resolve(ctx, q)
	r.cache[key] = res
	r.metrics.Resolutions.WithLabelValues(res.Source).Inc()
	return res
}

func (r *Resolver) resolve(ctx context.Context, q domain.ResolveQuery) domain.ResolveResult {
	if t := r.lookupExact(ctx, q); t != nil {
		return domain.ResolveResult{Tower: t, Source: domain.ProvenanceLocal}
	}
	if t := r.lookupSignature(ctx, q); t != nil {
		return domain.ResolveResult{Tower: t, Source: domain.ProvenanceSignature}
	}
	if q.AllowExternal {
		if res, ok := r.lookupExternal(ctx, q); ok {
			return res
		}
	}
	return domain.ResolveResult{Source: domain.ProvenanceNotFound}
}

func (r *Resolver) lookupExact(ctx context.Context, q domain.ResolveQuery) *domain.Tower {
	id, ok := identityOf(q)
	if !ok {
		return nil
	}

	if id.lac != nil {
		t, err := r.store.FindExact(ctx, id.mcc, id.mnc, id.cellID, id.lac)
		if err != nil {
			r.storeFailed("find_exact", err)
			return nil
		}
		if t != nil {
			return t
		}
	}

	t, err := r.store.FindExact(ctx, id.mcc, id.mnc, id.cellID, nil)
	if err != nil {
		r.storeFailed("find_exact", err)
		return nil
	}
	return t
}

func (r *Resolver) lookupSignature(ctx context.Context, q domain.ResolveQuery) *domain.Tower {
	mcc, ok1 := known(q.MCC)
	mnc, ok2 := known(q.MNC)
	pci, ok3 := known(q.PCI)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}

	candidates, err := r.store.FindBySignature(ctx, domain.SignatureQuery{
		MCC:    mcc,
		MNC:    mnc,
		PCI:    pci,
		EARFCN: knownPtr(q.EARFCN),
		LAC:    knownPtr(q.LAC),
		Limit:  r.opts.SignatureLimit,
	})
	if err != nil {
		r.storeFailed("find_signature", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	best := 0
	if ref := r.opts.Reference; ref != nil {
		bestD := geometry.GreatCircleDistance(ref.Lat, ref.Lon, candidates[0].Lat, candidates[0].Lon)
		for i := 1; i < len(candidates); i++ {
			d := geometry.GreatCircleDistance(ref.Lat, ref.Lon, candidates[i].Lat, candidates[i].Lon)
			if d < bestD {
				best, bestD = i, d
			}
		}
	}
	t := candidates[best]
	return &t
}

func (r *Resolver) storeFailed(op string, err error) {
	r.metrics.StoreErrors.WithLabelValues(op).Inc()
	r.logger.Warn("tower store lookup failed", "op", op, "error", err)
}

// identity is a query's (MCC, MNC, cell ID, LAC) with sentinels removed.
type identity struct {
	mcc, mnc int
	cellID   int64
	lac      *int
}

func identityOf(q domain.ResolveQuery) (identity, bool) {
	mcc, ok1 := known(q.MCC)
	mnc, ok2 := known(q.MNC)
	if !ok1 || !ok2 || q.CellID == nil || domain.IsSentinel(*q.CellID) {
		return identity{}, false
	}
	return identity{mcc: mcc, mnc: mnc, cellID: *q.CellID, lac: knownPtr(q.LAC)}, true
}

func known(v *int) (int, bool) {
	if v == nil || domain.IsSentinel(int64(*v)) {
		return 0, false
	}
	return *v, true
}

func knownPtr(v *int) *int {
	if n, ok := known(v); ok {
		return &n
	}
	return nil
}
