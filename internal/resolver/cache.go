package resolver

import "github.com/couchcryptid/cell-locator/internal/domain"

type optInt struct {
	v  int64
	ok bool
}

func optOf[T int | int64](p *T) optInt {
	if p == nil {
		return optInt{}
	}
	return optInt{v: int64(*p), ok: true}
}

// cacheKey is the full argument tuple of a resolution. AllowExternal is part
// of the key because the same identity can resolve differently with it set.
type cacheKey struct {
	radio         domain.Radio
	mcc           optInt
	mnc           optInt
	cellID        optInt
	lac           optInt
	pci           optInt
	earfcn        optInt
	signal        optInt
	allowExternal bool
}

func newCacheKey(q domain.ResolveQuery) cacheKey {
	return cacheKey{
		radio:         q.Radio,
		mcc:           optOf(q.MCC),
		mnc:           optOf(q.MNC),
		cellID:        optOf(q.CellID),
		lac:           optOf(q.LAC),
		pci:           optOf(q.PCI),
		earfcn:        optOf(q.EARFCN),
		signal:        optOf(q.SignalStrength),
		allowExternal: q.AllowExternal,
	}
}
