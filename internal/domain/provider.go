package domain

import (
	"context"
	"encoding/json"
)

// ProviderLookup is the identity sent to an external geolocation provider.
type ProviderLookup struct {
	Radio          Radio
	MCC            int
	MNC            int
	LAC            *int
	CellID         int64
	SignalStrength *int
}

// ProviderFix is a provider's answer plus the raw exchange for auditing.
type ProviderFix struct {
	Lat          float64
	Lon          float64
	AccuracyM    *float64
	RequestURL   string
	RequestBody  json.RawMessage
	ResponseBody json.RawMessage
}

// Provider looks up a single cell with an external geolocation service.
// Lookup returns (nil, nil) when the provider has no location for the cell.
type Provider interface {
	Name() string
	DatasetSource() DatasetSource
	Lookup(ctx context.Context, q ProviderLookup) (*ProviderFix, error)
}
