package domain

import (
	"context"
	"encoding/json"
	"time"
)

// LookupRecord is one audited external lookup attempt.
type LookupRecord struct {
	Provider     string          `json:"provider"`
	MCC          int             `json:"mcc"`
	MNC          int             `json:"mnc"`
	LAC          *int            `json:"lac"`
	CellID       int64           `json:"cellId"`
	PCI          *int            `json:"pci"`
	EARFCN       *int            `json:"earfcn"`
	Success      bool            `json:"success"`
	Lat          *float64        `json:"lat"`
	Lon          *float64        `json:"lon"`
	AccuracyM    *float64        `json:"accuracyM"`
	RequestURL   string          `json:"requestUrl,omitempty"`
	RequestBody  json.RawMessage `json:"requestBody,omitempty"`
	ResponseBody json.RawMessage `json:"responseBody,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// AuditLog records external lookup attempts. Writes are best-effort.
type AuditLog interface {
	RecordLookup(ctx context.Context, rec LookupRecord) error
}
