// Package audit fans lookup records out to several sinks.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/cell-locator/internal/domain"
)

// Multi writes each record to every sink. A failing sink does not stop the
// others; their errors are joined.
type Multi []domain.AuditLog

// RecordLookup implements domain.AuditLog.
func (m Multi) RecordLookup(ctx context.Context, rec domain.LookupRecord) error {
	var errs []error
	for i, sink := range m {
		if err := sink.RecordLookup(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("audit sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
