// Package kafka publishes external tower lookup audit records to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/cell-locator/internal/config"
	"github.com/couchcryptid/cell-locator/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces lookup records to the audit topic.
// It implements domain.AuditLog.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured audit topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.AuditKafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// RecordLookup publishes one record, keyed by cell so a cell's history stays
// on one partition.
func (w *Writer) RecordLookup(ctx context.Context, rec domain.LookupRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish lookup record: %w", err)
	}
	w.logger.Debug("lookup record published", "provider", rec.Provider, "cell_id", rec.CellID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func cellKey(rec domain.LookupRecord) string {
	lac := "-"
	if rec.LAC != nil {
		lac = strconv.Itoa(*rec.LAC)
	}
	return fmt.Sprintf("%d-%d-%s-%d", rec.MCC, rec.MNC, lac, rec.CellID)
}

// serializeToMessage marshals a LookupRecord into a Kafka message.
func serializeToMessage(rec domain.LookupRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize lookup record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(cellKey(rec)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "provider", Value: []byte(rec.Provider)},
			{Key: "success", Value: []byte(strconv.FormatBool(rec.Success))},
			{Key: "created_at", Value: []byte(rec.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
