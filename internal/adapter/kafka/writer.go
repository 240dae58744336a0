// Package kafka publishes refreshed point batches to a Kafka topic so other
// services can follow catalog changes.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/heritage-sites-service/internal/adapter/sheet"
	"github.com/couchcryptid/heritage-sites-service/internal/config"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
)

// Writer produces one message per point, keyed by point id.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes the points of one refresh in a single WriteMessages call.
// Every message of the batch carries the same loaded_at header.
func (w *Writer) LoadBatch(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	loadedAt := time.Now().UTC()
	msgs := make([]kafkago.Message, len(points))
	for i := range points {
		msg, err := serializeToMessage(points[i], loadedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d points: %w", len(msgs), err)
	}
	w.logger.Debug("points published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Point into a Kafka message.
func serializeToMessage(p domain.Point, loadedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize point: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(sheet.SourceTag)},
			{Key: "loaded_at", Value: []byte(loadedAt.Format(time.RFC3339))},
		},
	}, nil
}
