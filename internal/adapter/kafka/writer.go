// Package kafka exports dataset refresh events to a Kafka topic so other
// systems can react to dashboard data changes. The export is optional;
// the dashboard runs fine without a broker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ai-labc/cropai/internal/config"
	"github.com/ai-labc/cropai/internal/domain"
)

// RefreshEvent records one fresh dataset landing in the state store.
type RefreshEvent struct {
	Dataset     string `json:"dataset"`
	FieldID     string `json:"fieldId,omitempty"`
	Fingerprint string `json:"fingerprint"`
	PublishedAt string `json:"publishedAt"`
}

// EventWriter produces refresh events to the configured topic. It
// implements orchestrator.EventSink.
type EventWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewEventWriter creates a Kafka producer for the events topic.
func NewEventWriter(cfg *config.Config, logger *slog.Logger) *EventWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &EventWriter{writer: w, logger: logger}
}

// PublishRefresh serializes and publishes one refresh event.
func (w *EventWriter) PublishRefresh(ctx context.Context, dataset, fieldID, fingerprint string) error {
	event := RefreshEvent{
		Dataset:     dataset,
		FieldID:     fieldID,
		Fingerprint: fingerprint,
		PublishedAt: domain.Now().UTC().Format(time.RFC3339),
	}
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *EventWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RefreshEvent into a Kafka message, keyed
// by fingerprint so refreshes of the same request land on one partition.
func serializeToMessage(event RefreshEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize refresh event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Fingerprint),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(event.Dataset)},
			{Key: "published_at", Value: []byte(event.PublishedAt)},
		},
	}, nil
}
