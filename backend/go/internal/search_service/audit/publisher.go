// Package audit delivers one event per answered request to a sink. Events
// never carry answer text.
package audit

import (
	"Neurologix/backend/go/internal/database/kafka"
	"Neurologix/backend/go/internal/search_service/rag/interfaces"
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes audit events as JSON to a Kafka topic, keyed by request id.
type KafkaPublisher struct {
	writer messageWriter
}

var _ interfaces.AuditSink = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to the configured audit topic.
func NewKafkaPublisher(client *kafka.KafkaClient) *KafkaPublisher {
	return &KafkaPublisher{writer: client.NewWriter(client.Config.AuditTopic)}
}

// Publish serialises event and writes it.
func (p *KafkaPublisher) Publish(ctx context.Context, event schema.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.RequestID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to write audit event to kafka: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogSink writes audit events to the service log. It is used when no Kafka
// topic is configured.
type LogSink struct {
	log *logger.Logger
}

var _ interfaces.AuditSink = (*LogSink)(nil)

// NewLogSink creates a LogSink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, event schema.AuditEvent) error {
	s.log.WithTrace(event.RequestID, event.UserID).WithPayload(map[string]interface{}{
		"route":            event.Route,
		"metric":           event.Metric,
		"team_ids":         event.TeamIDs,
		"structured_count": event.StructuredCount,
		"semantic_count":   event.SemanticCount,
		"degraded":         event.Degraded,
		"empty_evidence":   event.EmptyEvidence,
		"error_kind":       event.ErrorKind,
		"latency_ms":       event.LatencyMs,
	}).Info("audit")
	return nil
}
