package audit

import (
	"Neurologix/backend/go/internal/search_service/rag/schema"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := new(mockWriter)
	var sent []kafkago.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).([]kafkago.Message)
	}).Return(nil).Once()

	p := &KafkaPublisher{writer: w}
	event := schema.AuditEvent{
		RequestID:       "req-1",
		TeamIDs:         []string{"LSU_TIGERS"},
		Route:           schema.StrategyStructured,
		Metric:          "headache_severity",
		StructuredCount: 1,
		LatencyMs:       12,
		Timestamp:       time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, sent, 1)
	assert.Equal(t, "req-1", string(sent[0].Key))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(sent[0].Value, &decoded))
	assert.Equal(t, "headache_severity", decoded["metric"])
	assert.NotContains(t, decoded, "answer")
	w.AssertExpectations(t)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := new(mockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	p := &KafkaPublisher{writer: w}

	err := p.Publish(context.Background(), schema.AuditEvent{RequestID: "req-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
