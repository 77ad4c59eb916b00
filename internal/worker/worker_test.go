package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"basket-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	calls   []int64
	outcome models.BatchState
}

func (p *fakeProcessor) ProcessBatch(_ context.Context, orderID, batchID int64) models.FulfillmentBatch {
	p.calls = append(p.calls, batchID)
	return models.FulfillmentBatch{ID: batchID, OrderID: orderID, State: p.outcome}
}

type memoryMarker struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (m *memoryMarker) MarkEventProcessed(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func attemptedEvent() *models.FulfillmentAttemptedEvent {
	return &models.FulfillmentAttemptedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeFulfillmentAttempted},
		OrderID:   42,
		Batches: []models.FulfillmentBatch{
			{ID: 1, OrderID: 42, State: models.BatchStateValidated},
			{ID: 2, OrderID: 42, State: models.BatchStateFailed, Error: "no stock"},
			{ID: 3, OrderID: 42, State: models.BatchStateSkipped},
		},
	}
}

func TestRetryOnlyFailedBatches(t *testing.T) {
	processor := &fakeProcessor{outcome: models.BatchStateValidated}
	w := &FulfillmentRetryWorker{processor: processor, marker: &memoryMarker{}, logger: zap.NewNop()}

	require.NoError(t, w.HandleFulfillmentAttempted(context.Background(), attemptedEvent()))
	assert.Equal(t, []int64{2}, processor.calls)
}

func TestRedeliveredEventIsNotRetriedTwice(t *testing.T) {
	processor := &fakeProcessor{outcome: models.BatchStateFailed}
	w := &FulfillmentRetryWorker{processor: processor, marker: &memoryMarker{}, logger: zap.NewNop()}

	require.NoError(t, w.HandleFulfillmentAttempted(context.Background(), attemptedEvent()))
	require.NoError(t, w.HandleFulfillmentAttempted(context.Background(), attemptedEvent()))
	assert.Equal(t, []int64{2}, processor.calls)
}

func TestNothingToRetry(t *testing.T) {
	processor := &fakeProcessor{}
	marker := &memoryMarker{}
	w := &FulfillmentRetryWorker{processor: processor, marker: marker, logger: zap.NewNop()}

	event := attemptedEvent()
	event.Batches = event.Batches[:1]

	require.NoError(t, w.HandleFulfillmentAttempted(context.Background(), event))
	assert.Empty(t, processor.calls)
	assert.Empty(t, marker.seen)
}

func TestMarkerFailureLeavesMessageUncommitted(t *testing.T) {
	processor := &fakeProcessor{}
	w := &FulfillmentRetryWorker{processor: processor, marker: &memoryMarker{err: errors.New("redis down")}, logger: zap.NewNop()}

	err := w.HandleFulfillmentAttempted(context.Background(), attemptedEvent())
	assert.EqualError(t, err, "redis down")
	assert.Empty(t, processor.calls)
}
