package worker

import (
	"context"
	"time"

	"basket-order-service/internal/broker"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"go.uber.org/zap"
)

const processedMarkerTTL = 7 * 24 * time.Hour

// BatchProcessor assigns and validates one fulfillment batch (see service.FulfillmentDriver)
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, orderID, batchID int64) models.FulfillmentBatch
}

// EventMarker remembers handled events (see redisclient.Client)
type EventMarker interface {
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// FulfillmentRetryWorker retries the failed batches of a pipeline run exactly once.
// It never changes the order itself.
type FulfillmentRetryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	processor    BatchProcessor
	marker       EventMarker
	logger       *zap.Logger
}

// NewFulfillmentRetryWorker creates a new fulfillment retry worker
func NewFulfillmentRetryWorker(
	consumer *broker.Consumer,
	processor BatchProcessor,
	marker EventMarker,
) *FulfillmentRetryWorker {
	w := &FulfillmentRetryWorker{
		consumer:  consumer,
		processor: processor,
		marker:    marker,
		logger:    util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnFulfillmentAttempted(w.HandleFulfillmentAttempted)

	return w
}

// Start starts the worker
func (w *FulfillmentRetryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment retry worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentRetryWorker) Stop() error {
	w.logger.Info("Stopping fulfillment retry worker")
	return w.consumer.Close()
}

// HandleFulfillmentAttempted retries every failed batch of the event. A redelivered event is skipped.
func (w *FulfillmentRetryWorker) HandleFulfillmentAttempted(ctx context.Context, event *models.FulfillmentAttemptedEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentRetryWorker.HandleFulfillmentAttempted")
	defer span.End()

	failed := event.FailedBatches()
	if len(failed) == 0 {
		return nil
	}

	first, err := w.marker.MarkEventProcessed(ctx, event.EventID, processedMarkerTTL)
	if err != nil {
		return err
	}
	if !first {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	for _, batch := range failed {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Info("Retrying fulfillment batch",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("batch_id", batch.ID),
			zap.String("previous_error", batch.Error))

		result := w.processor.ProcessBatch(ctx, event.OrderID, batch.ID)
		if result.Failed() {
			w.logger.Warn("Fulfillment batch still failing, manual action needed",
				zap.Int64("order_id", event.OrderID),
				zap.Int64("batch_id", batch.ID),
				zap.String("error", result.Error))
		}
	}

	return nil
}
