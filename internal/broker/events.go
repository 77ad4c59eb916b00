package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes keyed events (see Producer)
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderConfirmed publishes OrderConfirmed event
func (ep *EventPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishFulfillmentAttempted publishes FulfillmentAttempted event
func (ep *EventPublisher) PublishFulfillmentAttempted(ctx context.Context, event *models.FulfillmentAttemptedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishLoyaltyRegistered publishes LoyaltyRegistered event
func (ep *EventPublisher) PublishLoyaltyRegistered(ctx context.Context, event *models.LoyaltyRegisteredEvent) error {
	return ep.producer.PublishEvent(ctx, customerKey(event.CustomerID), event)
}

// PublishSubscriptionCreated publishes SubscriptionCreated event
func (ep *EventPublisher) PublishSubscriptionCreated(ctx context.Context, event *models.SubscriptionCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, customerKey(event.Subscription.CustomerID), event)
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

func customerKey(customerID int64) string {
	return fmt.Sprintf("customer-%d", customerID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onFulfillmentAttempted func(context.Context, *models.FulfillmentAttemptedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnFulfillmentAttempted registers a handler for FulfillmentAttempted events
func (eh *EventHandler) OnFulfillmentAttempted(handler func(context.Context, *models.FulfillmentAttemptedEvent) error) {
	eh.onFulfillmentAttempted = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without a handler are ignored.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeFulfillmentAttempted:
		if eh.onFulfillmentAttempted != nil {
			var event models.FulfillmentAttemptedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal FulfillmentAttempted event: %w", err)
			}
			return eh.onFulfillmentAttempted(ctx, &event)
		}

	default:
		logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
