package models

import "time"

// Event types
const (
	EventTypeOrderConfirmed       = "ORDER_CONFIRMED"
	EventTypeFulfillmentAttempted = "FULFILLMENT_ATTEMPTED"
	EventTypeLoyaltyRegistered    = "LOYALTY_REGISTERED"
	EventTypeSubscriptionCreated  = "SUBSCRIPTION_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmedEvent published once the ERP order is confirmed
type OrderConfirmedEvent struct {
	BaseEvent
	PipelineVersion string      `json:"pipelineVersion"`
	OrderID         int64       `json:"orderId"`
	CustomerID      int64       `json:"customerId"`
	PickupPoint     string      `json:"pickupPoint"`
	Total           string      `json:"total"`
	Lines           []OrderLine `json:"lines"`
}

// FulfillmentAttemptedEvent carries the per-batch outcomes of one order
type FulfillmentAttemptedEvent struct {
	BaseEvent
	OrderID int64              `json:"orderId"`
	Batches []FulfillmentBatch `json:"batches"`
}

// FailedBatches returns the batches that did not validate
func (e *FulfillmentAttemptedEvent) FailedBatches() []FulfillmentBatch {
	var failed []FulfillmentBatch
	for _, b := range e.Batches {
		if b.Failed() {
			failed = append(failed, b)
		}
	}
	return failed
}

// LoyaltyRegisteredEvent published after a registration
type LoyaltyRegisteredEvent struct {
	BaseEvent
	CustomerID int64   `json:"customerId"`
	CardID     int64   `json:"cardId"`
	ProgramID  int64   `json:"programId"`
	Points     float64 `json:"points"`
	Created    bool    `json:"created"`
}

// SubscriptionCreatedEvent published after a subscription is created
type SubscriptionCreatedEvent struct {
	BaseEvent
	Subscription Subscription `json:"subscription"`
}
