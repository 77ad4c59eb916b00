package service

import (
	"context"
	"encoding/json"
	"time"

	"basket-order-service/internal/models"
)

// RPCGateway is the uniform call surface over the ERP (see erp.Gateway).
type RPCGateway interface {
	Call(ctx context.Context, resource, operation string, args []any, kwargs map[string]any) (json.RawMessage, error)
}

// EventPublisher publishes domain events (see broker.EventPublisher).
type EventPublisher interface {
	PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error
	PublishFulfillmentAttempted(ctx context.Context, event *models.FulfillmentAttemptedEvent) error
	PublishLoyaltyRegistered(ctx context.Context, event *models.LoyaltyRegisteredEvent) error
	PublishSubscriptionCreated(ctx context.Context, event *models.SubscriptionCreatedEvent) error
}

// IdempotencyStore remembers order responses by idempotency key (see redisclient.Client).
type IdempotencyStore interface {
	GetIdempotentResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetIdempotentResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// Cache stores JSON documents with a TTL (see redisclient.Client).
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

