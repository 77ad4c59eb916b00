package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriptionConfig names the ERP resource holding subscriptions
type SubscriptionConfig struct {
	Resource      string
	ConfirmMethod string
	DefaultWeeks  int
}

// SubscriptionService creates recurring basket subscriptions
type SubscriptionService struct {
	gateway   RPCGateway
	publisher EventPublisher
	cfg       SubscriptionConfig
	logger    *zap.Logger
}

// CreateSubscriptionRequest represents a request to create a subscription
type CreateSubscriptionRequest struct {
	CustomerID  int64  `json:"customerId" binding:"required"`
	BasketType  string `json:"basketType" binding:"required"`
	Weeks       int    `json:"weeks"`
	PickupPoint string `json:"pickupPoint" binding:"required"`
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(gateway RPCGateway, publisher EventPublisher, cfg SubscriptionConfig) *SubscriptionService {
	return &SubscriptionService{
		gateway:   gateway,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// Create records a subscription for the customer. When a confirm method is configured the
// subscription is confirmed right away; a failed confirmation is logged, not returned.
func (s *SubscriptionService) Create(ctx context.Context, req *CreateSubscriptionRequest) (*models.Subscription, error) {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.Create")
	defer span.End()

	sub, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	raw, err := s.gateway.Call(ctx, s.cfg.Resource, erp.OpCreate, []any{map[string]any{
		"partner_id":           sub.CustomerID,
		"name":                 fmt.Sprintf("Basket subscription %s", sub.BasketType),
		"recurring_rule_count": sub.Weeks,
		"description":          fmt.Sprintf("Pickup point: %s", sub.PickupPoint),
	}}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	sub.ID, err = erp.ExtractID(raw)
	if err != nil {
		return nil, err
	}

	util.SubscriptionsCreatedTotal.Inc()
	s.logger.Info("Subscription created",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("customer_id", sub.CustomerID),
		zap.Int("weeks", sub.Weeks))

	if s.cfg.ConfirmMethod != "" {
		if _, err := s.gateway.Call(ctx, s.cfg.Resource, s.cfg.ConfirmMethod, erp.IDs(sub.ID), nil); err != nil {
			s.logger.Warn("Failed to confirm subscription",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err))
		}
	}

	if s.publisher != nil {
		event := &models.SubscriptionCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeSubscriptionCreated,
				Timestamp: time.Now(),
			},
			Subscription: *sub,
		}
		if err := s.publisher.PublishSubscriptionCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish SubscriptionCreated event", zap.Error(err))
		}
	}

	return sub, nil
}

func (s *SubscriptionService) validate(req *CreateSubscriptionRequest) (*models.Subscription, error) {
	if req.CustomerID <= 0 {
		return nil, inputErr("customerId", "must be positive")
	}
	basketType := strings.TrimSpace(req.BasketType)
	if basketType == "" {
		return nil, inputErr("basketType", "is required")
	}
	pickupPoint := strings.TrimSpace(req.PickupPoint)
	if pickupPoint == "" {
		return nil, inputErr("pickupPoint", "is required")
	}

	weeks := req.Weeks
	switch {
	case weeks < 0:
		return nil, inputErr("weeks", "must not be negative")
	case weeks == 0:
		weeks = s.cfg.DefaultWeeks
	}
	if weeks <= 0 {
		return nil, inputErr("weeks", "is required")
	}

	return &models.Subscription{
		CustomerID:  req.CustomerID,
		BasketType:  basketType,
		Weeks:       weeks,
		PickupPoint: pickupPoint,
	}, nil
}
