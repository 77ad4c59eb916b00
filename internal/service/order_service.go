package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PipelineVersion identifies the business rules applied by PlaceOrder.
// Version 2: create, confirm, notify, accrue loyalty on an existing card, fulfill.
const PipelineVersion = "2"

// Notification outcomes reported in the order response.
const (
	NotificationSent   = "SENT"
	NotificationFailed = "FAILED"
)

// Loyalty outcomes reported in the order response.
const (
	LoyaltyAccrued  = "ACCRUED"
	LoyaltyNoCard   = "NO_CARD"
	LoyaltyFailed   = "FAILED"
	LoyaltyDisabled = "DISABLED"
)

const defaultLockTTL = 5 * time.Minute

const confirmationMessage = "Your basket order is confirmed. See you at the pickup point."

// OrderConfig carries the backend identifiers used by the order pipeline
type OrderConfig struct {
	ConfirmationTemplateID int64
	LoyaltyProgramID       int64
	AccrueLoyalty          bool
	IdempotencyTTL         time.Duration
	LockTTL                time.Duration
}

// OrderService drives an order from request to fulfillment
type OrderService struct {
	gateway     RPCGateway
	customers   *CustomerResolver
	baskets     *BasketResolver
	loyalty     *LoyaltyLedger
	fulfillment *FulfillmentDriver
	publisher   EventPublisher
	idempotency IdempotencyStore
	cfg         OrderConfig
	logger      *zap.Logger
}

// NewOrderService creates a new order service. publisher and idempotency may be nil.
func NewOrderService(
	gateway RPCGateway,
	customers *CustomerResolver,
	baskets *BasketResolver,
	loyalty *LoyaltyLedger,
	fulfillment *FulfillmentDriver,
	publisher EventPublisher,
	idempotency IdempotencyStore,
	cfg OrderConfig,
) *OrderService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &OrderService{
		gateway:     gateway,
		customers:   customers,
		baskets:     baskets,
		loyalty:     loyalty,
		fulfillment: fulfillment,
		publisher:   publisher,
		idempotency: idempotency,
		cfg:         cfg,
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to place an order.
// Either CustomerID or Customer identifies the buyer; either Products or BasketID the contents.
type CreateOrderRequest struct {
	CustomerID     int64           `json:"customerId"`
	Customer       *models.Contact `json:"customer,omitempty"`
	BasketID       int64           `json:"basketId"`
	PickupPoint    string          `json:"pickupPoint"`
	Products       []AdHocItem     `json:"products"`
	IdempotencyKey string          `json:"-"`
}

// LoyaltyOutcome reports what order-driven accrual did
type LoyaltyOutcome struct {
	Status string   `json:"status"`
	CardID int64    `json:"cardId,omitempty"`
	Points *float64 `json:"points,omitempty"`
}

// CreateOrderResponse represents the response after placing an order
type CreateOrderResponse struct {
	OrderID         int64                     `json:"orderId"`
	State           models.OrderState         `json:"state"`
	PipelineVersion string                    `json:"pipelineVersion"`
	Total           decimal.Decimal           `json:"total"`
	Notification    string                    `json:"notification"`
	Loyalty         LoyaltyOutcome            `json:"loyalty"`
	Fulfillment     []models.FulfillmentBatch `json:"fulfillment"`
}

// PlaceOrder runs the whole pipeline. Errors are only returned for steps up to confirmation;
// once the order is confirmed the caller always receives its id.
func (s *OrderService) PlaceOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if req.IdempotencyKey == "" || s.idempotency == nil {
		return s.runPipeline(ctx, req)
	}

	if resp, ok := s.replay(ctx, req.IdempotencyKey); ok {
		return resp, nil
	}

	lockKey := "order:" + req.IdempotencyKey
	lockToken := uuid.New().String()
	acquired, err := s.idempotency.AcquireLock(ctx, lockKey, lockToken, s.cfg.LockTTL)
	if err != nil {
		s.logger.Warn("Failed to acquire idempotency lock, running without it",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
	} else if !acquired {
		return nil, &ConflictError{Key: req.IdempotencyKey}
	} else {
		defer func() {
			if err := s.idempotency.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockToken); err != nil {
				s.logger.Warn("Failed to release idempotency lock", zap.Error(err))
			}
		}()

		// A request holding the lock may have finished between the first lookup and acquisition.
		if resp, ok := s.replay(ctx, req.IdempotencyKey); ok {
			return resp, nil
		}
	}

	resp, err := s.runPipeline(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(resp)
	if err == nil {
		err = s.idempotency.SetIdempotentResponse(context.WithoutCancel(ctx), req.IdempotencyKey, payload, s.cfg.IdempotencyTTL)
	}
	if err != nil {
		s.logger.Warn("Failed to store idempotent response",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
	}

	return resp, nil
}

func (s *OrderService) replay(ctx context.Context, key string) (*CreateOrderResponse, bool) {
	payload, found, err := s.idempotency.GetIdempotentResponse(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read idempotent response", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var resp CreateOrderResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.logger.Warn("Discarding unreadable idempotent response", zap.String("idempotency_key", key), zap.Error(err))
		return nil, false
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", resp.OrderID))
	return &resp, true
}

func (s *OrderService) runPipeline(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	start := time.Now()
	defer func() {
		util.OrderPipelineLatency.Observe(time.Since(start).Seconds())
	}()

	pickupPoint := strings.TrimSpace(req.PickupPoint)
	if pickupPoint == "" {
		util.OrdersFailedTotal.WithLabelValues("invalid_input").Inc()
		return nil, inputErr("pickupPoint", "is required")
	}

	customerID, err := s.resolveCustomer(ctx, req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	order := models.NewOrder(customerID, pickupPoint)

	order.Lines, err = s.resolveLines(ctx, req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	if err := order.Advance(models.OrderStateLinesResolved); err != nil {
		return nil, err
	}

	order.ID, err = s.Create(ctx, customerID, pickupPoint, order.Lines)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	if err := order.Advance(models.OrderStateCreated); err != nil {
		return nil, err
	}

	// No rollback exists past this point: a confirmed order stays confirmed.
	if err := s.Confirm(ctx, order.ID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("confirm_failed").Inc()
		return nil, err
	}
	if err := order.Advance(models.OrderStateConfirmed); err != nil {
		return nil, err
	}

	total := order.Total()
	s.publishOrderConfirmed(ctx, order, total)

	resp := &CreateOrderResponse{
		OrderID:         order.ID,
		PipelineVersion: PipelineVersion,
		Total:           total,
	}

	// Notification and loyalty are finished even if the client goes away.
	detached := context.WithoutCancel(ctx)

	resp.Notification = s.notify(detached, order.ID)
	if err := order.Advance(models.OrderStateNotificationSent); err != nil {
		return nil, err
	}

	resp.Loyalty = s.accrue(detached, customerID, total)

	// Fulfillment stops starting new batches once the request context is done.
	batches, err := s.fulfillment.ProcessAll(ctx, order.ID)
	if err != nil {
		s.logger.Error("Fulfillment could not start",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
	if err := order.Advance(models.OrderStateFulfillmentAttempted); err != nil {
		return nil, err
	}
	resp.Fulfillment = batches
	if resp.Fulfillment == nil {
		resp.Fulfillment = []models.FulfillmentBatch{}
	}
	s.publishFulfillmentAttempted(detached, order.ID, batches)

	resp.State = order.State
	s.logger.Info("Order pipeline completed",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", customerID),
		zap.String("total", total.String()),
		zap.String("notification", resp.Notification),
		zap.String("loyalty", resp.Loyalty.Status),
		zap.Int("batches", len(batches)))

	return resp, nil
}

func (s *OrderService) resolveCustomer(ctx context.Context, req *CreateOrderRequest) (int64, error) {
	if req.CustomerID > 0 {
		return req.CustomerID, nil
	}
	if req.Customer != nil {
		return s.customers.Resolve(ctx, *req.Customer)
	}
	if req.CustomerID < 0 {
		return 0, inputErr("customerId", "must be positive")
	}
	return 0, inputErr("customerId", "customerId or customer is required")
}

// resolveLines prefers the ad-hoc product list over the kit when both are sent.
func (s *OrderService) resolveLines(ctx context.Context, req *CreateOrderRequest) ([]models.OrderLine, error) {
	switch {
	case len(req.Products) > 0:
		return s.baskets.ResolveAdHoc(req.Products)
	case req.BasketID != 0:
		return s.baskets.ResolveKit(ctx, req.BasketID)
	default:
		return nil, inputErr("products", "products or basketId is required")
	}
}

// Create records a draft order in the ERP and returns its id.
// Empty lines are rejected without calling the backend.
func (s *OrderService) Create(ctx context.Context, customerID int64, pickupPoint string, lines []models.OrderLine) (int64, error) {
	if len(lines) == 0 {
		return 0, inputErr("products", "order has no lines")
	}
	if customerID <= 0 {
		return 0, inputErr("customerId", "must be positive")
	}

	orderLines := make([]any, 0, len(lines))
	for _, l := range lines {
		orderLines = append(orderLines, []any{0, 0, map[string]any{
			"product_id":      l.ProductID,
			"product_uom_qty": l.Quantity,
			"price_unit":      l.UnitPrice.InexactFloat64(),
		}})
	}

	raw, err := s.gateway.Call(ctx, erp.ResourceSaleOrder, erp.OpCreate, []any{map[string]any{
		"partner_id": customerID,
		"note":       fmt.Sprintf("Pickup point: %s", pickupPoint),
		"order_line": orderLines,
	}}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}

	orderID, err := erp.ExtractID(raw)
	if err != nil {
		return 0, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", orderID),
		zap.Int64("customer_id", customerID),
		zap.Int("lines", len(lines)))
	return orderID, nil
}

// Confirm transitions the ERP order to confirmed, generating its fulfillment batches.
func (s *OrderService) Confirm(ctx context.Context, orderID int64) error {
	if _, err := s.gateway.Call(ctx, erp.ResourceSaleOrder, erp.OpActionConfirm, erp.IDs(orderID), nil); err != nil {
		return fmt.Errorf("failed to confirm order %d: %w", orderID, err)
	}
	util.OrdersConfirmedTotal.Inc()
	s.logger.Info("Order confirmed", zap.Int64("order_id", orderID))
	return nil
}

// Notify sends the confirmation message. It reports the failure and never aborts the pipeline.
func (s *OrderService) Notify(ctx context.Context, orderID int64) error {
	var err error
	if s.cfg.ConfirmationTemplateID > 0 {
		_, err = s.gateway.Call(ctx, erp.ResourceMailTemplate, erp.OpSendMail,
			[]any{[]int64{s.cfg.ConfirmationTemplateID}, orderID},
			map[string]any{"force_send": true})
	} else {
		_, err = s.gateway.Call(ctx, erp.ResourceSaleOrder, erp.OpMessagePost, erp.IDs(orderID),
			map[string]any{"body": confirmationMessage, "message_type": "comment"})
	}
	if err != nil {
		return &NotificationError{OrderID: orderID, Cause: err}
	}
	return nil
}

func (s *OrderService) notify(ctx context.Context, orderID int64) string {
	if err := s.Notify(ctx, orderID); err != nil {
		util.NotificationsFailedTotal.Inc()
		s.logger.Warn("Order notification failed", zap.Int64("order_id", orderID), zap.Error(err))
		return NotificationFailed
	}
	return NotificationSent
}

func (s *OrderService) accrue(ctx context.Context, customerID int64, total decimal.Decimal) LoyaltyOutcome {
	if !s.cfg.AccrueLoyalty || s.cfg.LoyaltyProgramID <= 0 || s.loyalty == nil {
		return LoyaltyOutcome{Status: LoyaltyDisabled}
	}

	card, err := s.loyalty.AccrueFromOrder(ctx, customerID, s.cfg.LoyaltyProgramID, total)
	if err != nil {
		s.logger.Warn("Loyalty accrual failed",
			zap.Int64("customer_id", customerID),
			zap.Error(err))
		return LoyaltyOutcome{Status: LoyaltyFailed}
	}
	if card == nil {
		return LoyaltyOutcome{Status: LoyaltyNoCard}
	}

	points := card.Points
	return LoyaltyOutcome{Status: LoyaltyAccrued, CardID: card.ID, Points: &points}
}

func (s *OrderService) publishOrderConfirmed(ctx context.Context, order *models.Order, total decimal.Decimal) {
	if s.publisher == nil {
		return
	}
	event := &models.OrderConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderConfirmed,
			Timestamp: time.Now(),
		},
		PipelineVersion: PipelineVersion,
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		PickupPoint:     order.PickupPoint,
		Total:           total.String(),
		Lines:           order.Lines,
	}
	if err := s.publisher.PublishOrderConfirmed(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("Failed to publish OrderConfirmed event", zap.Error(err))
	}
}

func (s *OrderService) publishFulfillmentAttempted(ctx context.Context, orderID int64, batches []models.FulfillmentBatch) {
	if s.publisher == nil || len(batches) == 0 {
		return
	}
	event := &models.FulfillmentAttemptedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeFulfillmentAttempted,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		Batches: batches,
	}
	if err := s.publisher.PublishFulfillmentAttempted(ctx, event); err != nil {
		s.logger.Error("Failed to publish FulfillmentAttempted event", zap.Error(err))
	}
}

// failureReason labels aborted pipelines for OrdersFailedTotal.
func failureReason(err error) string {
	var (
		inErr     *InputError
		recipeErr *RecipeError
		authErr   *erp.AuthError
	)
	switch {
	case errors.As(err, &inErr):
		return "invalid_input"
	case errors.As(err, &recipeErr):
		return "recipe"
	case errors.As(err, &authErr):
		return "auth"
	default:
		return "remote"
	}
}
