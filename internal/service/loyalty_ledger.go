package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LoyaltyLedger accrues and initializes loyalty balances.
//
// Order-driven accrual never creates a card; only Register does, and only once per
// (customer, program). Accrual is read-then-write: two orders completing at the same time
// for one customer may both read the old balance and one increment is lost. This is accepted.
type LoyaltyLedger struct {
	gateway     RPCGateway
	customers   *CustomerResolver
	publisher   EventPublisher
	signupBonus float64
	logger      *zap.Logger
}

// RegistrationResult is the outcome of a loyalty registration
type RegistrationResult struct {
	CustomerID int64   `json:"customerId"`
	CardID     int64   `json:"cardId"`
	Points     float64 `json:"points"`
	Created    bool    `json:"created"`
}

// NewLoyaltyLedger creates a new loyalty ledger
func NewLoyaltyLedger(gateway RPCGateway, customers *CustomerResolver, publisher EventPublisher, signupBonus float64) *LoyaltyLedger {
	return &LoyaltyLedger{
		gateway:     gateway,
		customers:   customers,
		publisher:   publisher,
		signupBonus: signupBonus,
		logger:      util.GetLogger(),
	}
}

// FindCard returns the card for (customer, program), or nil when there is none.
func (l *LoyaltyLedger) FindCard(ctx context.Context, customerID, programID int64) (*models.LoyaltyCard, error) {
	raw, err := l.gateway.Call(ctx, erp.ResourceLoyaltyCard, erp.OpSearchRead,
		erp.Domain(
			erp.Cond("partner_id", "=", customerID),
			erp.Cond("program_id", "=", programID),
		),
		map[string]any{"fields": []string{"id", "points"}, "order": "id asc", "limit": 1})
	if err != nil {
		// A card search with no payload means the customer is not enrolled.
		if erp.IsEmptyResult(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search loyalty card: %w", err)
	}

	var cards []struct {
		ID     int64   `json:"id"`
		Points float64 `json:"points"`
	}
	if err := json.Unmarshal(raw, &cards); err != nil {
		return nil, fmt.Errorf("failed to decode loyalty card: %w", err)
	}
	if len(cards) == 0 {
		return nil, nil
	}

	return &models.LoyaltyCard{
		ID:         cards[0].ID,
		ProgramID:  programID,
		CustomerID: customerID,
		Points:     cards[0].Points,
	}, nil
}

// AccrueFromOrder adds amount to the customer's existing card.
// It returns nil without error when the customer holds no card for the program.
func (l *LoyaltyLedger) AccrueFromOrder(ctx context.Context, customerID, programID int64, amount decimal.Decimal) (*models.LoyaltyCard, error) {
	ctx, span := util.StartSpan(ctx, "LoyaltyLedger.AccrueFromOrder")
	defer span.End()

	if amount.IsNegative() {
		return nil, inputErr("amount", "must not be negative")
	}

	card, err := l.FindCard(ctx, customerID, programID)
	if err != nil {
		util.LoyaltyAccrualsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if card == nil {
		util.LoyaltyAccrualsTotal.WithLabelValues("no_card").Inc()
		l.logger.Info("No loyalty card, accrual skipped",
			zap.Int64("customer_id", customerID),
			zap.Int64("program_id", programID))
		return nil, nil
	}
	if amount.IsZero() {
		return card, nil
	}

	points := decimal.NewFromFloat(card.Points).Add(amount).InexactFloat64()
	_, err = l.gateway.Call(ctx, erp.ResourceLoyaltyCard, erp.OpWrite,
		[]any{[]int64{card.ID}, map[string]any{"points": points}}, nil)
	if err != nil {
		util.LoyaltyAccrualsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to update loyalty card %d: %w", card.ID, err)
	}

	util.LoyaltyAccrualsTotal.WithLabelValues("accrued").Inc()
	l.logger.Info("Loyalty points accrued",
		zap.Int64("customer_id", customerID),
		zap.Int64("card_id", card.ID),
		zap.Float64("before", card.Points),
		zap.Float64("after", points))

	card.Points = points
	return card, nil
}

// Register enrolls contact in programID. A new card receives the signup bonus;
// an existing card is returned unchanged.
func (l *LoyaltyLedger) Register(ctx context.Context, contact models.Contact, programID int64) (*RegistrationResult, error) {
	ctx, span := util.StartSpan(ctx, "LoyaltyLedger.Register")
	defer span.End()

	if programID <= 0 {
		return nil, &ConfigError{Setting: "LOYALTY_PROGRAM_ID"}
	}

	customerID, err := l.customers.Resolve(ctx, contact)
	if err != nil {
		util.LoyaltyRegistrationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	card, err := l.FindCard(ctx, customerID, programID)
	if err != nil {
		util.LoyaltyRegistrationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &RegistrationResult{CustomerID: customerID}
	if card != nil {
		result.CardID = card.ID
		result.Points = card.Points
		util.LoyaltyRegistrationsTotal.WithLabelValues("existing").Inc()
		l.logger.Info("Customer already enrolled",
			zap.Int64("customer_id", customerID),
			zap.Int64("card_id", card.ID))
	} else {
		raw, err := l.gateway.Call(ctx, erp.ResourceLoyaltyCard, erp.OpCreate, []any{map[string]any{
			"partner_id": customerID,
			"program_id": programID,
			"points":     l.signupBonus,
		}}, nil)
		if err != nil {
			util.LoyaltyRegistrationsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to create loyalty card: %w", err)
		}
		cardID, err := erp.ExtractID(raw)
		if err != nil {
			util.LoyaltyRegistrationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		result.CardID = cardID
		result.Points = l.signupBonus
		result.Created = true
		util.LoyaltyRegistrationsTotal.WithLabelValues("created").Inc()
		l.logger.Info("Loyalty card created",
			zap.Int64("customer_id", customerID),
			zap.Int64("card_id", cardID),
			zap.Float64("points", l.signupBonus))
	}

	if l.publisher != nil {
		event := &models.LoyaltyRegisteredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeLoyaltyRegistered,
				Timestamp: time.Now(),
			},
			CustomerID: customerID,
			CardID:     result.CardID,
			ProgramID:  programID,
			Points:     result.Points,
			Created:    result.Created,
		}
		if err := l.publisher.PublishLoyaltyRegistered(ctx, event); err != nil {
			l.logger.Error("Failed to publish LoyaltyRegistered event", zap.Error(err))
		}
	}

	return result, nil
}
