package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"go.uber.org/zap"
)

// CustomerResolver finds or creates ERP customers keyed by email
type CustomerResolver struct {
	gateway      RPCGateway
	consentField string
	logger       *zap.Logger
}

// NewCustomerResolver creates a new customer resolver.
// consentField names the partner field receiving the consent flag; empty disables it.
func NewCustomerResolver(gateway RPCGateway, consentField string) *CustomerResolver {
	return &CustomerResolver{
		gateway:      gateway,
		consentField: consentField,
		logger:       util.GetLogger(),
	}
}

// Resolve returns the id of the first customer whose email equals contact.Email,
// creating one when none exists. Pre-existing duplicates are left as they are.
func (r *CustomerResolver) Resolve(ctx context.Context, contact models.Contact) (int64, error) {
	ctx, span := util.StartSpan(ctx, "CustomerResolver.Resolve")
	defer span.End()

	contact.Email = strings.TrimSpace(contact.Email)
	contact.Name = strings.TrimSpace(contact.Name)
	contact.Phone = strings.TrimSpace(contact.Phone)
	if contact.Email == "" {
		return 0, inputErr("email", "is required")
	}

	id, found, err := r.find(ctx, contact.Email)
	if err != nil {
		return 0, err
	}
	if found {
		r.logger.Debug("Customer matched by email", zap.Int64("customer_id", id))
		return id, nil
	}

	if contact.Name == "" {
		return 0, inputErr("name", "is required to create a customer")
	}

	values := map[string]any{
		"name":          contact.Name,
		"email":         contact.Email,
		"phone":         contact.Phone,
		"customer_rank": 1,
	}
	if r.consentField != "" {
		values[r.consentField] = contact.Consent
	}

	raw, err := r.gateway.Call(ctx, erp.ResourcePartner, erp.OpCreate, []any{values}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create customer: %w", err)
	}

	id, err = erp.ExtractID(raw)
	if err != nil {
		return 0, err
	}

	util.CustomersCreatedTotal.Inc()
	r.logger.Info("Customer created", zap.Int64("customer_id", id))
	return id, nil
}

func (r *CustomerResolver) find(ctx context.Context, email string) (int64, bool, error) {
	raw, err := r.gateway.Call(ctx, erp.ResourcePartner, erp.OpSearchRead,
		erp.Domain(erp.Cond("email", "=", email)),
		map[string]any{"fields": []string{"id"}, "order": "id asc", "limit": 1})
	if err != nil {
		// A search with no payload means no match, not a failure.
		if erp.IsEmptyResult(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to search customer: %w", err)
	}

	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return 0, false, fmt.Errorf("failed to decode customer search: %w", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].ID, true, nil
}
