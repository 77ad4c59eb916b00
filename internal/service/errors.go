package service

import (
	"fmt"

	"basket-order-service/internal/apperr"
)

// InputError is a missing or invalid request field. It never reaches the ERP.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InputError) Code() apperr.Code { return apperr.CodeValidation }

func inputErr(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// RecipeErrorKind distinguishes the ways a kit can fail to expand.
type RecipeErrorKind string

const (
	BasketNotFound        RecipeErrorKind = "basket not found"
	BasketHasNoRecipe     RecipeErrorKind = "basket has no recipe"
	BasketAmbiguousRecipe RecipeErrorKind = "basket references more than one recipe"
	RecipeEmpty           RecipeErrorKind = "recipe has no lines"
)

// RecipeError is a kit that cannot be turned into order lines.
type RecipeError struct {
	Kind     RecipeErrorKind
	BasketID int64
}

func (e *RecipeError) Error() string {
	return fmt.Sprintf("basket %d: %s", e.BasketID, e.Kind)
}

func (e *RecipeError) Code() apperr.Code { return apperr.CodeRecipe }

// Is matches any RecipeError of the same kind, so callers can test errors.Is(err, &RecipeError{Kind: RecipeEmpty}).
func (e *RecipeError) Is(target error) bool {
	t, ok := target.(*RecipeError)
	return ok && t.Kind == e.Kind
}

// FulfillmentStepError is one batch failing to assign or validate. It is recorded, never returned to callers.
type FulfillmentStepError struct {
	BatchID int64
	Step    string
	Cause   error
}

func (e *FulfillmentStepError) Error() string {
	return fmt.Sprintf("batch %d %s failed: %v", e.BatchID, e.Step, e.Cause)
}

func (e *FulfillmentStepError) Unwrap() error { return e.Cause }

// NotificationError is a confirmation message that could not be dispatched.
type NotificationError struct {
	OrderID int64
	Cause   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification for order %d failed: %v", e.OrderID, e.Cause)
}

func (e *NotificationError) Unwrap() error { return e.Cause }

// ConflictError is a request whose idempotency key is held by another in-flight request.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request %q is already being processed", e.Key)
}

func (e *ConflictError) Code() apperr.Code { return apperr.CodeConflict }

// ConfigError is an operation the server is not configured to perform.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

func (e *ConfigError) Code() apperr.Code { return apperr.CodeInternal }
