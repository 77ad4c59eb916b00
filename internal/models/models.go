package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Contact identifies a customer by email; name, phone and consent are copied onto new records.
type Contact struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Phone   string `json:"phone"`
	Consent bool   `json:"consent"`
}

// Product is a read-only catalog entry
type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
}

// Kit is a sellable basket whose contents come from a recipe
type Kit struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	RecipeID int64           `json:"recipeId"`
}

// RecipeLine is one (product, quantity) pair of a recipe
type RecipeLine struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity"`
}

// BasketComponent is a product as listed inside a basket
type BasketComponent struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Quantity float64 `json:"quantity"`
}

// Basket is a kit together with its expanded composition
type Basket struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Price    decimal.Decimal   `json:"price"`
	Products []BasketComponent `json:"products"`
}

// OrderLine is normalized whether it came from an ad-hoc list or a kit
type OrderLine struct {
	ProductID int64           `json:"productId"`
	Quantity  float64         `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal returns quantity x unit price
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromFloat(l.Quantity))
}

// LinesTotal sums the subtotals of lines
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// OrderState is a step of the order pipeline
type OrderState string

// Order states, in the only order they may be visited
const (
	OrderStateReceived             OrderState = "RECEIVED"
	OrderStateLinesResolved        OrderState = "LINES_RESOLVED"
	OrderStateCreated              OrderState = "CREATED"
	OrderStateConfirmed            OrderState = "CONFIRMED"
	OrderStateNotificationSent     OrderState = "NOTIFICATION_SENT"
	OrderStateFulfillmentAttempted OrderState = "FULFILLMENT_ATTEMPTED"
)

var orderStateSequence = []OrderState{
	OrderStateReceived,
	OrderStateLinesResolved,
	OrderStateCreated,
	OrderStateConfirmed,
	OrderStateNotificationSent,
	OrderStateFulfillmentAttempted,
}

// Order tracks one pass through the pipeline
type Order struct {
	ID          int64       `json:"id"`
	CustomerID  int64       `json:"customerId"`
	PickupPoint string      `json:"pickupPoint"`
	Lines       []OrderLine `json:"lines"`
	State       OrderState  `json:"state"`
}

// NewOrder returns an order in the Received state
func NewOrder(customerID int64, pickupPoint string) *Order {
	return &Order{
		CustomerID:  customerID,
		PickupPoint: pickupPoint,
		State:       OrderStateReceived,
	}
}

// Advance moves the order to next. Only the immediate successor is accepted.
func (o *Order) Advance(next OrderState) error {
	for i, s := range orderStateSequence {
		if s != o.State {
			continue
		}
		if i+1 < len(orderStateSequence) && orderStateSequence[i+1] == next {
			o.State = next
			return nil
		}
		break
	}
	return fmt.Errorf("illegal order transition %s -> %s", o.State, next)
}

// Total returns the sum over the order lines
func (o *Order) Total() decimal.Decimal {
	return LinesTotal(o.Lines)
}

// LoyaltyCard is a per-customer, per-program balance
type LoyaltyCard struct {
	ID         int64   `json:"id"`
	ProgramID  int64   `json:"programId"`
	CustomerID int64   `json:"customerId"`
	Points     float64 `json:"points"`
}

// BatchState is the state of one fulfillment batch
type BatchState string

const (
	BatchStateToAssign  BatchState = "TO_ASSIGN"
	BatchStateAssigned  BatchState = "ASSIGNED"
	BatchStateValidated BatchState = "VALIDATED"
	BatchStateFailed    BatchState = "FAILED"
	BatchStateSkipped   BatchState = "SKIPPED"
)

// FulfillmentBatch is the outcome of processing one picking
type FulfillmentBatch struct {
	ID      int64      `json:"id"`
	OrderID int64      `json:"orderId"`
	Name    string     `json:"name,omitempty"`
	State   BatchState `json:"state"`
	Error   string     `json:"error,omitempty"`
}

// Failed reports whether the batch needs another attempt
func (b FulfillmentBatch) Failed() bool {
	return b.State == BatchStateFailed
}

// Subscription is a recurring basket order, independent of single orders
type Subscription struct {
	ID          int64  `json:"id"`
	CustomerID  int64  `json:"customerId"`
	BasketType  string `json:"basketType"`
	Weeks       int    `json:"weeks"`
	PickupPoint string `json:"pickupPoint"`
}
