package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

// Terminal reports whether no transition may leave this status
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderLine is a product with the quantity and unit price captured at placement
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Order is a placed order. TotalPrice is fixed at creation; only Status changes later.
type Order struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Lines      []OrderLine     `json:"products"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewOrder builds a pending order and computes its total once.
func NewOrder(id, userID string, lines []OrderLine, now time.Time) Order {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return Order{
		ID:         id,
		UserID:     userID,
		Lines:      lines,
		TotalPrice: total,
		Status:     OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasProduct reports whether any line references productID
func (o Order) HasProduct(productID string) bool {
	for _, l := range o.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

// CheckTransition applies the status table:
//
//	owner: pending -> cancelled
//	admin: pending -> completed | cancelled
//
// Terminal statuses reject every transition regardless of actor.
func (o Order) CheckTransition(actor Identity, to OrderStatus) error {
	if _, ok := ParseOrderStatus(string(to)); !ok {
		return &MalformedRequestError{Index: -1, Field: "status", Reason: "must be one of pending, completed, cancelled"}
	}
	if o.Status.Terminal() || to == OrderStatusPending {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.UserID != "" && actor.UserID == o.UserID && to == OrderStatusCancelled {
		return nil
	}
	return ErrForbidden
}

// VisibleTo reports whether actor may read the order
func (o Order) VisibleTo(actor Identity) bool {
	return actor.IsAdmin() || (actor.UserID != "" && actor.UserID == o.UserID)
}
