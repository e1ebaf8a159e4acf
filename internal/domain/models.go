package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry together with its inventory counter
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	Description string          `json:"description"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Role of an authenticated caller
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is what the auth collaborator yields for a request
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// ItemRequest is one requested line of a placement
type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// OrderEventType names what happened to an order
type OrderEventType string

const (
	EventOrderPlaced    OrderEventType = "order.placed"
	EventOrderCompleted OrderEventType = "order.completed"
	EventOrderCancelled OrderEventType = "order.cancelled"
	EventOrderDeleted   OrderEventType = "order.deleted"
)

// OrderEvent is published after an order change has been committed
type OrderEvent struct {
	ID         string          `json:"id"`
	Type       OrderEventType  `json:"type"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Status     OrderStatus     `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	OccurredAt time.Time       `json:"occurred_at"`
}
