package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedRequest    = errors.New("malformed request")
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrCartNotFound        = errors.New("cart not found")
	ErrItemNotFound        = errors.New("item not found in cart")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrForbidden           = errors.New("forbidden")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// MalformedRequestError points at the first offending entry of a request.
// Index is -1 when the problem is not tied to a single item.
type MalformedRequestError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedRequestError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed request: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed request: items[%d].%s %s", e.Index, e.Field, e.Reason)
}

func (e *MalformedRequestError) Is(target error) bool { return target == ErrMalformedRequest }

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// Shortage describes one line that cannot be fulfilled
type Shortage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// OutOfStockError always lists every offending product, in request order.
type OutOfStockError struct {
	Items []Shortage
}

func (e *OutOfStockError) Error() string {
	names := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		names = append(names, it.Name)
	}
	return "out of stock: " + strings.Join(names, ", ")
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
