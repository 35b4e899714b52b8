package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOrder rejects creation requests with zero line items.
	ErrEmptyOrder = errors.New("order must contain at least one item")

	// ErrNotFound covers both a missing order and an order owned by another
	// user; callers cannot tell the two apart.
	ErrNotFound = errors.New("order not found")
)

// UnknownProductError reports catalog ids that did not resolve at write time.
type UnknownProductError struct {
	ProductIDs []int64
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("products not found: %v", e.ProductIDs)
}
