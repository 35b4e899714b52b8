package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-order-backend/internal/database"
	"github.com/safar/go-order-backend/internal/models"
	"github.com/shopspring/decimal"
)

// LineRequest is one requested order line. A zero Quantity means the caller
// left it unspecified and defaults to 1.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// Catalog resolves current product prices. Ids that do not exist are simply
// absent from the result, never an error.
type Catalog interface {
	GetPrices(ctx context.Context, q database.Querier, productIDs []int64) (map[int64]decimal.Decimal, error)
}

// Store is the persistence contract for the order aggregate. Mutations take
// the open transaction so the order row and its lines always commit as one
// unit. Lookups that miss return nil (or false) rather than an error.
type Store interface {
	Insert(ctx context.Context, tx *sql.Tx, ownerID int64, total decimal.Decimal, lines []models.OrderLine) (*models.Order, error)
	GetOwned(ctx context.Context, q database.Querier, ownerID, orderID int64) (*models.Order, error)
	ListByOwner(ctx context.Context, q database.Querier, ownerID int64) ([]models.Order, error)
	LockOwned(ctx context.Context, tx *sql.Tx, ownerID, orderID int64) (bool, error)
	ReplaceLines(ctx context.Context, tx *sql.Tx, orderID int64, total decimal.Decimal, lines []models.OrderLine) error
	Delete(ctx context.Context, tx *sql.Tx, ownerID, orderID int64) (bool, error)
}

// Engine orchestrates order creation, retrieval, replacement and deletion.
// It is the only writer of the order store; every mutation runs inside one
// serializable transaction and recomputes the total from the line set.
type Engine struct {
	db      *sql.DB
	catalog Catalog
	store   Store
}

func NewEngine(db *sql.DB, catalog Catalog, store Store) *Engine {
	return &Engine{db: db, catalog: catalog, store: store}
}

// CreateOrder persists a new order with one line per requested item, each
// line carrying the catalog price snapshotted at this moment. All rows
// commit together or none do.
func (e *Engine) CreateOrder(ctx context.Context, ownerID int64, requested []LineRequest) (*models.Order, error) {
	if len(requested) == 0 {
		return nil, ErrEmptyOrder
	}

	var order *models.Order

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		lines, total, err := e.snapshotLines(ctx, tx, requested)
		if err != nil {
			return err
		}

		created, err := e.store.Insert(ctx, tx, ownerID, total, lines)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOwnedOrder returns the order with its lines only when it belongs to
// ownerID. A foreign order is indistinguishable from a missing one.
func (e *Engine) GetOwnedOrder(ctx context.Context, ownerID, orderID int64) (*models.Order, error) {
	order, err := e.store.GetOwned(ctx, e.db, ownerID, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// ListOrders returns all orders owned by ownerID, with their lines.
func (e *Engine) ListOrders(ctx context.Context, ownerID int64) ([]models.Order, error) {
	list, err := e.store.ListByOwner(ctx, e.db, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

// ReplaceOrderLines replaces the order's whole line set with freshly
// snapshotted prices and a recomputed total. A nil requested slice asks for
// no replacement and returns the current state unchanged. The order row is
// locked for the duration of the transaction, so concurrent replacements on
// the same order serialize as one-after-the-other.
func (e *Engine) ReplaceOrderLines(ctx context.Context, ownerID, orderID int64, requested *[]LineRequest) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		locked, err := e.store.LockOwned(ctx, tx, ownerID, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if !locked {
			return ErrNotFound
		}

		if requested != nil {
			lines, total, err := e.snapshotLines(ctx, tx, *requested)
			if err != nil {
				return err
			}

			if err := e.store.ReplaceLines(ctx, tx, orderID, total, lines); err != nil {
				return fmt.Errorf("replace lines: %w", err)
			}
		}

		current, err := e.store.GetOwned(ctx, tx, ownerID, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if current == nil {
			return ErrNotFound
		}

		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// DeleteOrder removes the order and all its lines in one transaction.
// It reports whether a deletion occurred; a foreign or missing order id
// yields false with no error.
func (e *Engine) DeleteOrder(ctx context.Context, ownerID, orderID int64) (bool, error) {
	var deleted bool

	err := database.WithRetry(ctx, e.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		d, err := e.store.Delete(ctx, tx, ownerID, orderID)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		deleted = d
		return nil
	})
	if err != nil {
		return false, err
	}

	return deleted, nil
}

// snapshotLines resolves catalog prices for the requested items and builds
// the line set with per-line price snapshots. It fails with
// *UnknownProductError when any requested id is missing from the catalog,
// before anything is written.
func (e *Engine) snapshotLines(ctx context.Context, q database.Querier, requested []LineRequest) ([]models.OrderLine, decimal.Decimal, error) {
	ids := make([]int64, 0, len(requested))
	seen := make(map[int64]struct{}, len(requested))
	for _, req := range requested {
		if _, ok := seen[req.ProductID]; ok {
			continue
		}
		seen[req.ProductID] = struct{}{}
		ids = append(ids, req.ProductID)
	}

	prices, err := e.catalog.GetPrices(ctx, q, ids)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("get prices: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, decimal.Zero, &UnknownProductError{ProductIDs: missing}
	}

	lines := make([]models.OrderLine, 0, len(requested))
	for _, req := range requested {
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		lines = append(lines, models.OrderLine{
			ProductID: req.ProductID,
			Quantity:  qty,
			UnitPrice: prices[req.ProductID],
		})
	}

	return lines, ComputeTotal(lines), nil
}
