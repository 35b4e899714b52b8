package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-order-backend/internal/database"
	"github.com/safar/go-order-backend/internal/models"
	"github.com/shopspring/decimal"
)

// Orders is the Postgres order store. Mutating methods take the caller's
// open transaction: the order row and its lines are only ever written inside
// one unit of work.
type Orders struct{}

func NewOrders() *Orders {
	return &Orders{}
}

func (s *Orders) Insert(ctx context.Context, tx *sql.Tx, ownerID int64, total decimal.Decimal, lines []models.OrderLine) (*models.Order, error) {
	order := &models.Order{
		UserID:     ownerID,
		TotalPrice: total,
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_price, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, created_at`,
		ownerID, total).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i := range lines {
		lines[i].OrderID = order.ID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, product_id, quantity, price)
			 VALUES ($1, $2, $3, $4)`,
			order.ID, lines[i].ProductID, lines[i].Quantity, lines[i].UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("insert order line: %w", err)
		}
	}

	order.Lines = lines
	return order, nil
}

// GetOwned loads the order with its lines in a single statement, so the
// total and the line set always come from one snapshot. Returns nil when no
// order with that id belongs to ownerID.
func (s *Orders) GetOwned(ctx context.Context, q database.Querier, ownerID, orderID int64) (*models.Order, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT o.id, o.user_id, o.total_price, o.created_at,
		        l.product_id, l.quantity, l.price
		 FROM orders o
		 LEFT JOIN order_lines l ON l.order_id = o.id
		 WHERE o.id = $1 AND o.user_id = $2`,
		orderID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	defer rows.Close()

	var order *models.Order
	for rows.Next() {
		var (
			o         models.Order
			productID sql.NullInt64
			quantity  sql.NullInt64
			price     decimal.NullDecimal
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.CreatedAt,
			&productID, &quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		if order == nil {
			order = &o
		}
		if productID.Valid {
			order.Lines = append(order.Lines, models.OrderLine{
				OrderID:   order.ID,
				ProductID: productID.Int64,
				Quantity:  int(quantity.Int64),
				UnitPrice: price.Decimal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return order, nil
}

func (s *Orders) ListByOwner(ctx context.Context, q database.Querier, ownerID int64) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT o.id, o.user_id, o.total_price, o.created_at,
		        l.product_id, l.quantity, l.price
		 FROM orders o
		 LEFT JOIN order_lines l ON l.order_id = o.id
		 WHERE o.user_id = $1
		 ORDER BY o.created_at DESC, o.id DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		list  []models.Order
		index = make(map[int64]int)
	)
	for rows.Next() {
		var (
			o         models.Order
			productID sql.NullInt64
			quantity  sql.NullInt64
			price     decimal.NullDecimal
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.CreatedAt,
			&productID, &quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		pos, ok := index[o.ID]
		if !ok {
			pos = len(list)
			index[o.ID] = pos
			list = append(list, o)
		}
		if productID.Valid {
			list[pos].Lines = append(list[pos].Lines, models.OrderLine{
				OrderID:   o.ID,
				ProductID: productID.Int64,
				Quantity:  int(quantity.Int64),
				UnitPrice: price.Decimal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return list, nil
}

// LockOwned takes a row lock on the order if it exists and belongs to
// ownerID. Concurrent writers of the same order queue up on this lock, so
// line replacements apply strictly one after the other.
func (s *Orders) LockOwned(ctx context.Context, tx *sql.Tx, ownerID, orderID int64) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		orderID, ownerID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lock order: %w", err)
	}
	return true, nil
}

// ReplaceLines deletes the order's whole line set, inserts the new one and
// persists the recomputed total, all on the caller's transaction.
func (s *Orders) ReplaceLines(ctx context.Context, tx *sql.Tx, orderID int64, total decimal.Decimal, lines []models.OrderLine) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}

	for i := range lines {
		lines[i].OrderID = orderID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, product_id, quantity, price)
			 VALUES ($1, $2, $3, $4)`,
			orderID, lines[i].ProductID, lines[i].Quantity, lines[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET total_price = $2 WHERE id = $1`, orderID, total); err != nil {
		return fmt.Errorf("update order total: %w", err)
	}

	return nil
}

// Delete removes the order and its lines together. Reports false when no
// order with that id belongs to ownerID.
func (s *Orders) Delete(ctx context.Context, tx *sql.Tx, ownerID, orderID int64) (bool, error) {
	locked, err := s.LockOwned(ctx, tx, ownerID, orderID)
	if err != nil {
		return false, err
	}
	if !locked {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return false, fmt.Errorf("delete order lines: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}

	return true, nil
}
