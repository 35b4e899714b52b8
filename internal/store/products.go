package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-order-backend/internal/database"
	"github.com/safar/go-order-backend/internal/models"
	"github.com/shopspring/decimal"
)

// Products is the Postgres product catalog.
type Products struct {
	db *sql.DB
}

func NewProducts(db *sql.DB) *Products {
	return &Products{db: db}
}

// GetPrices resolves current prices for the given product ids. Ids without a
// catalog entry are simply absent from the result. Runs on whatever Querier
// the caller supplies, so the order engine can read prices inside its own
// transaction.
func (s *Products) GetPrices(ctx context.Context, q database.Querier, productIDs []int64) (map[int64]decimal.Decimal, error) {
	prices := make(map[int64]decimal.Decimal, len(productIDs))
	if len(productIDs) == 0 {
		return prices, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, price FROM products WHERE id = ANY($1)`,
		pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			price decimal.Decimal
		)
		if err := rows.Scan(&id, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return prices, nil
}

func (s *Products) Create(ctx context.Context, name, description string, price decimal.Decimal) (*models.Product, error) {
	product := &models.Product{
		Name:        name,
		Description: description,
		Price:       price,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO products (name, description, price, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, created_at`,
		name, description, price).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (s *Products) Get(ctx context.Context, id int64) (*models.Product, error) {
	product := &models.Product{}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, price, created_at
		 FROM products
		 WHERE id = $1`,
		id).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// List returns catalog entries, optionally filtered by a case-insensitive
// name substring.
func (s *Products) List(ctx context.Context, nameFilter string) ([]models.Product, error) {
	query := `
		SELECT id, name, description, price, created_at
		FROM products`
	args := []any{}

	if nameFilter != "" {
		query += ` WHERE name ILIKE '%' || $1 || '%'`
		args = append(args, nameFilter)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// Update applies the non-nil fields. Reports false when the product does not
// exist. Running orders are unaffected: their lines keep the snapshots taken
// when they were written.
func (s *Products) Update(ctx context.Context, id int64, name, description *string, price *decimal.Decimal) (bool, error) {
	var nullPrice decimal.NullDecimal
	if price != nil {
		nullPrice = decimal.NullDecimal{Decimal: *price, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET name        = COALESCE($2, name),
		     description = COALESCE($3, description),
		     price       = COALESCE($4, price)
		 WHERE id = $1`,
		id, name, description, nullPrice)
	if err != nil {
		return false, fmt.Errorf("update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (s *Products) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
