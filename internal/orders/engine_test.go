package orders

import (
	"context"
	"testing"

	"github.com/safar/go-order-backend/internal/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCatalog map[int64]decimal.Decimal

func (c staticCatalog) GetPrices(_ context.Context, _ database.Querier, productIDs []int64) (map[int64]decimal.Decimal, error) {
	prices := make(map[int64]decimal.Decimal)
	for _, id := range productIDs {
		if price, ok := c[id]; ok {
			prices[id] = price
		}
	}
	return prices, nil
}

func TestCreateOrderEmpty(t *testing.T) {
	engine := NewEngine(nil, staticCatalog{}, nil)

	_, err := engine.CreateOrder(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = engine.CreateOrder(context.Background(), 1, []LineRequest{})
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestSnapshotLines(t *testing.T) {
	engine := NewEngine(nil, staticCatalog{
		5: decimal.RequireFromString("9.99"),
	}, nil)

	lines, total, err := engine.snapshotLines(context.Background(), nil, []LineRequest{
		{ProductID: 5, Quantity: 2},
	})
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, int64(5), lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, lines[0].UnitPrice.Equal(decimal.RequireFromString("9.99")))
	assert.True(t, total.Equal(decimal.RequireFromString("19.98")), "got %s", total)
}

func TestSnapshotLinesDefaultQuantity(t *testing.T) {
	engine := NewEngine(nil, staticCatalog{
		5: decimal.RequireFromString("9.99"),
	}, nil)

	lines, _, err := engine.snapshotLines(context.Background(), nil, []LineRequest{
		{ProductID: 5},
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestSnapshotLinesUnknownProduct(t *testing.T) {
	engine := NewEngine(nil, staticCatalog{
		5: decimal.RequireFromString("9.99"),
	}, nil)

	_, _, err := engine.snapshotLines(context.Background(), nil, []LineRequest{
		{ProductID: 5, Quantity: 1},
		{ProductID: 99, Quantity: 1},
		{ProductID: 100, Quantity: 1},
	})

	var unknown *UnknownProductError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []int64{99, 100}, unknown.ProductIDs)
}

func TestSnapshotLinesDuplicateProduct(t *testing.T) {
	engine := NewEngine(nil, staticCatalog{
		5: decimal.RequireFromString("9.99"),
	}, nil)

	lines, total, err := engine.snapshotLines(context.Background(), nil, []LineRequest{
		{ProductID: 5, Quantity: 1},
		{ProductID: 5, Quantity: 2},
	})
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.True(t, total.Equal(decimal.RequireFromString("29.97")), "got %s", total)
}
