package orders

import (
	"testing"

	"github.com/safar/go-order-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeTotal(t *testing.T) {
	lines := []models.OrderLine{
		{ProductID: 5, Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		{ProductID: 7, Quantity: 3, UnitPrice: decimal.RequireFromString("200")},
	}

	total := ComputeTotal(lines)
	assert.True(t, total.Equal(decimal.RequireFromString("619.98")), "got %s", total)
}

func TestComputeTotalEmpty(t *testing.T) {
	assert.True(t, ComputeTotal(nil).IsZero())
}

func TestComputeTotalDuplicateProductLines(t *testing.T) {
	// The same product may appear on several lines, each with its own
	// snapshot; both contribute to the total.
	lines := []models.OrderLine{
		{ProductID: 5, Quantity: 1, UnitPrice: decimal.RequireFromString("9.99")},
		{ProductID: 5, Quantity: 1, UnitPrice: decimal.RequireFromString("14.99")},
	}

	total := ComputeTotal(lines)
	assert.True(t, total.Equal(decimal.RequireFromString("24.98")), "got %s", total)
}
