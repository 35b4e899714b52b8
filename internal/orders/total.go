package orders

import (
	"github.com/safar/go-order-backend/internal/models"
	"github.com/shopspring/decimal"
)

// ComputeTotal is the single source of an order's total: the sum of
// quantity x unit price snapshot over its current lines. Every mutation path
// persists the value this function returns; the total is never accepted from
// a caller.
func ComputeTotal(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}
