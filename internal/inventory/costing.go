package inventory

import "github.com/shopspring/decimal"

// AverageCost computes the weighted-average unit cost after receiving a lot:
//
//	newAvg = ((currentStock * currentAvg) + (qty * unitCost)) / (currentStock + qty)
//
// With zero (or drained-negative) starting stock the lot cost becomes the new
// average, avoiding a division by zero.
func AverageCost(currentStock, currentAvg, qty, unitCost decimal.Decimal) decimal.Decimal {
	if currentStock.LessThanOrEqual(decimal.Zero) {
		return unitCost
	}
	newQty := currentStock.Add(qty)
	if newQty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	total := currentStock.Mul(currentAvg).Add(qty.Mul(unitCost))
	return total.Div(newQty)
}

// ReverseAverageCost undoes a previously received lot of (qty, unitCost):
//
//	newAvg = ((currentStock * currentAvg) - (qty * unitCost)) / (currentStock - qty)
//
// Guarded to zero when the divisor or the remaining value is not positive.
func ReverseAverageCost(currentStock, currentAvg, qty, unitCost decimal.Decimal) decimal.Decimal {
	divisor := currentStock.Sub(qty)
	if divisor.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	remaining := currentStock.Mul(currentAvg).Sub(qty.Mul(unitCost))
	if remaining.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return remaining.Div(divisor)
}
