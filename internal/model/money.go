package model

import "github.com/shopspring/decimal"

// RoundUSD rounds a dollar amount to whole cents using decimal
// arithmetic, avoiding the float64 cent-drift that accumulates across
// repeated debits/credits to a cash balance.
func RoundUSD(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return out
}
