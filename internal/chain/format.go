package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// displayPlaces is the precision shown on the dashboard.
const displayPlaces = 6

// FormatUnits converts a raw integer amount to a decimal with the given
// number of decimals (wei to ether for 18).
func FormatUnits(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// Display rounds d for presentation, dropping trailing zeros.
func Display(d decimal.Decimal) string {
	return d.Round(displayPlaces).String()
}
