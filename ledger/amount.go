package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CentsToDecimal converts integer cents to a currency-unit decimal.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatCents renders cents the way the app displays money: "4,00 €", "-1,20 €".
func FormatCents(cents int64) string {
	s := CentsToDecimal(cents).StringFixed(2)
	return strings.Replace(s, ".", ",", 1) + " €"
}

// ParseCents parses a currency amount ("4", "4.5", "4,50") into cents,
// truncating sub-cent digits toward zero.
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "€"))
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Truncate(0).IntPart(), nil
}
