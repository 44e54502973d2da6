package payment

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// majorUnits converts an amount in minor units to a decimal string in major
// units using the ISO 4217 scale of the currency ("2900" USD -> "29.00").
func majorUnits(amount int64, code string) string {
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}
	return strconv.FormatFloat(float64(amount)/math.Pow10(scale), 'f', scale, 64)
}

// collectCurrency returns the currency c is collected in. A provider account
// pinned to one currency rejects charges priced in another; amounts are never
// relabelled.
func collectCurrency(c Charge, pinned string) (string, error) {
	switch {
	case pinned == "" && c.Currency == "":
		return "", fmt.Errorf("%w: missing currency", ErrInvalidCharge)
	case pinned == "":
		return strings.ToUpper(c.Currency), nil
	case c.Currency != "" && !strings.EqualFold(c.Currency, pinned):
		return "", fmt.Errorf("%w: %s charge cannot be collected in %s", ErrInvalidCharge, strings.ToUpper(c.Currency), strings.ToUpper(pinned))
	}
	return strings.ToUpper(pinned), nil
}
