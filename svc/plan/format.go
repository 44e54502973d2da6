package plan

import (
	"errors"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatPrice renders the price of one term of cycle for the given locale,
// e.g. "US$ 29.00" for professional monthly in English.
func FormatPrice(p Plan, cycle BillingCycle, tag language.Tag) (string, error) {
	return FormatAmount(p.PriceFor(cycle), p.Currency, tag)
}

// FormatAmount renders an amount in minor units of the ISO currency code.
func FormatAmount(minor int64, code string, tag language.Tag) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", errors.Join(ErrUnknownCurrency, err)
	}

	scale, _ := currency.Standard.Rounding(unit)
	amount := float64(minor) / math.Pow10(scale)

	printer := message.NewPrinter(tag)
	return printer.Sprint(currency.Symbol(unit.Amount(amount))), nil
}
