package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

func currencyExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts a decimal amount to the provider's integer unit using
// banker's rounding.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(currencyExponent(currency)).RoundBank(0).IntPart()
}

func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -currencyExponent(currency))
}
