package models

import (
	"fmt"
	"math"
	"strconv"
)

// zeroDecimalCurrencies are currencies whose minor unit equals the
// major unit, following the processor's zero-decimal list.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "COP": true, "DJF": true, "GNF": true,
	"JPY": true, "KMF": true, "KRW": true, "MGA": true, "PYG": true,
	"RWF": true, "UGX": true, "VND": true, "VUV": true, "XAF": true,
	"XOF": true, "XPF": true,
}

// MinorUnitDigits returns the number of decimal places of a currency's
// minor unit. COP has 0; the default is 2.
func MinorUnitDigits(currency string) int {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	return 2
}

// CalculatePrice computes the booking price from an hourly rate, both
// in minor units: round(hourlyRate * durationMin/60), half away from
// zero. For zero-decimal currencies this rounds to whole units.
func CalculatePrice(hourlyRate int64, durationMin int) int64 {
	return int64(math.Round(float64(hourlyRate) * float64(durationMin) / 60.0))
}

// FormatAmount renders an amount in minor units for display, e.g.
// 60000 COP -> "$60.000" and 1550 USD -> "$15,50". Thousands are
// grouped with dots and decimals with a comma, es-CO style.
func FormatAmount(amount int64, currency string) string {
	digits := MinorUnitDigits(currency)
	major := amount
	frac := int64(0)
	if digits > 0 {
		div := int64(math.Pow10(digits))
		major = amount / div
		frac = amount % div
		if frac < 0 {
			frac = -frac
		}
	}

	sign := ""
	if major < 0 {
		sign = "-"
		major = -major
	}

	grouped := groupThousands(strconv.FormatInt(major, 10))
	if digits == 0 {
		return fmt.Sprintf("%s$%s", sign, grouped)
	}
	return fmt.Sprintf("%s$%s,%0*d", sign, grouped, digits, frac)
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	head := len(s) % 3
	if head == 0 {
		head = 3
	}
	out := s[:head]
	for i := head; i < len(s); i += 3 {
		out += "." + s[i:i+3]
	}
	return out
}
