package gateway

import (
	"errors"
	"slices"
	"strings"

	"seatpay/internal/domain"
)

// CountryCode is prepended to local numbers.
const CountryCode = "255"

// normalizedLength is country code plus a nine digit subscriber number.
const normalizedLength = len(CountryCode) + 9

var (
	// ErrInvalidPhoneLength is returned when a normalized number has the wrong length.
	ErrInvalidPhoneLength = errors.New("phone number has invalid length")

	// ErrInvalidOperatorPrefix is returned when the operator digit does not
	// belong to the selected method.
	ErrInvalidOperatorPrefix = errors.New("phone number does not match payment method")
)

// operatorPrefixes lists the two-digit network codes each carrier issues,
// read right after the country code.
var operatorPrefixes = map[domain.PaymentMethod][]string{
	domain.PaymentMethodMpesa:       {"74", "75", "76"},
	domain.PaymentMethodTigoPesa:    {"65", "67", "71"},
	domain.PaymentMethodAirtelMoney: {"68", "69", "78"},
	domain.PaymentMethodHaloPesa:    {"61", "62"},
}

// NormalizePhone strips non-digits, drops one leading zero and prepends the
// country code when absent.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := strings.TrimPrefix(b.String(), "0")
	if !strings.HasPrefix(digits, CountryCode) {
		digits = CountryCode + digits
	}
	return digits
}

// ValidatePhone checks a normalized number against the selected method.
func ValidatePhone(method domain.PaymentMethod, normalized string) error {
	if len(normalized) != normalizedLength || !strings.HasPrefix(normalized, CountryCode) {
		return ErrInvalidPhoneLength
	}

	prefix := normalized[len(CountryCode) : len(CountryCode)+2]
	if !slices.Contains(operatorPrefixes[method], prefix) {
		return ErrInvalidOperatorPrefix
	}
	return nil
}
