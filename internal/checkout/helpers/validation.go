package helpers

import (
	"strings"

	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
)

// phoneSeparators may appear in a payer phone and do not count as digits.
const phoneSeparators = " +-()."

// ParsePaymentMethod normalizes raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (enums.PaymentMethod, error) {
	method, err := enums.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return "", pkgerrors.Validation(pkgerrors.ReasonInvalidPaymentMethod, "payment method must be cash or mobile_money")
	}
	return method, nil
}

// ParseDeliveryType normalizes raw input into a DeliveryType.
func ParseDeliveryType(value string) (enums.DeliveryType, error) {
	deliveryType, err := enums.ParseDeliveryType(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return "", pkgerrors.Validation(pkgerrors.ReasonInvalidDeliveryType, "delivery type must be delivery or pickup")
	}
	return deliveryType, nil
}

// CountPhoneDigits counts the digits in phone. ok is false when phone holds
// anything other than digits and the usual separators.
func CountPhoneDigits(phone string) (digits int, ok bool) {
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(phoneSeparators, r):
		default:
			return 0, false
		}
	}
	return digits, true
}

// ValidatePayerPhone returns the phone to record on the order. Methods that do
// not need a payer phone record none.
func ValidatePayerPhone(method enums.PaymentMethod, phone string, minDigits int) (*string, error) {
	if !method.RequiresPayerPhone() {
		return nil, nil
	}
	phone = strings.TrimSpace(phone)
	digits, ok := CountPhoneDigits(phone)
	if phone == "" || !ok || digits < minDigits {
		return nil, pkgerrors.Validation(pkgerrors.ReasonMissingPayerPhone, "a payer phone number is required for mobile money").
			WithDetails(map[string]any{
				"reason":     pkgerrors.ReasonMissingPayerPhone,
				"min_digits": minDigits,
			})
	}
	return &phone, nil
}
