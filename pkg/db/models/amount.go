package models

import (
	"errors"
	"math"
)

// MaxQuantity caps the units of one product on a cart line.
const MaxQuantity = 10000

// ErrAmountOverflow is returned when a money computation leaves the int64 range.
var ErrAmountOverflow = errors.New("amount overflows int64 minor units")

// MulAmount returns price*qty, or ErrAmountOverflow.
func MulAmount(price int64, qty int) (int64, error) {
	if price == 0 || qty == 0 {
		return 0, nil
	}
	q := int64(qty)
	product := price * q
	if product/q != price || (q == -1 && price == math.MinInt64) {
		return 0, ErrAmountOverflow
	}
	return product, nil
}

// AddAmount returns a+b, or ErrAmountOverflow.
func AddAmount(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}
