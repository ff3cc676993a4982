package helpers

import (
	"math"
	"reflect"
	"testing"

	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
)

func TestParsePaymentMethod(t *testing.T) {
	t.Parallel()
	method, err := ParsePaymentMethod(" Mobile_Money ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != enums.PaymentMethodMobileMoney {
		t.Fatalf("expected mobile_money, got %s", method)
	}

	_, err = ParsePaymentMethod("card")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Reason() != pkgerrors.ReasonInvalidPaymentMethod {
		t.Fatalf("expected invalid payment method, got %v", err)
	}
}

func TestParseDeliveryType(t *testing.T) {
	t.Parallel()
	if _, err := ParseDeliveryType("pickup"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := ParseDeliveryType("drone")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Reason() != pkgerrors.ReasonInvalidDeliveryType {
		t.Fatalf("expected invalid delivery type, got %v", err)
	}
}

func TestCountPhoneDigits(t *testing.T) {
	t.Parallel()
	cases := []struct {
		phone  string
		digits int
		ok     bool
	}{
		{"+1 (555) 123-4567", 11, true},
		{"0788.123.456", 10, true},
		{"", 0, true},
		{"0788x123456", 0, false},
	}
	for _, tc := range cases {
		digits, ok := CountPhoneDigits(tc.phone)
		if digits != tc.digits || ok != tc.ok {
			t.Fatalf("CountPhoneDigits(%q) = (%d, %v), want (%d, %v)", tc.phone, digits, ok, tc.digits, tc.ok)
		}
	}
}

func TestValidatePayerPhone(t *testing.T) {
	t.Parallel()

	phone, err := ValidatePayerPhone(enums.PaymentMethodCash, "", 8)
	if err != nil || phone != nil {
		t.Fatalf("cash should not need a phone, got (%v, %v)", phone, err)
	}
	phone, err = ValidatePayerPhone(enums.PaymentMethodCash, "0788123456", 8)
	if err != nil || phone != nil {
		t.Fatalf("cash should not record a phone, got (%v, %v)", phone, err)
	}

	phone, err = ValidatePayerPhone(enums.PaymentMethodMobileMoney, " 0788 123 456 ", 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if phone == nil || *phone != "0788 123 456" {
		t.Fatalf("expected trimmed phone, got %v", phone)
	}

	for _, bad := range []string{"", "   ", "1234567", "0788-abc-456"} {
		_, err := ValidatePayerPhone(enums.PaymentMethodMobileMoney, bad, 8)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Reason() != pkgerrors.ReasonMissingPayerPhone {
			t.Fatalf("expected missing payer phone for %q, got %v", bad, err)
		}
	}
}

func TestUniqueIDs(t *testing.T) {
	t.Parallel()
	got := UniqueIDs([]string{"p2", " p1", "", "p2", "p1 "})
	want := []string{"p2", "p1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSelectItems(t *testing.T) {
	t.Parallel()
	items := []models.CartItem{{ProductID: "p1"}, {ProductID: "p2"}, {ProductID: "p3"}}

	selected := SelectItems(items, []string{"p3", "p1", "unknown"})
	if !reflect.DeepEqual(ProductIDs(selected), []string{"p1", "p3"}) {
		t.Fatalf("unexpected selection %v", ProductIDs(selected))
	}
	if len(SelectItems(items, []string{"unknown"})) != 0 {
		t.Fatal("expected empty selection")
	}
}

func TestComputeTotals(t *testing.T) {
	t.Parallel()
	items := []models.CartItem{
		{ProductID: "p1", Price: 1000, Quantity: 2},
		{ProductID: "p2", Price: 500, Quantity: 1},
	}

	pickup, err := ComputeTotals(items, enums.DeliveryTypePickup, 1000)
	if err != nil || pickup != (OrderTotals{Subtotal: 2500, DeliveryFee: 0, Total: 2500}) {
		t.Fatalf("unexpected pickup totals %+v (%v)", pickup, err)
	}
	delivery, err := ComputeTotals(items[1:], enums.DeliveryTypeDelivery, 1000)
	if err != nil || delivery != (OrderTotals{Subtotal: 500, DeliveryFee: 1000, Total: 1500}) {
		t.Fatalf("unexpected delivery totals %+v (%v)", delivery, err)
	}
}

func TestComputeTotalsRejectsOverflow(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		items []models.CartItem
		fee   int64
	}{
		"line": {items: []models.CartItem{{ProductID: "p1", Price: math.MaxInt64 / 2, Quantity: 3}}},
		"subtotal": {items: []models.CartItem{
			{ProductID: "p1", Price: math.MaxInt64 / 2, Quantity: 1},
			{ProductID: "p2", Price: math.MaxInt64 / 2, Quantity: 1},
			{ProductID: "p3", Price: 2, Quantity: 1},
		}},
		"fee": {items: []models.CartItem{{ProductID: "p1", Price: math.MaxInt64, Quantity: 1}}, fee: 1},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ComputeTotals(tc.items, enums.DeliveryTypeDelivery, tc.fee)
			if err == nil {
				t.Fatal("expected overflow to be rejected")
			}
			perr := pkgerrors.As(err)
			if perr.Code() != pkgerrors.CodeValidation || perr.Reason() != pkgerrors.ReasonAmountOverflow {
				t.Fatalf("expected AMOUNT_OVERFLOW validation error, got %v", err)
			}
		})
	}
}

func TestBuildOrderLines(t *testing.T) {
	t.Parallel()
	items := []models.CartItem{{
		OwnerID:     "buyer",
		ProductID:   "p1",
		ProductName: "Mug",
		ImageURL:    "https://cdn.example.com/mug.jpg",
		Price:       750,
		Quantity:    3,
		SellerUID:   "seller",
		SellerName:  "Shop",
	}}

	lines := BuildOrderLines("order-1", items)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	line := lines[0]
	if line.OrderID != "order-1" || line.PricePerItem != 750 || line.Quantity != 3 {
		t.Fatalf("unexpected line %+v", line)
	}
	if line.Status != enums.LineItemStatusPending {
		t.Fatalf("expected pending status, got %s", line.Status)
	}
	if err := line.Validate(); err != nil {
		t.Fatalf("expected valid line: %v", err)
	}
}
