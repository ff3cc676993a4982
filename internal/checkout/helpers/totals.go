package helpers

import (
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
)

// OrderTotals are the amounts stamped on an order, in minor units.
type OrderTotals struct {
	Subtotal    int64
	DeliveryFee int64
	Total       int64
}

// ComputeTotals sums the line totals and adds the fee when the order ships.
// Amounts that leave the int64 range are rejected as a validation error.
func ComputeTotals(items []models.CartItem, deliveryType enums.DeliveryType, fee int64) (OrderTotals, error) {
	var (
		totals OrderTotals
		err    error
	)
	for _, item := range items {
		line, lineErr := item.LineTotal()
		if lineErr != nil {
			return OrderTotals{}, amountOverflow(lineErr, item.ProductID)
		}
		if totals.Subtotal, err = models.AddAmount(totals.Subtotal, line); err != nil {
			return OrderTotals{}, amountOverflow(err, item.ProductID)
		}
	}
	if deliveryType == enums.DeliveryTypeDelivery {
		totals.DeliveryFee = fee
	}
	if totals.Total, err = models.AddAmount(totals.Subtotal, totals.DeliveryFee); err != nil {
		return OrderTotals{}, amountOverflow(err, "")
	}
	return totals, nil
}

func amountOverflow(err error, productID string) error {
	details := map[string]any{"reason": pkgerrors.ReasonAmountOverflow}
	if productID != "" {
		details["product_id"] = productID
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order total is too large").WithDetails(details)
}

// BuildOrderLines snapshots cart items into pending order lines.
func BuildOrderLines(orderID string, items []models.CartItem) []models.OrderLineItem {
	lines := make([]models.OrderLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, models.OrderLineItem{
			OrderID:      orderID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ImageURL:     item.ImageURL,
			Quantity:     item.Quantity,
			PricePerItem: item.Price,
			SellerUID:    item.SellerUID,
			SellerName:   item.SellerName,
			Status:       enums.LineItemStatusPending,
		})
	}
	return lines
}
