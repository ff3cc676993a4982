package models

import (
	"time"

	"github.com/angelmondragon/cartengine/pkg/enums"
)

// Order is immutable after creation except for per-line status.
type Order struct {
	ID            string              `gorm:"column:id;primaryKey"`
	BuyerID       string              `gorm:"column:buyer_id;not null;index:idx_orders_buyer_created,priority:1"`
	Items         []OrderLineItem     `gorm:"foreignKey:OrderID;references:ID;constraint:OnDelete:RESTRICT"`
	Subtotal      int64               `gorm:"column:subtotal;not null"`
	DeliveryFee   int64               `gorm:"column:delivery_fee;not null;default:0"`
	TotalAmount   int64               `gorm:"column:total_amount;not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PayerPhone    *string             `gorm:"column:payer_phone"`
	DeliveryType  enums.DeliveryType  `gorm:"column:delivery_type;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;not null;index:idx_orders_buyer_created,priority:2"`
}

// FindLine returns the line for productID, if present.
func (o Order) FindLine(productID string) (OrderLineItem, bool) {
	for _, line := range o.Items {
		if line.ProductID == productID {
			return line, true
		}
	}
	return OrderLineItem{}, false
}

// HasSeller reports whether any line belongs to sellerUID.
func (o Order) HasSeller(sellerUID string) bool {
	for _, line := range o.Items {
		if line.SellerUID == sellerUID {
			return true
		}
	}
	return false
}
