package models

import (
	"time"

	"github.com/angelmondragon/cartengine/pkg/enums"
)

// OrderLineItem snapshots one product within an order and carries its own status.
type OrderLineItem struct {
	OrderID      string               `gorm:"column:order_id;primaryKey" validate:"required"`
	ProductID    string               `gorm:"column:product_id;primaryKey" validate:"required"`
	ProductName  string               `gorm:"column:product_name;not null" validate:"required"`
	ImageURL     string               `gorm:"column:image_url;not null;default:''"`
	Quantity     int                  `gorm:"column:quantity;not null" validate:"gte=1"`
	PricePerItem int64                `gorm:"column:price_per_item;not null" validate:"gte=0"`
	SellerUID    string               `gorm:"column:seller_uid;not null;index" validate:"required"`
	SellerName   string               `gorm:"column:seller_name;not null;default:''"`
	Status       enums.LineItemStatus `gorm:"column:status;not null;default:'pending'" validate:"required,oneof=pending paid cancelled"`
	PaidAt       *time.Time           `gorm:"column:paid_at"`
	CancelledAt  *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal is price per item times quantity.
func (l OrderLineItem) LineTotal() int64 {
	return l.PricePerItem * int64(l.Quantity)
}

// Validate rejects lines whose shape is incomplete.
func (l OrderLineItem) Validate() error {
	return validate.Struct(l)
}
