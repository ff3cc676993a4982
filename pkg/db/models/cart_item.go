package models

import "time"

// CartItem snapshots catalog data at add time. Price is never re-read from the catalog.
type CartItem struct {
	OwnerID     string    `gorm:"column:owner_id;primaryKey" validate:"required"`
	ProductID   string    `gorm:"column:product_id;primaryKey" validate:"required"`
	ProductName string    `gorm:"column:product_name;not null" validate:"required"`
	ImageURL    string    `gorm:"column:image_url;not null;default:''"`
	Price       int64     `gorm:"column:price;not null" validate:"gte=0"`
	Quantity    int       `gorm:"column:quantity;not null;check:chk_cart_items_quantity_range,quantity BETWEEN 1 AND 10000" validate:"gte=1,lte=10000"`
	SellerUID   string    `gorm:"column:seller_uid;not null" validate:"required"`
	SellerName  string    `gorm:"column:seller_name;not null;default:''"`
	AddedAt     time.Time `gorm:"column:added_at;not null" validate:"required"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal is price times quantity.
func (i CartItem) LineTotal() (int64, error) {
	return MulAmount(i.Price, i.Quantity)
}

// Validate rejects items whose shape is incomplete.
func (i CartItem) Validate() error {
	return validate.Struct(i)
}
