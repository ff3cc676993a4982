package models

import "time"

// Product is the catalog listing. Its Stock column backs the stock ledger.
type Product struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	Price      int64     `gorm:"column:price;not null"`
	ImageURL   string    `gorm:"column:image_url;not null;default:''"`
	Stock      int       `gorm:"column:stock;not null;default:0;check:chk_products_stock_non_negative,stock >= 0"`
	SellerUID  string    `gorm:"column:seller_uid;not null;index"`
	SellerName string    `gorm:"column:seller_name;not null;default:''"`
	IsVisible  bool      `gorm:"column:is_visible;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
