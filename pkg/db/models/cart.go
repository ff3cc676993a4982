package models

import "time"

// Cart is the per-buyer header row. Its items live in cart_items keyed by (owner_id, product_id).
type Cart struct {
	OwnerID   string     `gorm:"column:owner_id;primaryKey"`
	Items     []CartItem `gorm:"foreignKey:OwnerID;references:OwnerID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Total sums price times quantity across all items.
func (c Cart) Total() (int64, error) {
	var total int64
	for _, item := range c.Items {
		line, err := item.LineTotal()
		if err != nil {
			return 0, err
		}
		if total, err = AddAmount(total, line); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ItemCount sums quantities across all items.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}
