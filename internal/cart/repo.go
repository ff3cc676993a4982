package cart

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists carts and cart items with GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Get loads the cart with items ordered by add time. A buyer without a cart
// gets an empty one.
func (r *Repository) Get(ctx context.Context, ownerID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("added_at ASC, product_id ASC")
		}).
		Where("owner_id = ?", ownerID).
		Take(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Cart{OwnerID: ownerID, Items: []models.CartItem{}}, nil
		}
		return nil, db.Classify(err, "load cart")
	}
	for _, item := range cart.Items {
		if err := item.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored cart item is malformed").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return &cart, nil
}

// Ensure creates the cart row when missing and bumps updated_at otherwise.
// Inside a transaction the row stays locked until commit.
func (r *Repository) Ensure(ctx context.Context, ownerID string, now time.Time) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.Assignments(map[string]any{"updated_at": now}),
		}).
		Create(&models.Cart{OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}).Error
	return db.Classify(err, "ensure cart")
}

// Touch bumps updated_at on an existing cart row and reports whether it exists.
func (r *Repository) Touch(ctx context.Context, ownerID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("owner_id = ?", ownerID).
		Update("updated_at", now)
	if res.Error != nil {
		return false, db.Classify(res.Error, "touch cart")
	}
	return res.RowsAffected > 0, nil
}

// AddItem inserts the item or, when the product is already in the cart, adds
// to its quantity. The existing snapshot (price, name, image, seller) is kept.
// It reports false when the merged quantity would exceed models.MaxQuantity;
// the stored line is left untouched in that case.
func (r *Repository) AddItem(ctx context.Context, item models.CartItem, now time.Time) (bool, error) {
	item.UpdatedAt = now
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": now,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "cart_items.quantity + excluded.quantity <= ?", Vars: []any{models.MaxQuantity}},
			}},
		}).
		Create(&item)
	if res.Error != nil {
		return false, db.Classify(res.Error, "add cart item")
	}
	return res.RowsAffected > 0, nil
}

// SetQuantity overwrites the quantity of an existing line and reports whether it existed.
func (r *Repository) SetQuantity(ctx context.Context, ownerID, productID string, qty int, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("owner_id = ? AND product_id = ?", ownerID, productID).
		Updates(map[string]any{"quantity": qty, "updated_at": now})
	if res.Error != nil {
		return false, db.Classify(res.Error, "update cart item quantity")
	}
	return res.RowsAffected > 0, nil
}

// RemoveItems deletes the given lines and returns how many existed.
func (r *Repository) RemoveItems(ctx context.Context, ownerID string, productIDs []string) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("owner_id = ? AND product_id IN ?", ownerID, productIDs).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return 0, db.Classify(res.Error, "remove cart items")
	}
	return res.RowsAffected, nil
}

// Clear deletes every line of the cart.
func (r *Repository) Clear(ctx context.Context, ownerID string) error {
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Delete(&models.CartItem{}).Error
	return db.Classify(err, "clear cart")
}
