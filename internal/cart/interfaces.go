package cart

import (
	"context"
	"time"

	"github.com/angelmondragon/cartengine/internal/products"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"gorm.io/gorm"
)

// CartRepository is pure persistence over one cart per buyer. Every mutation is
// a single statement keyed by (owner_id, product_id); callers serialise
// per-buyer work by touching the carts row inside the same transaction.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Get(ctx context.Context, ownerID string) (*models.Cart, error)
	Ensure(ctx context.Context, ownerID string, now time.Time) error
	Touch(ctx context.Context, ownerID string, now time.Time) (bool, error)
	AddItem(ctx context.Context, item models.CartItem, now time.Time) (bool, error)
	SetQuantity(ctx context.Context, ownerID, productID string, qty int, now time.Time) (bool, error)
	RemoveItems(ctx context.Context, ownerID string, productIDs []string) (int64, error)
	Clear(ctx context.Context, ownerID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	GetProduct(ctx context.Context, productID string) (*products.Snapshot, error)
}
