package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/cartengine/internal/inventory"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	"github.com/angelmondragon/cartengine/pkg/pagination"
	"gorm.io/gorm"
)

// Repository persists orders and exposes per-line status updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	FindHeader(ctx context.Context, orderID string) (*models.Order, error)
	FindLineForUpdate(ctx context.Context, orderID, productID string) (*models.OrderLineItem, error)
	UpdateLineStatus(ctx context.Context, orderID, productID string, from, to enums.LineItemStatus, at time.Time) (bool, error)
	ListByBuyer(ctx context.Context, buyerID string, params pagination.Params) ([]models.Order, *pagination.Cursor, error)
	ListLinesBySeller(ctx context.Context, sellerUID string, status *enums.LineItemStatus, limit int) ([]models.OrderLineItem, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// stockLedger hands out a ledger bound to the caller's transaction so the
// stock change and the status change commit together.
type stockLedger interface {
	WithTx(tx *gorm.DB) inventory.Ledger
}

// Actor is the acting principal supplied by the identity layer.
type Actor struct {
	UserID string
	Role   enums.Role
}

func (a Actor) IsAdmin() bool { return a.Role == enums.RoleAdmin }

func (a Actor) sells(line *models.OrderLineItem) bool {
	return a.Role == enums.RoleSeller && line.SellerUID == a.UserID
}
