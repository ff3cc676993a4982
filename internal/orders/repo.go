package orders

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order header and its lines.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	for _, line := range order.Items {
		if err := line.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order line is malformed").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already exists")
		}
		return db.Classify(err, "create order")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("product_id ASC") }).
		Where("id = ?", orderID).
		Take(&order).Error
	if err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	return &order, nil
}

func (r *repository) FindHeader(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return nil, mapOrderErr(err, orderID)
	}
	return &order, nil
}

// FindLineForUpdate loads a line and, on databases that support it, locks the
// row until the surrounding transaction ends.
func (r *repository) FindLineForUpdate(ctx context.Context, orderID, productID string) (*models.OrderLineItem, error) {
	var line models.OrderLineItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order line not found").
				WithDetails(map[string]any{"order_id": orderID, "product_id": productID})
		}
		return nil, db.Classify(err, "load order line")
	}
	if err := line.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored order line is malformed")
	}
	return &line, nil
}

// UpdateLineStatus moves a line from one status to another. It only applies
// when the stored status still equals from and reports whether it did.
func (r *repository) UpdateLineStatus(ctx context.Context, orderID, productID string, from, to enums.LineItemStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": at}
	switch to {
	case enums.LineItemStatusPaid:
		updates["paid_at"] = at
	case enums.LineItemStatusCancelled:
		updates["cancelled_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("order_id = ? AND product_id = ? AND status = ?", orderID, productID, from).
		Updates(updates)
	if res.Error != nil {
		return false, db.Classify(res.Error, "update order line status")
	}
	return res.RowsAffected == 1, nil
}

// ListByBuyer returns a page of the buyer's orders, newest first.
func (r *repository) ListByBuyer(ctx context.Context, buyerID string, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("product_id ASC") }).
		Where("buyer_id = ?", buyerID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, nil, db.Classify(err, "list buyer orders")
	}

	if len(rows) <= limit {
		return rows, nil, nil
	}
	rows = rows[:limit]
	last := rows[len(rows)-1]
	return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}

// ListLinesBySeller returns the seller's order lines, newest first.
func (r *repository) ListLinesBySeller(ctx context.Context, sellerUID string, status *enums.LineItemStatus, limit int) ([]models.OrderLineItem, error) {
	query := r.db.WithContext(ctx).Where("seller_uid = ?", sellerUID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var rows []models.OrderLineItem
	err := query.
		Order("created_at DESC").
		Order("order_id ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, db.Classify(err, "list seller order lines")
	}
	return rows, nil
}

func mapOrderErr(err error, orderID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"order_id": orderID})
	}
	return db.Classify(err, "load order")
}
