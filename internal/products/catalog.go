package products

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"gorm.io/gorm"
)

// Snapshot is the read-only view of a product used when pricing carts and orders.
type Snapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	ImageURL   string `json:"image_url"`
	Stock      int    `json:"stock"`
	SellerUID  string `json:"seller_uid"`
	SellerName string `json:"seller_name"`
	IsVisible  bool   `json:"is_visible"`
}

// Catalog resolves product ids to snapshots.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*Snapshot, error)
	GetProducts(ctx context.Context, productIDs []string) (map[string]Snapshot, error)
}

// Repository reads products from the products table.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) Catalog {
	return &Repository{db: tx}
}

// GetProduct loads a single product. Missing rows yield CodeNotFound.
func (r *Repository) GetProduct(ctx context.Context, productID string) (*Snapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var row models.Product
	err := r.db.WithContext(ctx).Where("id = ?", productID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID})
		}
		return nil, db.Classify(err, "load product")
	}
	snap := toSnapshot(row)
	return &snap, nil
}

// GetProducts loads the products that exist among productIDs, keyed by id.
func (r *Repository) GetProducts(ctx context.Context, productIDs []string) (map[string]Snapshot, error) {
	out := make(map[string]Snapshot, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, db.Classify(err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = toSnapshot(row)
	}
	return out, nil
}

func toSnapshot(p models.Product) Snapshot {
	return Snapshot{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		ImageURL:   p.ImageURL,
		Stock:      p.Stock,
		SellerUID:  p.SellerUID,
		SellerName: p.SellerName,
		IsVisible:  p.IsVisible,
	}
}
