package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/cartengine/internal/notifications"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"gorm.io/gorm"
)

// Service orchestrates cart mutations for a single buyer at a time.
type Service interface {
	AddItem(ctx context.Context, buyerID, productID string, qty int) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, buyerID, productID string, qty int) (*models.Cart, error)
	RemoveItem(ctx context.Context, buyerID, productID string) (*models.Cart, error)
	ClearCart(ctx context.Context, buyerID string) (*models.Cart, error)
	GetCart(ctx context.Context, buyerID string) (*models.Cart, error)
}

type service struct {
	repo    CartRepository
	tx      txRunner
	catalog productLoader
	sink    notifications.Sink
	logg    *logger.Logger
	retry   db.RetryPolicy
	now     func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, catalog productLoader, sink notifications.Sink, logg *logger.Logger, retry db.RetryPolicy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sink == nil {
		sink = notifications.Nop{}
	}
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: catalog,
		sink:    sink,
		logg:    logg,
		retry:   retry,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) GetCart(ctx context.Context, buyerID string) (*models.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, buyerID)
}

func (s *service) AddItem(ctx context.Context, buyerID, productID string, qty int) (*models.Cart, error) {
	const op = "cart.add_item"

	cart, err := s.addItem(ctx, buyerID, productID, qty)
	if err != nil {
		s.fail(ctx, buyerID, op, err)
		return nil, err
	}
	s.succeed(ctx, buyerID, op, "item added to cart")
	return cart, nil
}

func (s *service) addItem(ctx context.Context, buyerID, productID string, qty int) (*models.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return nil, err
	}
	productID, err = requireProduct(productID)
	if err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, invalidQuantity(qty, "quantity must be at least 1")
	}
	if qty > models.MaxQuantity {
		return nil, tooManyUnits(qty)
	}

	snapshot, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !snapshot.IsVisible {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID})
	}

	now := s.now()
	item := models.CartItem{
		OwnerID:     buyerID,
		ProductID:   snapshot.ID,
		ProductName: snapshot.Name,
		ImageURL:    snapshot.ImageURL,
		Price:       snapshot.Price,
		Quantity:    qty,
		SellerUID:   snapshot.SellerUID,
		SellerName:  snapshot.SellerName,
		AddedAt:     now,
	}
	if err := item.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "product snapshot is incomplete").
			WithDetails(map[string]any{"product_id": productID})
	}

	err = s.mutate(ctx, func(repo CartRepository) error {
		if err := repo.Ensure(ctx, buyerID, now); err != nil {
			return err
		}
		merged, err := repo.AddItem(ctx, item, now)
		if err != nil {
			return err
		}
		if !merged {
			return tooManyUnits(qty)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, buyerID)
}

func (s *service) UpdateQuantity(ctx context.Context, buyerID, productID string, qty int) (*models.Cart, error) {
	const op = "cart.update_quantity"

	cart, err := s.updateQuantity(ctx, buyerID, productID, qty)
	if err != nil {
		s.fail(ctx, buyerID, op, err)
		return nil, err
	}
	s.succeed(ctx, buyerID, op, "cart quantity updated")
	return cart, nil
}

func (s *service) updateQuantity(ctx context.Context, buyerID, productID string, qty int) (*models.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return nil, err
	}
	productID, err = requireProduct(productID)
	if err != nil {
		return nil, err
	}
	if qty < 0 {
		return nil, invalidQuantity(qty, "quantity cannot be negative")
	}
	if qty > models.MaxQuantity {
		return nil, tooManyUnits(qty)
	}

	now := s.now()
	err = s.mutate(ctx, func(repo CartRepository) error {
		exists, err := repo.Touch(ctx, buyerID, now)
		if err != nil {
			return err
		}
		if !exists {
			return lineNotFound(productID)
		}

		if qty == 0 {
			removed, err := repo.RemoveItems(ctx, buyerID, []string{productID})
			if err != nil {
				return err
			}
			if removed == 0 {
				return lineNotFound(productID)
			}
			return nil
		}

		found, err := repo.SetQuantity(ctx, buyerID, productID, qty, now)
		if err != nil {
			return err
		}
		if !found {
			return lineNotFound(productID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, buyerID)
}

func (s *service) RemoveItem(ctx context.Context, buyerID, productID string) (*models.Cart, error) {
	const op = "cart.remove_item"

	cart, err := s.removeItem(ctx, buyerID, productID)
	if err != nil {
		s.fail(ctx, buyerID, op, err)
		return nil, err
	}
	s.succeed(ctx, buyerID, op, "item removed from cart")
	return cart, nil
}

func (s *service) removeItem(ctx context.Context, buyerID, productID string) (*models.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return nil, err
	}
	productID, err = requireProduct(productID)
	if err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(repo CartRepository) error {
		exists, err := repo.Touch(ctx, buyerID, s.now())
		if err != nil || !exists {
			return err
		}
		_, err = repo.RemoveItems(ctx, buyerID, []string{productID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, buyerID)
}

func (s *service) ClearCart(ctx context.Context, buyerID string) (*models.Cart, error) {
	const op = "cart.clear"

	cart, err := s.clearCart(ctx, buyerID)
	if err != nil {
		s.fail(ctx, buyerID, op, err)
		return nil, err
	}
	s.succeed(ctx, buyerID, op, "cart cleared")
	return cart, nil
}

func (s *service) clearCart(ctx context.Context, buyerID string) (*models.Cart, error) {
	buyerID, err := requireBuyer(buyerID)
	if err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(repo CartRepository) error {
		exists, err := repo.Touch(ctx, buyerID, s.now())
		if err != nil || !exists {
			return err
		}
		return repo.Clear(ctx, buyerID)
	})
	if err != nil {
		return nil, err
	}
	return &models.Cart{OwnerID: buyerID, Items: []models.CartItem{}}, nil
}

// mutate runs fn in a transaction and replays it on storage conflicts.
func (s *service) mutate(ctx context.Context, fn func(repo CartRepository) error) error {
	return db.RetryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return fn(s.repo.WithTx(tx))
		})
	})
}

func (s *service) succeed(ctx context.Context, buyerID, op, message string) {
	notifications.Emit(ctx, s.sink, s.logg, notifications.Success(buyerID, op, message))
}

func (s *service) fail(ctx context.Context, buyerID, op string, err error) {
	message := "cart update failed"
	if typed := pkgerrors.As(err); typed != nil {
		message = typed.Message()
	}
	notifications.Emit(ctx, s.sink, s.logg, notifications.Failure(buyerID, op, message))
}

func requireBuyer(buyerID string) (string, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	return buyerID, nil
}

func requireProduct(productID string) (string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return productID, nil
}

func invalidQuantity(qty int, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{
		"reason":   pkgerrors.ReasonInvalidQuantity,
		"quantity": qty,
	})
}

func tooManyUnits(qty int) error {
	return invalidQuantity(qty, fmt.Sprintf("a cart line cannot hold more than %d units", models.MaxQuantity))
}

func lineNotFound(productID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").
		WithDetails(map[string]any{"product_id": productID})
}
