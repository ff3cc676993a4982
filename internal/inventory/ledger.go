package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/metrics"
	"gorm.io/gorm"
)

const (
	decrementSQL = `UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`
	incrementSQL = `UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`
)

// Ledger is the only way stock changes. Both operations are single conditional
// statements so concurrent callers can never drive stock below zero.
type Ledger interface {
	DecrementIfAvailable(ctx context.Context, productID string, qty int) (bool, error)
	Increment(ctx context.Context, productID string, qty int) error
}

// Store implements Ledger on the products.stock column.
type Store struct {
	db      *gorm.DB
	metrics *metrics.EngineMetrics
	retry   db.RetryPolicy
	bound   bool
}

// Option customises a Store.
type Option func(*Store)

// WithMetrics records decrement outcomes and conflict retries.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithRetryPolicy bounds conflict retries for calls made outside a transaction.
func WithRetryPolicy(p db.RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

func NewStore(conn *gorm.DB, opts ...Option) *Store {
	s := &Store{db: conn, retry: db.RetryPolicy{MaxRetries: 3}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx binds the ledger to a caller-owned transaction. Bound stores do not
// retry; a conflict aborts the transaction and the caller replays it as a whole.
func (s *Store) WithTx(tx *gorm.DB) Ledger {
	return &Store{db: tx, metrics: s.metrics, retry: s.retry, bound: true}
}

func (s *Store) DecrementIfAvailable(ctx context.Context, productID string, qty int) (bool, error) {
	if err := validateArgs(productID, qty); err != nil {
		return false, err
	}

	var applied bool
	err := s.run(ctx, "stock_decrement", func(ctx context.Context) error {
		ok, err := s.decrement(ctx, productID, qty)
		applied = ok
		return err
	})
	switch {
	case err != nil:
		s.metrics.IncStockDecrement(metrics.OutcomeError)
		return false, err
	case applied:
		s.metrics.IncStockDecrement(metrics.OutcomeApplied)
	default:
		s.metrics.IncStockDecrement(metrics.OutcomeInsufficient)
	}
	return applied, nil
}

func (s *Store) Increment(ctx context.Context, productID string, qty int) error {
	if err := validateArgs(productID, qty); err != nil {
		return err
	}

	err := s.run(ctx, "stock_increment", func(ctx context.Context) error {
		res := s.db.WithContext(ctx).Exec(incrementSQL, qty, time.Now().UTC(), productID)
		if res.Error != nil {
			return db.Classify(res.Error, "increment stock")
		}
		if res.RowsAffected == 0 {
			return productNotFound(productID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncStockIncrement()
	return nil
}

func (s *Store) decrement(ctx context.Context, productID string, qty int) (bool, error) {
	conn := s.db.WithContext(ctx)
	res := conn.Exec(decrementSQL, qty, time.Now().UTC(), productID, qty)
	if res.Error != nil {
		return false, db.Classify(res.Error, "decrement stock")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// Nothing matched: either the product is gone or stock is short.
	var count int64
	if err := conn.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return false, db.Classify(err, "probe product")
	}
	if count == 0 {
		return false, productNotFound(productID)
	}
	return false, nil
}

func (s *Store) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.bound {
		return fn(ctx)
	}
	policy := s.retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		s.metrics.IncConflictRetry(op)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return db.RetryOnConflict(ctx, policy, fn)
}

func validateArgs(productID string, qty int) error {
	if strings.TrimSpace(productID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if qty < 1 {
		return pkgerrors.Validation(pkgerrors.ReasonInvalidQuantity, "quantity must be at least 1").
			WithDetails(map[string]any{"reason": pkgerrors.ReasonInvalidQuantity, "quantity": qty})
	}
	return nil
}

func productNotFound(productID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"product_id": productID})
}
