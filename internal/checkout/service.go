package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/cartengine/internal/cart"
	"github.com/angelmondragon/cartengine/internal/checkout/helpers"
	"github.com/angelmondragon/cartengine/internal/notifications"
	"github.com/angelmondragon/cartengine/internal/orders"
	"github.com/angelmondragon/cartengine/internal/products"
	"github.com/angelmondragon/cartengine/pkg/config"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"github.com/angelmondragon/cartengine/pkg/metrics"
	"github.com/angelmondragon/cartengine/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	kindFull    = "full"
	kindPartial = "partial"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalogBinder interface {
	WithTx(tx *gorm.DB) products.Catalog
}

// Service turns a buyer's cart lines into orders.
type Service interface {
	FullCheckout(ctx context.Context, input Input) (*models.Order, error)
	PartialCheckout(ctx context.Context, input PartialInput) (*models.Order, error)
}

// Input carries the buyer's checkout choices as received.
type Input struct {
	BuyerID       string
	PaymentMethod string
	DeliveryType  string
	PayerPhone    string
}

// PartialInput selects the cart lines to check out.
type PartialInput struct {
	Input
	ProductIDs []string
}

// Params bundles the checkout dependencies.
type Params struct {
	Tx       txRunner
	Carts    cart.CartRepository
	Orders   orders.Repository
	Catalog  catalogBinder
	Sink     notifications.Sink
	Logger   *logger.Logger
	Metrics  *metrics.EngineMetrics
	Retry    db.RetryPolicy
	Settings config.CheckoutConfig
}

type service struct {
	tx       txRunner
	carts    cart.CartRepository
	orders   orders.Repository
	catalog  catalogBinder
	sink     notifications.Sink
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	retry    db.RetryPolicy
	settings config.CheckoutConfig
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// NewService builds the checkout processor.
func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	sink := params.Sink
	if sink == nil {
		sink = notifications.Nop{}
	}
	return &service{
		tx:       params.Tx,
		carts:    params.Carts,
		orders:   params.Orders,
		catalog:  params.Catalog,
		sink:     sink,
		logg:     params.Logger,
		metrics:  params.Metrics,
		retry:    params.Retry,
		settings: params.Settings,
		tracer:   tracing.Tracer("checkout"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

func (s *service) FullCheckout(ctx context.Context, input Input) (*models.Order, error) {
	order, err := s.run(ctx, kindFull, input, nil)
	return s.finish(ctx, kindFull, input.BuyerID, order, err)
}

func (s *service) PartialCheckout(ctx context.Context, input PartialInput) (*models.Order, error) {
	selection := helpers.UniqueIDs(input.ProductIDs)
	order, err := s.run(ctx, kindPartial, input.Input, func() ([]string, error) {
		if len(selection) == 0 {
			return nil, emptySelection()
		}
		return selection, nil
	})
	return s.finish(ctx, kindPartial, input.BuyerID, order, err)
}

// run validates the request and writes the order and the cart change in one
// transaction. selection is nil for a full checkout.
func (s *service) run(ctx context.Context, kind string, input Input, selection func() ([]string, error)) (order *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout."+kind, trace.WithAttributes(
		attribute.String("checkout.payment_method", input.PaymentMethod),
		attribute.String("checkout.delivery_type", input.DeliveryType),
	))
	defer func() {
		if order != nil {
			span.SetAttributes(
				attribute.String("order.id", order.ID),
				attribute.Int("order.line_count", len(order.Items)),
			)
		}
		tracing.Finish(span, err)
	}()

	buyerID := strings.TrimSpace(input.BuyerID)
	if buyerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	method, err := helpers.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	deliveryType, err := helpers.ParseDeliveryType(input.DeliveryType)
	if err != nil {
		return nil, err
	}
	phone, err := helpers.ValidatePayerPhone(method, input.PayerPhone, s.settings.MinPayerPhoneDigits)
	if err != nil {
		return nil, err
	}
	var selected []string
	if selection != nil {
		if selected, err = selection(); err != nil {
			return nil, err
		}
	}

	err = db.RetryOnConflict(ctx, s.retryPolicy(kind), func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			carts := s.carts.WithTx(tx)
			now := s.now()

			exists, err := carts.Touch(ctx, buyerID, now)
			if err != nil {
				return err
			}
			if !exists {
				return emptyCartOrSelection(selection != nil)
			}
			current, err := carts.Get(ctx, buyerID)
			if err != nil {
				return err
			}

			items := current.Items
			if selection != nil {
				items = helpers.SelectItems(items, selected)
			}
			if len(items) == 0 {
				return emptyCartOrSelection(selection != nil)
			}
			if err := s.ensureProductsExist(ctx, tx, items); err != nil {
				return err
			}

			built, err := s.buildOrder(buyerID, items, method, phone, deliveryType, now)
			if err != nil {
				return err
			}
			if err := s.orders.WithTx(tx).Create(ctx, built); err != nil {
				return err
			}

			if selection == nil {
				err = carts.Clear(ctx, buyerID)
			} else {
				_, err = carts.RemoveItems(ctx, buyerID, helpers.ProductIDs(items))
			}
			if err != nil {
				return err
			}
			order = built
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ensureProductsExist(ctx context.Context, tx *gorm.DB, items []models.CartItem) error {
	ids := helpers.ProductIDs(items)
	found, err := s.catalog.WithTx(tx).GetProducts(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product no longer exists").
				WithDetails(map[string]any{"product_id": id})
		}
	}
	return nil
}

func (s *service) buildOrder(buyerID string, items []models.CartItem, method enums.PaymentMethod, phone *string, deliveryType enums.DeliveryType, now time.Time) (*models.Order, error) {
	totals, err := helpers.ComputeTotals(items, deliveryType, s.settings.DeliveryFee)
	if err != nil {
		return nil, err
	}
	orderID := s.newID()
	lines := helpers.BuildOrderLines(orderID, items)
	for i := range lines {
		lines[i].CreatedAt = now
		lines[i].UpdatedAt = now
	}
	return &models.Order{
		ID:            orderID,
		BuyerID:       buyerID,
		Items:         lines,
		Subtotal:      totals.Subtotal,
		DeliveryFee:   totals.DeliveryFee,
		TotalAmount:   totals.Total,
		PaymentMethod: method,
		PayerPhone:    phone,
		DeliveryType:  deliveryType,
		CreatedAt:     now,
	}, nil
}

func (s *service) retryPolicy(kind string) db.RetryPolicy {
	policy := s.retry
	policy.OnRetry = func(int, error) { s.metrics.IncConflictRetry("checkout_" + kind) }
	return policy
}

func (s *service) finish(ctx context.Context, kind, buyerID string, order *models.Order, err error) (*models.Order, error) {
	op := "checkout." + kind
	s.metrics.IncCheckout(kind, err == nil)
	if err != nil {
		message := "checkout failed"
		if typed := pkgerrors.As(err); typed != nil {
			message = typed.Message()
		}
		notifications.Emit(ctx, s.sink, s.logg, notifications.Failure(buyerID, op, message))
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"buyer_id":     order.BuyerID,
		"kind":         kind,
		"line_count":   len(order.Items),
		"total_amount": order.TotalAmount,
	})
	s.logg.Info(logCtx, "checkout.order_created")
	notifications.Emit(ctx, s.sink, s.logg, notifications.Success(buyerID, op, "order "+order.ID+" created"))
	return order, nil
}

func emptyCartOrSelection(partial bool) error {
	if partial {
		return emptySelection()
	}
	return pkgerrors.Validation(pkgerrors.ReasonEmptyCart, "cart is empty")
}

func emptySelection() error {
	return pkgerrors.Validation(pkgerrors.ReasonEmptySelection, "no selected items are in the cart")
}
