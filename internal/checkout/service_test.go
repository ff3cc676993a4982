package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/cartengine/internal/cart"
	"github.com/angelmondragon/cartengine/internal/notifications"
	"github.com/angelmondragon/cartengine/internal/orders"
	"github.com/angelmondragon/cartengine/internal/products"
	"github.com/angelmondragon/cartengine/pkg/config"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/dbtest"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"github.com/angelmondragon/cartengine/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const buyerID = "buyer-1"

type recordingSink struct {
	mu       sync.Mutex
	received []notifications.Notification
}

func (r *recordingSink) Notify(_ context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, n)
	return nil
}

func (r *recordingSink) last() notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received[len(r.received)-1]
}

type harness struct {
	conn  *gorm.DB
	svc   Service
	carts cart.Service
	sink  *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.FromGorm(conn)
	catalog := products.NewRepository(conn)
	retry := db.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	sink := &recordingSink{}

	svc, err := NewService(Params{
		Tx:       tx,
		Carts:    cart.NewRepository(conn),
		Orders:   orders.NewRepository(conn),
		Catalog:  catalog,
		Sink:     sink,
		Logger:   logger.Nop(),
		Metrics:  metrics.NewEngineMetrics(prometheus.NewRegistry()),
		Retry:    retry,
		Settings: config.CheckoutConfig{DeliveryFee: 1000, MinPayerPhoneDigits: 8},
	})
	require.NoError(t, err)

	carts, err := cart.NewService(cart.NewRepository(conn), tx, catalog, nil, logger.Nop(), retry)
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, carts: carts, sink: sink}
}

func (h *harness) add(t *testing.T, productID string, qty int) {
	t.Helper()
	_, err := h.carts.AddItem(context.Background(), buyerID, productID, qty)
	require.NoError(t, err)
}

func (h *harness) cartIDs(t *testing.T) map[string]int {
	t.Helper()
	current, err := h.carts.GetCart(context.Background(), buyerID)
	require.NoError(t, err)
	out := map[string]int{}
	for _, item := range current.Items {
		out[item.ProductID] = item.Quantity
	}
	return out
}

func (h *harness) orderCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&count).Error)
	return count
}

func input(method, delivery, phone string) Input {
	return Input{BuyerID: buyerID, PaymentMethod: method, DeliveryType: delivery, PayerPhone: phone}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Params{})
	require.Error(t, err)
}

func TestFullCheckout_PickupSnapshotsCartAndEmptiesIt(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	h.add(t, "P1", 2)

	order, err := h.svc.FullCheckout(context.Background(), input("cash", "pickup", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, int64(2000), order.Subtotal)
	assert.Equal(t, int64(0), order.DeliveryFee)
	assert.Equal(t, int64(2000), order.TotalAmount)
	assert.Nil(t, order.PayerPhone)
	require.Len(t, order.Items, 1)
	assert.Equal(t, enums.LineItemStatusPending, order.Items[0].Status)
	assert.Equal(t, int64(1000), order.Items[0].PricePerItem)

	assert.Empty(t, h.cartIDs(t))
	assert.Equal(t, 10, dbtest.StockOf(t, h.conn, "P1"), "checkout must not touch stock")

	stored, err := orders.NewRepository(h.conn).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, buyerID, stored.BuyerID)
	assert.Len(t, stored.Items, 1)

	last := h.sink.last()
	assert.Equal(t, enums.NotificationKindSuccess, last.Kind)
	assert.Equal(t, "checkout.full", last.Operation)
}

func TestPartialCheckout_LeavesUnselectedLines(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	dbtest.SeedProduct(t, h.conn, "P2", 500, 10, "seller-2")
	h.add(t, "P1", 2)
	h.add(t, "P2", 1)

	order, err := h.svc.PartialCheckout(context.Background(), PartialInput{
		Input:      input("cash", "delivery", ""),
		ProductIDs: []string{"P2", "P2", "unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), order.Subtotal)
	assert.Equal(t, int64(1000), order.DeliveryFee)
	assert.Equal(t, int64(1500), order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "P2", order.Items[0].ProductID)

	assert.Equal(t, map[string]int{"P1": 2}, h.cartIDs(t))
}

func TestFullCheckout_MobileMoneyRecordsPhone(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	h.add(t, "P1", 1)

	order, err := h.svc.FullCheckout(context.Background(), input("mobile_money", "delivery", "+250 788 123 456"))
	require.NoError(t, err)
	require.NotNil(t, order.PayerPhone)
	assert.Equal(t, "+250 788 123 456", *order.PayerPhone)
	assert.Equal(t, int64(2000), order.TotalAmount)
}

func TestFullCheckout_MissingPayerPhoneLeavesCart(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	h.add(t, "P1", 2)

	_, err := h.svc.FullCheckout(context.Background(), input("mobile_money", "delivery", ""))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, pkgerrors.ReasonMissingPayerPhone, typed.Reason())

	assert.Equal(t, map[string]int{"P1": 2}, h.cartIDs(t))
	assert.Equal(t, int64(0), h.orderCount(t))
	assert.Equal(t, enums.NotificationKindError, h.sink.last().Kind)
}

func TestCheckout_ValidationOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		in     Input
		reason string
	}{
		{"payment method first", input("card", "teleport", ""), pkgerrors.ReasonInvalidPaymentMethod},
		{"delivery type before phone", input("mobile_money", "teleport", ""), pkgerrors.ReasonInvalidDeliveryType},
		{"phone before cart", input("mobile_money", "pickup", "123"), pkgerrors.ReasonMissingPayerPhone},
		{"empty cart last", input("cash", "pickup", ""), pkgerrors.ReasonEmptyCart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.FullCheckout(ctx, tc.in)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed, "got %v", err)
			assert.Equal(t, tc.reason, typed.Reason())
		})
	}
}

func TestPartialCheckout_EmptySelection(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	h.add(t, "P1", 1)
	ctx := context.Background()

	for name, ids := range map[string][]string{
		"no ids":     nil,
		"blank ids":  {" ", ""},
		"no matches": {"P9"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.PartialCheckout(ctx, PartialInput{Input: input("cash", "pickup", ""), ProductIDs: ids})
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.ReasonEmptySelection, typed.Reason())
		})
	}
	assert.Equal(t, map[string]int{"P1": 1}, h.cartIDs(t))
	assert.Equal(t, int64(0), h.orderCount(t))
}

func TestFullCheckout_EmptyCartAfterClear(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	h.add(t, "P1", 1)
	_, err := h.carts.ClearCart(context.Background(), buyerID)
	require.NoError(t, err)

	_, err = h.svc.FullCheckout(context.Background(), input("cash", "pickup", ""))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.ReasonEmptyCart, typed.Reason())
}

func TestFullCheckout_MissingCatalogProductRollsBack(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	dbtest.SeedProduct(t, h.conn, "P2", 500, 10, "seller-1")
	h.add(t, "P1", 1)
	h.add(t, "P2", 1)
	require.NoError(t, h.conn.Exec("DELETE FROM products WHERE id = ?", "P2").Error)

	_, err := h.svc.FullCheckout(context.Background(), input("cash", "pickup", ""))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, map[string]int{"P1": 1, "P2": 1}, h.cartIDs(t))
	assert.Equal(t, int64(0), h.orderCount(t))
}

func TestCheckout_OrdersUsePriceSnapshot(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	h.add(t, "P1", 3)
	require.NoError(t, h.conn.Model(&models.Product{}).Where("id = ?", "P1").Update("price", 9999).Error)

	order, err := h.svc.FullCheckout(context.Background(), input("cash", "pickup", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), order.Subtotal)
}

func TestFullCheckout_ConcurrentCallsCreateOneOrder(t *testing.T) {
	h := newHarness(t)
	dbtest.SeedProduct(t, h.conn, "P1", 1000, 10, "seller-1")
	h.add(t, "P1", 2)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.FullCheckout(context.Background(), input("cash", "pickup", ""))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, int64(1), h.orderCount(t))
}
