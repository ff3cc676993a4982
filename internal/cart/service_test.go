package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/cartengine/internal/notifications"
	"github.com/angelmondragon/cartengine/internal/products"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/dbtest"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

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

type stubCatalog struct {
	snapshot *products.Snapshot
	err      error
	calls    int
}

func (s *stubCatalog) GetProduct(context.Context, string) (*products.Snapshot, error) {
	s.calls++
	return s.snapshot, s.err
}

func newIntegrationService(t *testing.T) (Service, *gorm.DB, *recordingSink) {
	t.Helper()
	conn := dbtest.Open(t)
	sink := &recordingSink{}
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), products.NewRepository(conn), sink, logger.Nop(), db.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	return svc, conn, sink
}

func totalOf(t *testing.T, cart *models.Cart) int64 {
	t.Helper()
	total, err := cart.Total()
	require.NoError(t, err)
	return total
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	tx := db.FromGorm(conn)
	catalog := products.NewRepository(conn)

	if _, err := NewService(nil, tx, catalog, nil, logger.Nop(), db.RetryPolicy{}); err == nil {
		t.Fatal("expected error for missing repository")
	}
	if _, err := NewService(repo, nil, catalog, nil, logger.Nop(), db.RetryPolicy{}); err == nil {
		t.Fatal("expected error for missing tx runner")
	}
	if _, err := NewService(repo, tx, nil, nil, logger.Nop(), db.RetryPolicy{}); err == nil {
		t.Fatal("expected error for missing catalog")
	}
	if _, err := NewService(repo, tx, catalog, nil, nil, db.RetryPolicy{}); err == nil {
		t.Fatal("expected error for missing logger")
	}
}

func TestGetCartWithoutCartReturnsEmpty(t *testing.T) {
	t.Parallel()

	svc, _, _ := newIntegrationService(t)
	cart, err := svc.GetCart(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", cart.OwnerID)
	assert.Empty(t, cart.Items)
	assert.Equal(t, int64(0), totalOf(t, cart))
}

func TestAddItemSnapshotsCatalogAndMergesQuantity(t *testing.T) {
	t.Parallel()

	svc, conn, sink := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "P1", 1)
	require.NoError(t, err)

	// catalog price changes between adds; the cart keeps the first snapshot
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", "P1").Update("price", 1500).Error)

	cart, err := svc.AddItem(ctx, "buyer-1", "P1", 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, int64(1000), cart.Items[0].Price)
	assert.Equal(t, "Product P1", cart.Items[0].ProductName)
	assert.Equal(t, "seller-1", cart.Items[0].SellerUID)
	assert.Equal(t, int64(3000), totalOf(t, cart))
	assert.Equal(t, enums.NotificationKindSuccess, sink.last().Kind)
}

func TestAddItemRejectsQuantityAboveLineCap(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")

	_, err := svc.AddItem(context.Background(), "buyer-1", "P1", models.MaxQuantity+1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Equal(t, pkgerrors.ReasonInvalidQuantity, pkgerrors.As(err).Reason())
}

func TestAddItemMergeStopsAtLineCap(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "P1", models.MaxQuantity-1)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, "buyer-1", "P1", 2)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonInvalidQuantity, pkgerrors.As(err).Reason())

	cart, err := svc.GetCart(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, models.MaxQuantity-1, cart.Items[0].Quantity, "a rejected merge must leave the line untouched")

	cart, err = svc.AddItem(ctx, "buyer-1", "P1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.MaxQuantity, cart.Items[0].Quantity)
}

func TestAddItemDoesNotCheckStock(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 0, "seller-1")

	cart, err := svc.AddItem(context.Background(), "buyer-1", "P1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestAddItemRejectsUnknownOrHiddenProducts(t *testing.T) {
	t.Parallel()

	svc, conn, sink := newIntegrationService(t)
	require.NoError(t, conn.Create(&models.Product{ID: "HIDDEN", Name: "Hidden", Price: 100, SellerUID: "s", IsVisible: false}).Error)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "missing", 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
	assert.Equal(t, enums.NotificationKindError, sink.last().Kind)

	_, err = svc.AddItem(ctx, "buyer-1", "HIDDEN", 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	cart, err := svc.GetCart(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestAddItemValidatesBeforeCatalog(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	catalog := &stubCatalog{err: errors.New("catalog should not be called")}
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), catalog, nil, logger.Nop(), db.RetryPolicy{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.AddItem(ctx, "buyer-1", "P1", 0)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonInvalidQuantity, pkgerrors.As(err).Reason())

	_, err = svc.AddItem(ctx, " ", "P1", 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	assert.Zero(t, catalog.calls)
}

func TestAddItemRejectsIncompleteSnapshot(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	catalog := &stubCatalog{snapshot: &products.Snapshot{ID: "P1", Name: "No seller", Price: 100, IsVisible: true}}
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), catalog, nil, logger.Nop(), db.RetryPolicy{})
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), "buyer-1", "P1", 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestUpdateQuantity(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")
	dbtest.SeedProduct(t, conn, "P2", 500, 10, "seller-2")
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "P1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "buyer-1", "P2", 1)
	require.NoError(t, err)

	cart, err := svc.UpdateQuantity(ctx, "buyer-1", "P1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), totalOf(t, cart))

	_, err = svc.UpdateQuantity(ctx, "buyer-1", "P1", -1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonInvalidQuantity, pkgerrors.As(err).Reason())

	_, err = svc.UpdateQuantity(ctx, "buyer-1", "P1", models.MaxQuantity+1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonInvalidQuantity, pkgerrors.As(err).Reason())

	cart, err = svc.UpdateQuantity(ctx, "buyer-1", "P1", 0)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "P2", cart.Items[0].ProductID)

	_, err = svc.UpdateQuantity(ctx, "buyer-1", "P1", 2)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = svc.UpdateQuantity(ctx, "buyer-without-cart", "P1", 2)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "P1", 2)
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "buyer-1", "P1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	cart, err = svc.RemoveItem(ctx, "buyer-1", "P1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = svc.RemoveItem(ctx, "nobody", "P1")
	require.NoError(t, err)

	var carts int64
	require.NoError(t, conn.Model(&models.Cart{}).Where("owner_id = ?", "nobody").Count(&carts).Error)
	assert.Zero(t, carts, "removing from a missing cart must not create one")
}

func TestClearCart(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")
	dbtest.SeedProduct(t, conn, "P2", 500, 10, "seller-2")
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "buyer-1", "P1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "buyer-2", "P2", 1)
	require.NoError(t, err)

	cart, err := svc.ClearCart(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	other, err := svc.GetCart(ctx, "buyer-2")
	require.NoError(t, err)
	assert.Len(t, other.Items, 1, "clearing one cart must not touch another buyer")
}

func TestCartTotalTracksMutations(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")
	dbtest.SeedProduct(t, conn, "P2", 500, 10, "seller-2")
	dbtest.SeedProduct(t, conn, "P3", 250, 10, "seller-1")
	ctx := context.Background()

	steps := []func() (*models.Cart, error){
		func() (*models.Cart, error) { return svc.AddItem(ctx, "b", "P1", 2) },
		func() (*models.Cart, error) { return svc.AddItem(ctx, "b", "P2", 1) },
		func() (*models.Cart, error) { return svc.AddItem(ctx, "b", "P3", 4) },
		func() (*models.Cart, error) { return svc.UpdateQuantity(ctx, "b", "P2", 3) },
		func() (*models.Cart, error) { return svc.RemoveItem(ctx, "b", "P1") },
		func() (*models.Cart, error) { return svc.AddItem(ctx, "b", "P1", 1) },
	}
	for i, step := range steps {
		cart, err := step()
		require.NoError(t, err, "step %d", i)

		var want int64
		for _, item := range cart.Items {
			want += item.Price * int64(item.Quantity)
		}
		assert.Equal(t, want, totalOf(t, cart), "step %d", i)
	}

	cart, err := svc.GetCart(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(500*3+250*4+1000), totalOf(t, cart))
}

func TestConcurrentAddsDoNotLoseIncrements(t *testing.T) {
	t.Parallel()

	svc, conn, _ := newIntegrationService(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 10, "seller-1")

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddItem(context.Background(), "buyer-1", "P1", 1); err != nil {
				t.Errorf("add item: %v", err)
			}
		}()
	}
	wg.Wait()

	cart, err := svc.GetCart(context.Background(), "buyer-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, workers, cart.Items[0].Quantity)
}
