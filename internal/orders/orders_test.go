package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/cartengine/internal/inventory"
	"github.com/angelmondragon/cartengine/internal/notifications"
	"github.com/angelmondragon/cartengine/pkg/db"
	"github.com/angelmondragon/cartengine/pkg/db/dbtest"
	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/angelmondragon/cartengine/pkg/enums"
	"github.com/angelmondragon/cartengine/pkg/logger"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	buyerID  = "buyer-1"
	sellerID = "seller-1"
)

var (
	buyer  = Actor{UserID: buyerID, Role: enums.RoleBuyer}
	seller = Actor{UserID: sellerID, Role: enums.RoleSeller}
	admin  = Actor{UserID: "admin-1", Role: enums.RoleAdmin}
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

func (r *recordingSink) kinds() []enums.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.NotificationKind, 0, len(r.received))
	for _, n := range r.received {
		out = append(out, n.Kind)
	}
	return out
}

type harness struct {
	conn *gorm.DB
	repo Repository
	sm   LineStateMachine
	sink *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	sink := &recordingSink{}
	sm, err := NewLineStateMachine(StateMachineParams{
		Repo:   repo,
		Tx:     db.FromGorm(conn),
		Ledger: inventory.NewStore(conn),
		Sink:   sink,
		Logger: logger.Nop(),
		Retry:  db.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)
	return &harness{conn: conn, repo: repo, sm: sm, sink: sink}
}

type lineSpec struct {
	productID string
	qty       int
	price     int64
	seller    string
}

func (h *harness) seedOrder(t *testing.T, orderID, buyer string, createdAt time.Time, lines ...lineSpec) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            orderID,
		BuyerID:       buyer,
		PaymentMethod: enums.PaymentMethodCash,
		DeliveryType:  enums.DeliveryTypePickup,
		CreatedAt:     createdAt,
	}
	for _, l := range lines {
		order.Items = append(order.Items, models.OrderLineItem{
			OrderID:      orderID,
			ProductID:    l.productID,
			ProductName:  "Product " + l.productID,
			Quantity:     l.qty,
			PricePerItem: l.price,
			SellerUID:    l.seller,
			SellerName:   "Seller " + l.seller,
			Status:       enums.LineItemStatusPending,
		})
		order.Subtotal += l.price * int64(l.qty)
	}
	order.TotalAmount = order.Subtotal
	require.NoError(t, h.repo.Create(context.Background(), order))
	return order
}

func (h *harness) lineStatus(t *testing.T, orderID, productID string) enums.LineItemStatus {
	t.Helper()
	var line models.OrderLineItem
	require.NoError(t, h.conn.Where("order_id = ? AND product_id = ?", orderID, productID).Take(&line).Error)
	return line.Status
}

func transitionInput(orderID, productID string, actor Actor) LineTransitionInput {
	return LineTransitionInput{OrderID: orderID, ProductID: productID, Actor: actor}
}

func seedOrders(t *testing.T, h *harness, count int, productID string, qty int) []string {
	t.Helper()
	ids := make([]string, 0, count)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("order-%02d", i)
		h.seedOrder(t, id, buyerID, base.Add(time.Duration(i)*time.Minute), lineSpec{productID: productID, qty: qty, price: 500, seller: sellerID})
		ids = append(ids, id)
	}
	return ids
}
