package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/angelmondragon/cartengine/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/angelmondragon/cartengine/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDecrementIfAvailable(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 5, "seller-1")
	ledger := NewStore(conn)
	ctx := context.Background()

	ok, err := ledger.DecrementIfAvailable(ctx, "P1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, dbtest.StockOf(t, conn, "P1"))

	ok, err = ledger.DecrementIfAvailable(ctx, "P1", 3)
	require.NoError(t, err)
	assert.False(t, ok, "short stock must be rejected")
	assert.Equal(t, 2, dbtest.StockOf(t, conn, "P1"), "rejected decrement must not change stock")

	ok, err = ledger.DecrementIfAvailable(ctx, "P1", 2)
	require.NoError(t, err)
	assert.True(t, ok, "exact stock can be taken")
	assert.Equal(t, 0, dbtest.StockOf(t, conn, "P1"))
}

func TestDecrementIfAvailableUnknownProduct(t *testing.T) {
	t.Parallel()

	ledger := NewStore(dbtest.Open(t))
	ok, err := ledger.DecrementIfAvailable(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestLedgerRejectsInvalidArguments(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 5, "seller-1")
	ledger := NewStore(conn)
	ctx := context.Background()

	_, err := ledger.DecrementIfAvailable(ctx, "P1", 0)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonInvalidQuantity, pkgerrors.As(err).Reason())

	err = ledger.Increment(ctx, "P1", -1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = ledger.DecrementIfAvailable(ctx, "", 1)
	require.Error(t, err)
	assert.Equal(t, 5, dbtest.StockOf(t, conn, "P1"))
}

func TestIncrement(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 0, "seller-1")
	ledger := NewStore(conn)

	require.NoError(t, ledger.Increment(context.Background(), "P1", 3))
	assert.Equal(t, 3, dbtest.StockOf(t, conn, "P1"))

	err := ledger.Increment(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 3, "seller-1")
	ledger := NewStore(conn)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.DecrementIfAvailable(context.Background(), "P1", 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	assert.Equal(t, 0, dbtest.StockOf(t, conn, "P1"))
}

func TestBoundStoreParticipatesInTransaction(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 2, "seller-1")
	ledger := NewStore(conn)

	err := conn.Transaction(func(tx *gorm.DB) error {
		ok, err := ledger.WithTx(tx).DecrementIfAvailable(context.Background(), "P1", 2)
		require.NoError(t, err)
		require.True(t, ok)
		return pkgerrors.New(pkgerrors.CodeInternal, "abort")
	})
	require.Error(t, err)
	assert.Equal(t, 2, dbtest.StockOf(t, conn, "P1"), "rolled back decrement must restore stock")
}

func TestLedgerRecordsMetrics(t *testing.T) {
	t.Parallel()

	conn := dbtest.Open(t)
	dbtest.SeedProduct(t, conn, "P1", 1000, 1, "seller-1")
	reg := prometheus.NewRegistry()
	ledger := NewStore(conn, WithMetrics(metrics.NewEngineMetrics(reg)))
	ctx := context.Background()

	_, err := ledger.DecrementIfAvailable(ctx, "P1", 1)
	require.NoError(t, err)
	_, err = ledger.DecrementIfAvailable(ctx, "P1", 1)
	require.NoError(t, err)
	require.NoError(t, ledger.Increment(ctx, "P1", 1))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, label := range m.GetLabel() {
				key += ":" + label.GetValue()
			}
			counts[key] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), counts["cartengine_stock_decrements_total:applied"])
	assert.Equal(t, float64(1), counts["cartengine_stock_decrements_total:insufficient"])
	assert.Equal(t, float64(1), counts["cartengine_stock_increments_total"])
}
