package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brokerhub/brokerage/internal/assets"
	"github.com/brokerhub/brokerage/internal/orders"
	"github.com/brokerhub/brokerage/pkg/models"
)

func setupTest(t *testing.T) (*gorm.DB, *orders.Service, *Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Asset{}, &models.Order{}))
	ledger := assets.NewService(zap.NewNop(), db)
	ordersSvc := orders.NewService(zap.NewNop(), db, ledger)
	return db, ordersSvc, NewService(zap.NewNop(), db, ordersSvc)
}

func seedAsset(t *testing.T, db *gorm.DB, customerID uuid.UUID, name, size, usable string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Asset{
		ID:         uuid.New(),
		CustomerID: customerID,
		AssetName:  name,
		Size:       decimal.RequireFromString(size),
		UsableSize: decimal.RequireFromString(usable),
	}).Error)
}

func getAsset(t *testing.T, db *gorm.DB, customerID uuid.UUID, name string) *models.Asset {
	t.Helper()
	var asset models.Asset
	require.NoError(t, db.Where("customer_id = ? AND asset_name = ?", customerID, name).First(&asset).Error)
	return &asset
}

func getOrder(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.Where("id = ?", id).First(&order).Error)
	return &order
}

func assertBalances(t *testing.T, asset *models.Asset, size, usable string) {
	t.Helper()
	assert.True(t, asset.Size.Equal(decimal.RequireFromString(size)),
		"size: want %s, got %s", size, asset.Size)
	assert.True(t, asset.UsableSize.Equal(decimal.RequireFromString(usable)),
		"usable: want %s, got %s", usable, asset.UsableSize)
}

func TestMatchPendingOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("BuySettlement", func(t *testing.T) {
		db, ordersSvc, svc := setupTest(t)
		customerID := uuid.New()
		seedAsset(t, db, customerID, models.CashAssetName, "10000", "10000")

		order, err := ordersSvc.CreateOrder(ctx, customerID, "AAPL", models.OrderSideBuy,
			decimal.NewFromInt(10), decimal.NewFromInt(150))
		require.NoError(t, err)

		matched, err := svc.MatchPendingOrders(ctx)
		require.NoError(t, err)
		require.Len(t, matched, 1)
		assert.Equal(t, models.OrderStatusMatched, matched[0].Status)
		assert.Equal(t, models.OrderStatusMatched, getOrder(t, db, order.ID).Status)

		// cash settles to 8500/8500, the bought asset materializes in full
		assertBalances(t, getAsset(t, db, customerID, models.CashAssetName), "8500", "8500")
		assertBalances(t, getAsset(t, db, customerID, "AAPL"), "10", "10")
	})

	t.Run("SellSettlement", func(t *testing.T) {
		db, ordersSvc, svc := setupTest(t)
		customerID := uuid.New()
		seedAsset(t, db, customerID, models.CashAssetName, "100", "100")
		seedAsset(t, db, customerID, "AAPL", "200", "200")

		_, err := ordersSvc.CreateOrder(ctx, customerID, "AAPL", models.OrderSideSell,
			decimal.NewFromInt(50), decimal.NewFromInt(10))
		require.NoError(t, err)

		matched, err := svc.MatchPendingOrders(ctx)
		require.NoError(t, err)
		require.Len(t, matched, 1)

		// proceeds land in cash, the sold size leaves the asset
		assertBalances(t, getAsset(t, db, customerID, models.CashAssetName), "600", "600")
		assertBalances(t, getAsset(t, db, customerID, "AAPL"), "150", "150")
	})

	t.Run("SecondSweepSettlesNothing", func(t *testing.T) {
		db, ordersSvc, svc := setupTest(t)
		customerID := uuid.New()
		seedAsset(t, db, customerID, models.CashAssetName, "10000", "10000")

		_, err := ordersSvc.CreateOrder(ctx, customerID, "AAPL", models.OrderSideBuy,
			decimal.NewFromInt(10), decimal.NewFromInt(150))
		require.NoError(t, err)

		_, err = svc.MatchPendingOrders(ctx)
		require.NoError(t, err)

		matched, err := svc.MatchPendingOrders(ctx)
		require.NoError(t, err)
		assert.Empty(t, matched)
		// balance effects were not applied twice
		assertBalances(t, getAsset(t, db, customerID, models.CashAssetName), "8500", "8500")
		assertBalances(t, getAsset(t, db, customerID, "AAPL"), "10", "10")
	})

	t.Run("CanceledOrderIsSkipped", func(t *testing.T) {
		db, ordersSvc, svc := setupTest(t)
		customerID := uuid.New()
		seedAsset(t, db, customerID, models.CashAssetName, "10000", "10000")

		order, err := ordersSvc.CreateOrder(ctx, customerID, "AAPL", models.OrderSideBuy,
			decimal.NewFromInt(10), decimal.NewFromInt(150))
		require.NoError(t, err)
		_, err = ordersSvc.CancelOrder(ctx, order.ID)
		require.NoError(t, err)

		matched, err := svc.MatchPendingOrders(ctx)
		require.NoError(t, err)
		assert.Empty(t, matched)
		assert.Equal(t, models.OrderStatusCanceled, getOrder(t, db, order.ID).Status)
		assertBalances(t, getAsset(t, db, customerID, models.CashAssetName), "10000", "10000")
	})

	t.Run("FailedSettlementRollsBackAndSweepContinues", func(t *testing.T) {
		db, ordersSvc, svc := setupTest(t)
		brokenCustomer := uuid.New()
		healthyCustomer := uuid.New()
		seedAsset(t, db, brokenCustomer, models.CashAssetName, "100", "100")
		seedAsset(t, db, brokenCustomer, "AAPL", "50", "50")
		seedAsset(t, db, healthyCustomer, models.CashAssetName, "10000", "10000")

		broken, err := ordersSvc.CreateOrder(ctx, brokenCustomer, "AAPL", models.OrderSideSell,
			decimal.NewFromInt(50), decimal.NewFromInt(10))
		require.NoError(t, err)
		healthy, err := ordersSvc.CreateOrder(ctx, healthyCustomer, "AAPL", models.OrderSideBuy,
			decimal.NewFromInt(10), decimal.NewFromInt(150))
		require.NoError(t, err)

		// simulate drifted books: the sold asset row vanishes between
		// acceptance and settlement
		require.NoError(t, db.Where("customer_id = ? AND asset_name = ?", brokenCustomer, "AAPL").
			Delete(&models.Asset{}).Error)

		matched, err := svc.MatchPendingOrders(ctx)
		require.NoError(t, err)
		require.Len(t, matched, 1)
		assert.Equal(t, healthy.ID, matched[0].ID)

		// the broken order's transaction rolled back whole: still
		// PENDING, no proceeds credited
		assert.Equal(t, models.OrderStatusPending, getOrder(t, db, broken.ID).Status)
		assertBalances(t, getAsset(t, db, brokenCustomer, models.CashAssetName), "100", "100")
	})

	t.Run("EmptySweep", func(t *testing.T) {
		_, _, svc := setupTest(t)

		matched, err := svc.MatchPendingOrders(ctx)
		require.NoError(t, err)
		assert.Empty(t, matched)
	})
}
