// Package orders implements the order lifecycle state machine:
// creation with reservation, cancellation with release, and the
// per-order settlement transformation driven by the settlement sweep.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brokerhub/brokerage/internal/assets"
	"github.com/brokerhub/brokerage/internal/database"
	apperrors "github.com/brokerhub/brokerage/pkg/errors"
	"github.com/brokerhub/brokerage/pkg/metrics"
	"github.com/brokerhub/brokerage/pkg/models"
)

// Service implements order creation, cancellation and listing. Balance
// effects go through the asset ledger inside the same transaction as
// the order-row change, so an order is never observable without its
// reservation and a reservation never outlives a failed create.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	ledger *assets.Service
}

// NewService creates a new order lifecycle service
func NewService(logger *zap.Logger, db *gorm.DB, ledger *assets.Service) *Service {
	return &Service{
		logger: logger,
		db:     db,
		ledger: ledger,
	}
}

// CreateOrder reserves funds and persists a PENDING order as one unit.
// BUY reserves size*price of cash; SELL reserves size of the named
// asset. A failed reservation leaves no order row behind.
func (s *Service) CreateOrder(ctx context.Context, customerID uuid.UUID, assetName string, side models.OrderSide, size, price decimal.Decimal) (*models.Order, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("side must be BUY or SELL: %w", apperrors.ErrValidation)
	}
	if !size.IsPositive() || !price.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		AssetName:  assetName,
		Side:       side,
		Size:       size,
		Price:      price,
		Status:     models.OrderStatusPending,
		CreateDate: time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if side == models.OrderSideBuy {
			if err := s.ledger.Reserve(tx, customerID, models.CashAssetName, order.Cost()); err != nil {
				return err
			}
		} else {
			if err := s.ledger.Reserve(tx, customerID, assetName, size); err != nil {
				return err
			}
		}

		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(side)).Inc()
	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.String("asset_name", assetName),
		zap.String("side", string(side)),
		zap.String("size", size.String()),
		zap.String("price", price.String()))
	return order, nil
}

// ListOrders returns the customer's orders with create date in
// [startDate, endDate]
func (s *Service) ListOrders(ctx context.Context, customerID uuid.UUID, startDate, endDate time.Time) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.WithContext(ctx).
		Where("customer_id = ? AND create_date BETWEEN ? AND ?", customerID, startDate, endDate).
		Order("create_date").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// CancelOrder releases the order's reservation and marks it CANCELED
// as one unit. Only PENDING orders are cancellable; the status check
// happens under the row lock, so a racing settlement cannot slip in
// between the check and the release.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var canceled models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, apperrors.ErrIllegalOrderState)
		}

		if order.Side == models.OrderSideBuy {
			err = s.ledger.Release(tx, order.CustomerID, models.CashAssetName, order.Cost())
		} else {
			err = s.ledger.Release(tx, order.CustomerID, order.AssetName, order.Size)
		}
		if err != nil {
			return err
		}

		order.Status = models.OrderStatusCanceled
		if err := saveOrder(tx, order); err != nil {
			return err
		}

		canceled = *order
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCanceledTotal.Inc()
	s.logger.Info("order canceled",
		zap.String("order_id", orderID.String()),
		zap.String("customer_id", canceled.CustomerID.String()))
	return &canceled, nil
}

// Settle applies the order's economic effect and marks it MATCHED. The
// caller (the settlement sweep) holds the row lock and has verified the
// order is PENDING within the same transaction.
//
// BUY: cash size shrinks by size*price (usable already shrank at
// reservation), the target asset grows in full. SELL: cash grows in
// full, the target asset's size shrinks; the target row vanishing
// between acceptance and settlement means the books are broken.
func (s *Service) Settle(tx *gorm.DB, order *models.Order) error {
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, apperrors.ErrIllegalOrderState)
	}

	if order.Side == models.OrderSideBuy {
		if err := s.ledger.SettleDebit(tx, order.CustomerID, models.CashAssetName, order.Cost()); err != nil {
			return err
		}
		if err := s.ledger.SettleCredit(tx, order.CustomerID, order.AssetName, order.Size); err != nil {
			return err
		}
	} else {
		if err := s.ledger.SettleCredit(tx, order.CustomerID, models.CashAssetName, order.Cost()); err != nil {
			return err
		}
		if err := s.ledger.SettleDebit(tx, order.CustomerID, order.AssetName, order.Size); err != nil {
			if apperrors.Is(err, apperrors.ErrRecordNotFound) {
				// cannot happen under correct reservation discipline
				return fmt.Errorf("sold asset %s missing at settlement: %w", order.AssetName, apperrors.ErrInvariantViolation)
			}
			return err
		}
	}

	order.Status = models.OrderStatusMatched
	return saveOrder(tx, order)
}

// LockPending reads an order row under a row lock for the settlement
// sweep. Returns ErrIllegalOrderState when the order reached a
// terminal state since the sweep snapshot was taken.
func (s *Service) LockPending(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := lockOrder(tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, apperrors.ErrIllegalOrderState)
	}
	return order, nil
}

// PendingOrderIDs snapshots the ids of all orders currently PENDING
func (s *Service) PendingOrderIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ?", models.OrderStatusPending).
		Order("create_date").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	return ids, nil
}

func lockOrder(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := database.ForUpdate(tx).Where("id = ?", orderID).First(&order).Error; err != nil {
		if apperrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

func saveOrder(tx *gorm.DB, order *models.Order) error {
	order.UpdatedAt = time.Now()
	if err := tx.Save(order).Error; err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}
