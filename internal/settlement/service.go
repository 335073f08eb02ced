// Package settlement drives the order lifecycle's settlement
// transition across all pending orders in one administrative sweep.
package settlement

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brokerhub/brokerage/internal/orders"
	apperrors "github.com/brokerhub/brokerage/pkg/errors"
	"github.com/brokerhub/brokerage/pkg/metrics"
	"github.com/brokerhub/brokerage/pkg/models"
)

// Service is the settlement batch processor
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	orders *orders.Service
}

// NewService creates a new settlement batch processor
func NewService(logger *zap.Logger, db *gorm.DB, ordersSvc *orders.Service) *Service {
	return &Service{
		logger: logger,
		db:     db,
		orders: ordersSvc,
	}
}

// MatchPendingOrders settles every order that was PENDING when the
// sweep started and returns the ones transitioned to MATCHED.
//
// The snapshot is ids only; each order is then settled in its own
// transaction under its row lock. An order canceled between snapshot
// and settlement is skipped (the cancel won), and a failed settlement
// rolls back just that order and the sweep moves on, so partial
// progress is safe and a later sweep picks up whatever is still
// PENDING. Orders created during the sweep are not guaranteed to be
// included.
func (s *Service) MatchPendingOrders(ctx context.Context) ([]models.Order, error) {
	ids, err := s.orders.PendingOrderIDs(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		order, err := s.settleOne(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrIllegalOrderState) || apperrors.Is(err, apperrors.ErrRecordNotFound) {
				// lost the race to a cancel; nothing to settle
				s.logger.Debug("skipping order no longer pending", zap.String("order_id", id.String()))
				continue
			}
			metrics.SettlementFailuresTotal.Inc()
			s.logger.Error("order settlement failed",
				zap.String("order_id", id.String()),
				zap.Error(err))
			continue
		}
		matched = append(matched, *order)
	}

	metrics.OrdersMatchedTotal.Add(float64(len(matched)))
	s.logger.Info("settlement sweep completed",
		zap.Int("pending", len(ids)),
		zap.Int("matched", len(matched)))
	return matched, nil
}

// settleOne settles a single order atomically: lock, re-check PENDING,
// apply ledger effects, mark MATCHED
func (s *Service) settleOne(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var settled models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orders.LockPending(tx, orderID)
		if err != nil {
			return err
		}
		if err := s.orders.Settle(tx, order); err != nil {
			return err
		}
		settled = *order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &settled, nil
}
