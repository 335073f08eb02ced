// Package assets implements the asset ledger: balance bookkeeping with
// a total/usable split and the reservation primitives the order
// lifecycle builds on.
package assets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brokerhub/brokerage/internal/database"
	apperrors "github.com/brokerhub/brokerage/pkg/errors"
	"github.com/brokerhub/brokerage/pkg/metrics"
	"github.com/brokerhub/brokerage/pkg/models"
)

// Service implements the asset ledger over the assets table.
//
// ListAssets, Deposit, Withdraw and ProvisionAsset each run their own
// transaction. Reserve, Release, SettleCredit and SettleDebit run in
// the caller's transaction so an order-state change and its balance
// effect commit or roll back as one unit.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new asset ledger service
func NewService(logger *zap.Logger, db *gorm.DB) *Service {
	return &Service{
		logger: logger,
		db:     db,
	}
}

// ListAssets returns all asset rows for a customer
func (s *Service) ListAssets(ctx context.Context, customerID uuid.UUID) ([]models.Asset, error) {
	var assets []models.Asset
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("asset_name").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

// Deposit credits the customer's cash asset. The cash row must already
// exist: accounts are provisioned out-of-band (ProvisionAsset), deposit
// never auto-creates.
func (s *Service) Deposit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (*models.Asset, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	var asset models.Asset
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cash, err := lockAsset(tx, customerID, models.CashAssetName)
		if err != nil {
			return err
		}

		cash.Size = cash.Size.Add(amount)
		cash.UsableSize = cash.UsableSize.Add(amount)
		if err := saveAsset(tx, cash); err != nil {
			return err
		}

		asset = *cash
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DepositsTotal.Inc()
	s.logger.Info("deposit completed",
		zap.String("customer_id", customerID.String()),
		zap.String("amount", amount.String()))
	return &asset, nil
}

// Withdraw debits the customer's cash asset. Fails with
// ErrInsufficientFunds when the usable balance cannot cover the amount;
// no row is touched on that path.
func (s *Service) Withdraw(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (*models.Asset, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	var asset models.Asset
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cash, err := lockAsset(tx, customerID, models.CashAssetName)
		if err != nil {
			return err
		}

		if cash.UsableSize.LessThan(amount) {
			return fmt.Errorf("usable %s below withdrawal %s: %w",
				cash.UsableSize, amount, apperrors.ErrInsufficientFunds)
		}

		cash.Size = cash.Size.Sub(amount)
		cash.UsableSize = cash.UsableSize.Sub(amount)
		if err := saveAsset(tx, cash); err != nil {
			return err
		}

		asset = *cash
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.Inc()
	s.logger.Info("withdrawal completed",
		zap.String("customer_id", customerID.String()),
		zap.String("amount", amount.String()))
	return &asset, nil
}

// ProvisionAsset creates a zero-balance row for the customer, the
// out-of-band provisioning step deposits depend on
func (s *Service) ProvisionAsset(ctx context.Context, customerID uuid.UUID, assetName string) (*models.Asset, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Asset{}).
		Where("customer_id = ? AND asset_name = ?", customerID, assetName).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check asset: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("asset %s for customer %s: %w", assetName, customerID, apperrors.ErrAlreadyExists)
	}

	asset := &models.Asset{
		ID:         uuid.New(),
		CustomerID: customerID,
		AssetName:  assetName,
		Size:       decimal.Zero,
		UsableSize: decimal.Zero,
	}
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}

	s.logger.Info("asset provisioned",
		zap.String("customer_id", customerID.String()),
		zap.String("asset_name", assetName))
	return asset, nil
}

// Reserve earmarks usable balance for a pending order: usable shrinks,
// total size is untouched. Runs in the caller's transaction.
func (s *Service) Reserve(tx *gorm.DB, customerID uuid.UUID, assetName string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}

	asset, err := lockAsset(tx, customerID, assetName)
	if err != nil {
		return err
	}

	if asset.UsableSize.LessThan(amount) {
		return fmt.Errorf("usable %s of %s below reservation %s: %w",
			asset.UsableSize, assetName, amount, apperrors.ErrInsufficientFunds)
	}

	asset.UsableSize = asset.UsableSize.Sub(amount)
	return saveAsset(tx, asset)
}

// Release reverses a prior reservation: usable grows back, total size
// is untouched. Pushing usable above size means the books are broken
// and aborts the transaction.
func (s *Service) Release(tx *gorm.DB, customerID uuid.UUID, assetName string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}

	asset, err := lockAsset(tx, customerID, assetName)
	if err != nil {
		return err
	}

	asset.UsableSize = asset.UsableSize.Add(amount)
	return saveAsset(tx, asset)
}

// SettleCredit lands funds in full: both size and usable grow. The row
// is created with a zero baseline when absent, which is how the target
// asset of a first-time BUY comes into existence.
func (s *Service) SettleCredit(tx *gorm.DB, customerID uuid.UUID, assetName string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}

	asset, err := lockAsset(tx, customerID, assetName)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrRecordNotFound) {
			return err
		}
		asset = &models.Asset{
			ID:         uuid.New(),
			CustomerID: customerID,
			AssetName:  assetName,
			Size:       decimal.Zero,
			UsableSize: decimal.Zero,
		}
		if err := tx.Create(asset).Error; err != nil {
			return fmt.Errorf("failed to create asset: %w", err)
		}
	}

	asset.Size = asset.Size.Add(amount)
	asset.UsableSize = asset.UsableSize.Add(amount)
	return saveAsset(tx, asset)
}

// SettleDebit removes settled funds from the total size. The matching
// usable part was already taken at reservation time, so only size
// moves; size dropping below usable means the books are broken.
func (s *Service) SettleDebit(tx *gorm.DB, customerID uuid.UUID, assetName string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}

	asset, err := lockAsset(tx, customerID, assetName)
	if err != nil {
		return err
	}

	asset.Size = asset.Size.Sub(amount)
	return saveAsset(tx, asset)
}

// lockAsset reads an asset row under a row lock
func lockAsset(tx *gorm.DB, customerID uuid.UUID, assetName string) (*models.Asset, error) {
	var asset models.Asset
	if err := database.ForUpdate(tx).
		Where("customer_id = ? AND asset_name = ?", customerID, assetName).
		First(&asset).Error; err != nil {
		if apperrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("asset %s for customer %s: %w", assetName, customerID, apperrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to find asset: %w", err)
	}
	return &asset, nil
}

// saveAsset persists a mutated row after checking the ledger invariant
func saveAsset(tx *gorm.DB, asset *models.Asset) error {
	if asset.UsableSize.IsNegative() || asset.UsableSize.GreaterThan(asset.Size) {
		return fmt.Errorf("asset %s for customer %s has usable %s outside [0, %s]: %w",
			asset.AssetName, asset.CustomerID, asset.UsableSize, asset.Size, apperrors.ErrInvariantViolation)
	}
	asset.UpdatedAt = time.Now()
	if err := tx.Save(asset).Error; err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}
