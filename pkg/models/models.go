package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashAssetName is the designated currency asset. BUY orders reserve
// against it and SELL orders deposit their proceeds into it.
const CashAssetName = "TRY"

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is one of the known values
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderStatus is the lifecycle state of an order. Transitions are
// one-way: PENDING -> MATCHED or PENDING -> CANCELED.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusMatched  OrderStatus = "MATCHED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Terminal reports whether the status permits no further transitions
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusMatched || s == OrderStatusCanceled
}

// Asset represents a customer's balance in a named asset.
// UsableSize is the part of Size not earmarked by pending orders;
// 0 <= UsableSize <= Size holds after every ledger operation.
type Asset struct {
	ID         uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	CustomerID uuid.UUID       `json:"customer_id" gorm:"type:uuid;uniqueIndex:idx_assets_customer_asset"`
	AssetName  string          `json:"asset_name" gorm:"type:varchar(10);uniqueIndex:idx_assets_customer_asset"`
	Size       decimal.Decimal `json:"size" gorm:"type:decimal(15,3)"`
	UsableSize decimal.Decimal `json:"usable_size" gorm:"type:decimal(15,3)"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName overrides the table name
func (Asset) TableName() string {
	return "assets"
}

// Order represents a single-sided intent to trade a fixed size of an
// asset at a fixed price
type Order struct {
	ID         uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	CustomerID uuid.UUID       `json:"customer_id" gorm:"type:uuid;index"`
	AssetName  string          `json:"asset_name" gorm:"type:varchar(10)"`
	Side       OrderSide       `json:"side" gorm:"type:varchar(4)"`
	Size       decimal.Decimal `json:"size" gorm:"type:decimal(15,3)"`
	Price      decimal.Decimal `json:"price" gorm:"type:decimal(15,3)"`
	Status     OrderStatus     `json:"status" gorm:"type:varchar(10);index"`
	CreateDate time.Time       `json:"create_date" gorm:"index"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName overrides the table name
func (Order) TableName() string {
	return "orders"
}

// Cost is the cash amount the order moves: size * price
func (o *Order) Cost() decimal.Decimal {
	return o.Size.Mul(o.Price)
}
