package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/brokerhub/brokerage/pkg/models"
)

// assetMoneyRequest is the deposit/withdraw request body
type assetMoneyRequest struct {
	CustomerID string          `json:"customerId" binding:"required,uuid"`
	Amount     decimal.Decimal `json:"amount"`
}

// assetMoneyResponse reports the cash asset after a deposit/withdraw
type assetMoneyResponse struct {
	AssetName    string          `json:"assetName"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	UsableAmount decimal.Decimal `json:"usableAmount"`
}

func toAssetMoneyResponse(asset *models.Asset) assetMoneyResponse {
	return assetMoneyResponse{
		AssetName:    asset.AssetName,
		TotalAmount:  asset.Size,
		UsableAmount: asset.UsableSize,
	}
}

// orderRequest is the create-order request body
type orderRequest struct {
	CustomerID string          `json:"customerId" binding:"required,uuid"`
	AssetName  string          `json:"assetName" binding:"required,assetname"`
	Side       string          `json:"side" binding:"required,oneof=BUY SELL"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
}

// orderResponse is the canceled-order summary
type orderResponse struct {
	CustomerID string             `json:"customerId"`
	AssetName  string             `json:"assetName"`
	Side       models.OrderSide   `json:"side"`
	Size       decimal.Decimal    `json:"size"`
	Price      decimal.Decimal    `json:"price"`
	Status     models.OrderStatus `json:"status"`
	CreateDate time.Time          `json:"createDate"`
}

func toOrderResponse(order *models.Order) orderResponse {
	return orderResponse{
		CustomerID: order.CustomerID.String(),
		AssetName:  order.AssetName,
		Side:       order.Side,
		Size:       order.Size,
		Price:      order.Price,
		Status:     order.Status,
		CreateDate: order.CreateDate,
	}
}

// provisionAssetRequest is the admin provisioning request body
type provisionAssetRequest struct {
	CustomerID string `json:"customerId" binding:"required,uuid"`
	AssetName  string `json:"assetName" binding:"required,assetname"`
}
