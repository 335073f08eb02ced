package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/brokerhub/brokerage/pkg/errors"
	"github.com/brokerhub/brokerage/pkg/models"
)

func writeProblem(c *gin.Context, problem *apperrors.ProblemDetails) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(problem.Status, problem)
}

// bindJSON binds the request body and converts binding failures into a
// field-level validation problem
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if apperrors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = validationMessage(fe)
		}
		writeProblem(c, apperrors.NewValidationError("request validation failed", c.Request.URL.Path).WithFieldErrors(fields))
		return false
	}

	writeProblem(c, apperrors.NewValidationError("malformed request body", c.Request.URL.Path))
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "assetname":
		return "must be an uppercase asset code"
	default:
		return "is invalid"
	}
}

// requirePositive rejects non-positive decimal inputs with a
// field-level validation problem
func requirePositive(c *gin.Context, field string, amount decimal.Decimal) bool {
	if amount.IsPositive() {
		return true
	}
	writeProblem(c, apperrors.NewValidationError("request validation failed", c.Request.URL.Path).
		WithFieldErrors(map[string]string{field: "must be a positive value"}))
	return false
}

func customerIDQuery(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Query("customerId"))
	if err != nil {
		writeProblem(c, apperrors.NewValidationError("request validation failed", c.Request.URL.Path).
			WithFieldErrors(map[string]string{"customerId": "must be a valid UUID"}))
		return uuid.Nil, false
	}
	return id, true
}

// handleListAssets handles listing a customer's assets
func (s *Server) handleListAssets(c *gin.Context) {
	customerID, ok := customerIDQuery(c)
	if !ok {
		return
	}

	assets, err := s.assetsSvc.ListAssets(c.Request.Context(), customerID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, assets)
}

// handleDeposit handles depositing cash
func (s *Server) handleDeposit(c *gin.Context) {
	var req assetMoneyRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requirePositive(c, "amount", req.Amount) {
		return
	}

	asset, err := s.assetsSvc.Deposit(c.Request.Context(), uuid.MustParse(req.CustomerID), req.Amount)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, toAssetMoneyResponse(asset))
}

// handleWithdraw handles withdrawing cash
func (s *Server) handleWithdraw(c *gin.Context) {
	var req assetMoneyRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requirePositive(c, "amount", req.Amount) {
		return
	}

	asset, err := s.assetsSvc.Withdraw(c.Request.Context(), uuid.MustParse(req.CustomerID), req.Amount)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, toAssetMoneyResponse(asset))
}

// handleCreateOrder handles creating an order
func (s *Server) handleCreateOrder(c *gin.Context) {
	var req orderRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requirePositive(c, "size", req.Size) || !requirePositive(c, "price", req.Price) {
		return
	}

	order, err := s.ordersSvc.CreateOrder(
		c.Request.Context(),
		uuid.MustParse(req.CustomerID),
		req.AssetName,
		models.OrderSide(req.Side),
		req.Size,
		req.Price,
	)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// handleListOrders handles listing orders by customer and date range
func (s *Server) handleListOrders(c *gin.Context) {
	customerID, ok := customerIDQuery(c)
	if !ok {
		return
	}

	startDate, err := time.Parse(time.RFC3339, c.Query("startDate"))
	if err != nil {
		writeProblem(c, apperrors.NewValidationError("request validation failed", c.Request.URL.Path).
			WithFieldErrors(map[string]string{"startDate": "must be an RFC 3339 timestamp"}))
		return
	}
	endDate, err := time.Parse(time.RFC3339, c.Query("endDate"))
	if err != nil {
		writeProblem(c, apperrors.NewValidationError("request validation failed", c.Request.URL.Path).
			WithFieldErrors(map[string]string{"endDate": "must be an RFC 3339 timestamp"}))
		return
	}

	orders, err := s.ordersSvc.ListOrders(c.Request.Context(), customerID, startDate, endDate)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// handleCancelOrder handles canceling a pending order
func (s *Server) handleCancelOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		writeProblem(c, apperrors.NewValidationError("request validation failed", c.Request.URL.Path).
			WithFieldErrors(map[string]string{"orderId": "must be a valid UUID"}))
		return
	}

	order, err := s.ordersSvc.CancelOrder(c.Request.Context(), orderID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// handleMatchOrders handles the administrative settlement sweep
func (s *Server) handleMatchOrders(c *gin.Context) {
	matched, err := s.settlementSvc.MatchPendingOrders(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, matched)
}

// handleProvisionAsset handles creating a zero-balance asset row
func (s *Server) handleProvisionAsset(c *gin.Context) {
	var req provisionAssetRequest
	if !bindJSON(c, &req) {
		return
	}

	asset, err := s.assetsSvc.ProvisionAsset(c.Request.Context(), uuid.MustParse(req.CustomerID), req.AssetName)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, asset)
}
