// Package server exposes the ledger and order services over HTTP.
package server

import (
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brokerhub/brokerage/internal/assets"
	"github.com/brokerhub/brokerage/internal/orders"
	"github.com/brokerhub/brokerage/internal/settlement"
	apperrors "github.com/brokerhub/brokerage/pkg/errors"
)

var assetNamePattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// Server represents the HTTP server
type Server struct {
	logger        *zap.Logger
	assetsSvc     *assets.Service
	ordersSvc     *orders.Service
	settlementSvc *settlement.Service
	adminToken    string
}

// NewServer creates a new HTTP server
func NewServer(
	logger *zap.Logger,
	assetsSvc *assets.Service,
	ordersSvc *orders.Service,
	settlementSvc *settlement.Service,
	adminToken string,
) *Server {
	registerValidators()
	return &Server{
		logger:        logger,
		assetsSvc:     assetsSvc,
		ordersSvc:     ordersSvc,
		settlementSvc: settlementSvc,
		adminToken:    adminToken,
	}
}

// registerValidators adds the assetname rule to gin's validator and
// makes field errors report json names
func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("assetname", func(fl validator.FieldLevel) bool {
		return assetNamePattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Router creates a new HTTP router
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(cors.Default())

	// Add health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Add Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Add API routes
	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			assets := v1.Group("/assets")
			{
				assets.GET("", s.handleListAssets)
				assets.POST("/deposit", s.handleDeposit)
				assets.POST("/withdraw", s.handleWithdraw)
			}

			orders := v1.Group("/orders")
			{
				orders.POST("", s.handleCreateOrder)
				orders.GET("", s.handleListOrders)
				orders.POST("/:orderId/cancel", s.handleCancelOrder)
			}

			admin := v1.Group("/admin", s.adminAuthMiddleware())
			{
				admin.POST("/matchOrders", s.handleMatchOrders)
				admin.POST("/assets", s.handleProvisionAsset)
			}
		}
	}

	return router
}

// adminAuthMiddleware guards administrative routes with the shared
// token from configuration
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != s.adminToken {
			problem := apperrors.NewUnauthorizedError("admin token missing or invalid", c.Request.URL.Path)
			c.Header("Content-Type", "application/problem+json")
			c.AbortWithStatusJSON(problem.Status, problem)
			return
		}
		c.Next()
	}
}
