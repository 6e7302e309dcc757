package handler

import (
	"net/http"

	"stockledger/internal/logger"
	"stockledger/internal/middleware"
	"stockledger/internal/service"
	"stockledger/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Services bundles everything the HTTP layer calls into
type Services struct {
	Ledger    *service.StockLedger
	Recorder  *service.MovementRecorder
	Transfers *service.TransferCoordinator
	Vouchers  *service.VoucherWorkflow
	Catalog   *service.CatalogService
	Audit     *service.AuditService
}

type RouterConfig struct {
	Services    Services
	Hub         *websocket.Hub
	Secret      []byte
	CORSOrigins []string
	Log         *logrus.Logger
}

// NewRouter wires middleware, public endpoints and the authenticated API
func NewRouter(cfg RouterConfig) *gin.Engine {
	RegisterValidators()

	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(cfg.Log))

	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	if cfg.Hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			websocket.ServeWs(cfg.Hub, c, cfg.Secret)
		})
	}

	api := router.Group("")
	api.Use(middleware.RequireAuth(cfg.Secret))

	s := cfg.Services
	NewStockHandler(s.Ledger, s.Recorder, cfg.Log).RegisterRoutes(api)
	NewTransferHandler(s.Transfers, cfg.Log).RegisterRoutes(api)
	NewVoucherHandler(s.Vouchers, cfg.Log).RegisterRoutes(api)
	NewCatalogHandler(s.Catalog, cfg.Log).RegisterRoutes(api)
	NewAuditHandler(s.Audit, cfg.Log).RegisterRoutes(api)

	return router
}
