package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "stockledger/api/swagger" // swagger docs
	"stockledger/internal/access"
	"stockledger/internal/config"
	"stockledger/internal/database"
	"stockledger/internal/handler"
	"stockledger/internal/lock"
	"stockledger/internal/logger"
	"stockledger/internal/repository"
	"stockledger/internal/repository/memory"
	"stockledger/internal/service"
	"stockledger/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// @title           Stock Ledger API
// @version         1.0
// @description     Multi-branch stock ledger with issue, return and purchase order vouchers.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, loaded := config.Load("configs/.env")
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if !loaded {
		log.Info("No configs/.env file found, using process environment")
	}
	gin.SetMode(cfg.GinMode)

	tx := openStorage(cfg, log)
	locker := newLocker(cfg, log)

	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Repository -> Service -> Handler
	opts := service.Options{
		Tx:       tx,
		Guard:    access.NewRepositoryGuard(tx, cfg.GrantCacheTTL()),
		Notifier: wsHub,
		Log:      log,
	}
	recorder := service.NewMovementRecorder(tx)
	ledger := service.NewStockLedger(opts, recorder)
	reconciler := service.NewReturnReconciler(tx)

	router := handler.NewRouter(handler.RouterConfig{
		Services: handler.Services{
			Ledger:    ledger,
			Recorder:  recorder,
			Transfers: service.NewTransferCoordinator(opts, ledger),
			Vouchers:  service.NewVoucherWorkflow(opts, ledger, reconciler, locker, cfg.VoucherLockTTL),
			Catalog:   service.NewCatalogService(opts),
			Audit:     service.NewAuditService(tx),
		},
		Hub:         wsHub,
		Secret:      cfg.Secret(),
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("port", cfg.Port).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	log.Info("Server stopped")
}

func openStorage(cfg config.Config, log *logrus.Logger) repository.TransactionManager {
	if cfg.StorageDriver == config.DriverMemory {
		log.Warn("Using in-memory storage; data is lost on restart")
		return memory.NewStore()
	}

	db, err := database.NewConnection(cfg.DSN(), cfg.AutoMigrate, log)
	if err != nil {
		log.WithError(err).Fatal("Database connection failed")
	}
	log.Info("Connected to PostgreSQL successfully.")
	return repository.NewTransactionManager(db, cfg.LockTimeout)
}

// newLocker shares voucher locks through redis when configured
func newLocker(cfg config.Config, log *logrus.Logger) lock.Locker {
	if cfg.RedisAddress == "" {
		return lock.NewLocalLocker()
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Fatal("Redis connection failed")
	}
	log.WithField("address", cfg.RedisAddress).Info("Using redis voucher locks")
	return lock.NewRedisLocker(rdb)
}
