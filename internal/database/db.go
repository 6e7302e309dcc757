package database

import (
	"stockledger/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection opens the postgres pool, attaches query tracing and
// optionally migrates the ledger schema.
func NewConnection(dsn string, autoMigrate bool, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, err
	}

	if !autoMigrate {
		return db, nil
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Branch{},
		&model.BranchPermission{},
		&model.Product{},
		&model.Partner{},
		&model.StockBalance{},
		&model.Movement{},
		&model.StockTransfer{},
		&model.Voucher{},
		&model.VoucherLine{},
		&model.PurchaseReceipt{},
		&model.PurchaseReceiptLine{},
		&model.AuditLog{},
	)
	if err != nil {
		log.WithError(err).Warn("failed to auto-migrate models")
	}

	return db, nil
}
