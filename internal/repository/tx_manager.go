package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// UnitOfWork exposes repositories bound to a single database transaction.
// Everything written through one UnitOfWork commits or rolls back together.
type UnitOfWork interface {
	Products() ProductRepository
	Branches() BranchRepository
	Partners() PartnerRepository
	Users() UserRepository
	Permissions() BranchPermissionRepository
	Balances() StockBalanceRepository
	Movements() MovementRepository
	Vouchers() VoucherRepository
	Transfers() TransferRepository
	Audit() AuditRepository
}

// TransactionManager runs units of work.
type TransactionManager interface {
	// RunInTx commits when fn returns nil and rolls back otherwise, including when ctx is done.
	RunInTx(ctx context.Context, fn func(txCtx context.Context, uow UnitOfWork) error) error
	// Reader returns repositories that execute outside any transaction.
	Reader() UnitOfWork
}

type transactionManager struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewTransactionManager returns a postgres backed TransactionManager.
// A positive lockTimeout bounds how long a unit of work waits for a row lock.
func NewTransactionManager(db *gorm.DB, lockTimeout time.Duration) TransactionManager {
	return &transactionManager{db: db, lockTimeout: lockTimeout}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context, uow UnitOfWork) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", t.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		if err := fn(ctx, &gormUnitOfWork{db: tx}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

func (t *transactionManager) Reader() UnitOfWork {
	return &gormUnitOfWork{db: t.db}
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func (u *gormUnitOfWork) Products() ProductRepository { return &productRepository{db: u.db} }
func (u *gormUnitOfWork) Branches() BranchRepository  { return &branchRepository{db: u.db} }
func (u *gormUnitOfWork) Partners() PartnerRepository { return &partnerRepository{db: u.db} }
func (u *gormUnitOfWork) Users() UserRepository       { return &userRepository{db: u.db} }
func (u *gormUnitOfWork) Permissions() BranchPermissionRepository {
	return &branchPermissionRepository{db: u.db}
}
func (u *gormUnitOfWork) Balances() StockBalanceRepository { return &stockBalanceRepository{db: u.db} }
func (u *gormUnitOfWork) Movements() MovementRepository    { return &movementRepository{db: u.db} }
func (u *gormUnitOfWork) Vouchers() VoucherRepository      { return &voucherRepository{db: u.db} }
func (u *gormUnitOfWork) Transfers() TransferRepository    { return &transferRepository{db: u.db} }
func (u *gormUnitOfWork) Audit() AuditRepository           { return &auditRepository{db: u.db} }

// Postgres SQLSTATE codes for faults worth retrying from scratch.
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// IsRetryable reports whether err is an infrastructure fault (lock timeout,
// deadlock, serialization failure) after which the whole operation may be retried.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return true
		}
	}
	return false
}
