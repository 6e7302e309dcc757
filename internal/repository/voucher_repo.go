package repository

import (
	"context"
	"errors"
	"fmt"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateVoucherNumber is returned by Create when (branch, kind, number) is taken
var ErrDuplicateVoucherNumber = errors.New("duplicate voucher number")

const pgUniqueViolation = "23505"

// VoucherFilter narrows voucher listings; zero values match everything
type VoucherFilter struct {
	BranchID *uuid.UUID
	Kind     model.VoucherKind
	Status   model.VoucherStatus
	Page     int
	Limit    int
}

type VoucherRepository interface {
	Create(ctx context.Context, voucher *model.Voucher) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Voucher, error)
	// FindByIDForUpdate locks the voucher header until the transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Voucher, error)
	List(ctx context.Context, filter VoucherFilter) ([]model.Voucher, int64, error)
	Update(ctx context.Context, voucher *model.Voucher) error
	Delete(ctx context.Context, id uuid.UUID) error
	NumberExists(ctx context.Context, branchID uuid.UUID, kind model.VoucherKind, number string) (bool, error)
	// NextNumber returns prefix followed by a five digit sequence, unique per branch and kind.
	NextNumber(ctx context.Context, branchID uuid.UUID, kind model.VoucherKind, prefix string) (string, error)

	FindLine(ctx context.Context, lineID uuid.UUID) (*model.VoucherLine, error)
	LockLine(ctx context.Context, lineID uuid.UUID) (*model.VoucherLine, error)
	UpdateLineReceived(ctx context.Context, lineID uuid.UUID, received decimal.Decimal) error
	// SumReturnedQuantity totals approved return lines pointing at issueLineID,
	// skipping excludeLineID when given.
	SumReturnedQuantity(ctx context.Context, issueLineID uuid.UUID, excludeLineID *uuid.UUID) (decimal.Decimal, error)

	CreateReceipt(ctx context.Context, receipt *model.PurchaseReceipt) error
}

type voucherRepository struct {
	db *gorm.DB
}

func (r *voucherRepository) Create(ctx context.Context, voucher *model.Voucher) error {
	err := r.db.WithContext(ctx).Create(voucher).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "idx_voucher_number" {
		return fmt.Errorf("%w: %s", ErrDuplicateVoucherNumber, voucher.VoucherNumber)
	}
	return err
}

func (r *voucherRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Voucher, error) {
	var voucher model.Voucher
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		First(&voucher, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *voucherRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Voucher, error) {
	db := r.db.WithContext(ctx)

	var voucher model.Voucher
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&voucher).Error; err != nil {
		return nil, err
	}
	if err := db.Where("voucher_id = ?", id).Order("line_no ASC").Find(&voucher.Lines).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *voucherRepository) List(ctx context.Context, filter VoucherFilter) ([]model.Voucher, int64, error) {
	var vouchers []model.Voucher
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Voucher{})
	if filter.BranchID != nil {
		query = query.Where("branch_id = ?", *filter.BranchID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Order("voucher_date DESC, created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}
	return vouchers, total, nil
}

func (r *voucherRepository) Update(ctx context.Context, voucher *model.Voucher) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(voucher).Error
}

func (r *voucherRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("voucher_id = ?", id).Delete(&model.VoucherLine{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Voucher{}).Error
}

func (r *voucherRepository) NumberExists(ctx context.Context, branchID uuid.UUID, kind model.VoucherKind, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("branch_id = ? AND kind = ? AND voucher_number = ?", branchID, kind, number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *voucherRepository) NextNumber(ctx context.Context, branchID uuid.UUID, kind model.VoucherKind, prefix string) (string, error) {
	db := r.db.WithContext(ctx)

	// Use advisory lock to prevent concurrent duplicate voucher numbers
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", branchID.String()+":"+prefix).Error; err != nil {
		return "", err
	}

	// Highest numeric suffix in use; deleted drafts and hand-entered
	// numbers must not make the sequence reuse a taken number.
	from := len(prefix) + 1
	var last int64
	if err := db.Model(&model.Voucher{}).
		Select("COALESCE(MAX(CAST(SUBSTRING(voucher_number FROM ?) AS BIGINT)), 0)", from).
		Where("branch_id = ? AND kind = ? AND voucher_number LIKE ?", branchID, kind, prefix+"%").
		Where("SUBSTRING(voucher_number FROM ?) ~ '^[0-9]{1,18}$'", from).
		Scan(&last).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, last+1), nil
}

func (r *voucherRepository) FindLine(ctx context.Context, lineID uuid.UUID) (*model.VoucherLine, error) {
	var line model.VoucherLine
	if err := r.db.WithContext(ctx).First(&line, "id = ?", lineID).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *voucherRepository) LockLine(ctx context.Context, lineID uuid.UUID) (*model.VoucherLine, error) {
	var line model.VoucherLine
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", lineID).First(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *voucherRepository) UpdateLineReceived(ctx context.Context, lineID uuid.UUID, received decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&model.VoucherLine{}).
		Where("id = ?", lineID).
		Update("received_quantity", received).Error
}

func (r *voucherRepository) SumReturnedQuantity(ctx context.Context, issueLineID uuid.UUID, excludeLineID *uuid.UUID) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).Model(&model.VoucherLine{}).
		Joins("JOIN vouchers ON vouchers.id = voucher_lines.voucher_id").
		Where("voucher_lines.source_line_id = ?", issueLineID).
		Where("vouchers.kind = ? AND vouchers.status = ?", model.VoucherKindReturn, model.VoucherStatusApproved)
	if excludeLineID != nil {
		query = query.Where("voucher_lines.id <> ?", *excludeLineID)
	}

	var sum decimal.Decimal
	if err := query.Select("COALESCE(SUM(voucher_lines.quantity), 0)").Row().Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *voucherRepository) CreateReceipt(ctx context.Context, receipt *model.PurchaseReceipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}
