package repository

import (
	"context"
	"time"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MovementCursor is the position after which a history page starts
type MovementCursor struct {
	OccurredAt time.Time
	ID         int64
}

// MovementFilter selects movements for one product. From is inclusive, To exclusive.
type MovementFilter struct {
	ProductID uuid.UUID
	BranchID  *uuid.UUID
	From      *time.Time
	To        *time.Time
	After     *MovementCursor
	Limit     int
}

type MovementRepository interface {
	Create(ctx context.Context, movement *model.Movement) error
	// List returns movements ordered by (occurred_at, id) ascending.
	List(ctx context.Context, filter MovementFilter) ([]model.Movement, error)
	SignedSum(ctx context.Context, key model.StockKey) (decimal.Decimal, error)
}

type movementRepository struct {
	db *gorm.DB
}

func (r *movementRepository) Create(ctx context.Context, movement *model.Movement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *movementRepository) List(ctx context.Context, filter MovementFilter) ([]model.Movement, error) {
	query := r.db.WithContext(ctx).Where("product_id = ?", filter.ProductID)
	if filter.BranchID != nil {
		query = query.Where("branch_id = ?", *filter.BranchID)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at < ?", *filter.To)
	}
	if filter.After != nil {
		query = query.Where("(occurred_at, id) > (?, ?)", filter.After.OccurredAt, filter.After.ID)
	}

	var movements []model.Movement
	if err := query.Order("occurred_at ASC, id ASC").Limit(filter.Limit).Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *movementRepository) SignedSum(ctx context.Context, key model.StockKey) (decimal.Decimal, error) {
	var sum decimal.Decimal
	row := r.db.WithContext(ctx).Model(&model.Movement{}).
		Select("COALESCE(SUM(CASE WHEN is_outgoing THEN -qty ELSE qty END), 0)").
		Where("product_id = ? AND branch_id = ?", key.ProductID, key.BranchID).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}
