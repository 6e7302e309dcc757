package repository

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockBalanceRepository interface {
	Find(ctx context.Context, key model.StockKey) (*model.StockBalance, error)
	// LockForUpdate creates missing balances at zero and locks every key for the
	// rest of the transaction, in SortKeys order.
	LockForUpdate(ctx context.Context, keys []model.StockKey) (map[model.StockKey]*model.StockBalance, error)
	Save(ctx context.Context, balance *model.StockBalance) error
	ListByBranch(ctx context.Context, branchID uuid.UUID, page, limit int) ([]model.StockBalance, int64, error)
}

// SortKeys returns the distinct keys in global lock order (branch, then product).
func SortKeys(keys []model.StockKey) []model.StockKey {
	seen := make(map[model.StockKey]struct{}, len(keys))
	out := make([]model.StockKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

type stockBalanceRepository struct {
	db *gorm.DB
}

func (r *stockBalanceRepository) Find(ctx context.Context, key model.StockKey) (*model.StockBalance, error) {
	var balance model.StockBalance
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND branch_id = ?", key.ProductID, key.BranchID).
		First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *stockBalanceRepository) LockForUpdate(ctx context.Context, keys []model.StockKey) (map[model.StockKey]*model.StockBalance, error) {
	sorted := SortKeys(keys)
	locked := make(map[model.StockKey]*model.StockBalance, len(sorted))
	if len(sorted) == 0 {
		return locked, nil
	}

	db := r.db.WithContext(ctx)
	rows := make([]model.StockBalance, 0, len(sorted))
	for _, k := range sorted {
		rows = append(rows, model.StockBalance{ProductID: k.ProductID, BranchID: k.BranchID})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return nil, err
	}

	// One statement per key keeps the acquisition order explicit.
	for _, k := range sorted {
		var balance model.StockBalance
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND branch_id = ?", k.ProductID, k.BranchID).
			First(&balance).Error; err != nil {
			return nil, err
		}
		locked[k] = &balance
	}
	return locked, nil
}

func (r *stockBalanceRepository) Save(ctx context.Context, balance *model.StockBalance) error {
	balance.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Model(&model.StockBalance{}).
		Where("product_id = ? AND branch_id = ?", balance.ProductID, balance.BranchID).
		Updates(map[string]interface{}{
			"current_stock": balance.CurrentStock,
			"updated_at":    balance.UpdatedAt,
		}).Error
}

func (r *stockBalanceRepository) ListByBranch(ctx context.Context, branchID uuid.UUID, page, limit int) ([]model.StockBalance, int64, error) {
	var balances []model.StockBalance
	var total int64

	db := r.db.WithContext(ctx).Model(&model.StockBalance{}).Where("branch_id = ?", branchID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("product_id asc").Offset(offset).Limit(limit).Find(&balances).Error; err != nil {
		return nil, 0, err
	}
	return balances, total, nil
}
