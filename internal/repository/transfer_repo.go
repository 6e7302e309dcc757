package repository

import (
	"context"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransferRepository interface {
	Create(ctx context.Context, transfer *model.StockTransfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.StockTransfer, error)
}

type transferRepository struct {
	db *gorm.DB
}

func (r *transferRepository) Create(ctx context.Context, transfer *model.StockTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *transferRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.StockTransfer, error) {
	var transfer model.StockTransfer
	if err := r.db.WithContext(ctx).First(&transfer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}
