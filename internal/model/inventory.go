package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents an item whose quantity is tracked per branch
type Product struct {
	ID   uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SKU  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name string    `gorm:"type:varchar(255);not null" json:"name"`
	Unit string    `gorm:"type:varchar(20);not null;default:'pcs'" json:"unit"`
	// AllowsFraction marks pack/weight products (e.g. kilograms) that transact in decimal quantities.
	AllowsFraction bool           `gorm:"default:false" json:"allows_fraction"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// Branch is a physical or logical stock-holding location
type Branch struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockKey identifies one (product, branch) balance
type StockKey struct {
	ProductID uuid.UUID
	BranchID  uuid.UUID
}

// Less orders keys by branch first, then product. Row locks are always taken in this order.
func (k StockKey) Less(o StockKey) bool {
	if k.BranchID != o.BranchID {
		return k.BranchID.String() < o.BranchID.String()
	}
	return k.ProductID.String() < o.ProductID.String()
}

// StockBalance holds the current quantity of a product at a branch.
// Rows are created lazily on first movement and never deleted.
type StockBalance struct {
	ProductID    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"product_id"`
	BranchID     uuid.UUID       `gorm:"type:uuid;primaryKey;index" json:"branch_id"`
	CurrentStock decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0;check:current_stock >= 0" json:"current_stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (b StockBalance) Key() StockKey {
	return StockKey{ProductID: b.ProductID, BranchID: b.BranchID}
}

// MovementType Enum Simulation
type MovementType string

const (
	MovementAdd             MovementType = "ADD"
	MovementIssue           MovementType = "ISSUE"
	MovementReturn          MovementType = "RETURN"
	MovementTransferOut     MovementType = "TRANSFER_OUT"
	MovementTransferIn      MovementType = "TRANSFER_IN"
	MovementCountAdjustment MovementType = "COUNT_ADJUSTMENT"
)

// Valid reports whether t is one of the known movement types
func (t MovementType) Valid() bool {
	switch t {
	case MovementAdd, MovementIssue, MovementReturn, MovementTransferOut, MovementTransferIn, MovementCountAdjustment:
		return true
	}
	return false
}

// FixedDirection returns the sign implied by the type. Count adjustments carry their own direction.
func (t MovementType) FixedDirection() (outgoing bool, fixed bool) {
	switch t {
	case MovementIssue, MovementTransferOut:
		return true, true
	case MovementAdd, MovementReturn, MovementTransferIn:
		return false, true
	}
	return false, false
}

// Reference types recorded on movements
const (
	RefTypeIssueVoucher    = "issue_vouchers"
	RefTypeReturnVoucher   = "return_vouchers"
	RefTypePurchaseReceipt = "purchase_receipts"
	RefTypeStockTransfer   = "stock_transfers"
	RefTypeStockCount      = "stock_counts"
	RefTypeStockAddition   = "stock_additions"
)

var ErrInvalidMovement = errors.New("invalid movement")

// Movement records one stock quantity change and its cause. Append-only.
type Movement struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_movement_history,priority:1" json:"product_id"`
	BranchID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_movement_history,priority:2" json:"branch_id"`
	Type          MovementType    `gorm:"type:varchar(20);not null" json:"movement_type"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	IsOutgoing    bool            `gorm:"not null;default:false" json:"is_outgoing"`
	StockAfter    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"stock_after"`
	ReferenceType string          `gorm:"type:varchar(50);not null;index:idx_movement_reference,priority:1" json:"reference_type"`
	ReferenceID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_movement_reference,priority:2" json:"reference_id"`
	CorrelationID *uuid.UUID      `gorm:"type:uuid;index" json:"correlation_id,omitempty"`
	Note          string          `gorm:"type:text" json:"note,omitempty"`
	ActorID       uuid.UUID       `gorm:"type:uuid;not null" json:"actor_id"`
	OccurredAt    time.Time       `gorm:"not null;index:idx_movement_history,priority:3" json:"occurred_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the quantity with the direction applied
func (m Movement) Signed() decimal.Decimal {
	if m.IsOutgoing {
		return m.Qty.Neg()
	}
	return m.Qty
}

// Normalize enforces the movement invariants: a known type, a positive quantity
// and a direction matching the type for every type except count adjustments.
func (m *Movement) Normalize() error {
	if !m.Type.Valid() {
		return ErrInvalidMovement
	}
	if !m.Qty.IsPositive() {
		return ErrInvalidMovement
	}
	if outgoing, fixed := m.Type.FixedDirection(); fixed {
		m.IsOutgoing = outgoing
	}
	return nil
}

// BeforeSave keeps IsOutgoing in line with the movement type
func (m *Movement) BeforeSave(_ *gorm.DB) error {
	return m.Normalize()
}

// StockTransfer is the document behind a TRANSFER_OUT / TRANSFER_IN pair
type StockTransfer struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	SourceBranchID uuid.UUID       `gorm:"type:uuid;not null;index" json:"source_branch_id"`
	TargetBranchID uuid.UUID       `gorm:"type:uuid;not null;index" json:"target_branch_id"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Note           string          `gorm:"type:text" json:"note"`
	CreatedBy      uuid.UUID       `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}
