package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VoucherKind selects the stock behaviour of a voucher
type VoucherKind string

const (
	VoucherKindIssue         VoucherKind = "ISSUE"
	VoucherKindReturn        VoucherKind = "RETURN"
	VoucherKindPurchaseOrder VoucherKind = "PURCHASE_ORDER"
)

func (k VoucherKind) Valid() bool {
	return k == VoucherKindIssue || k == VoucherKindReturn || k == VoucherKindPurchaseOrder
}

// VoucherStatus constants
type VoucherStatus string

const (
	VoucherStatusDraft     VoucherStatus = "DRAFT"
	VoucherStatusApproved  VoucherStatus = "APPROVED"
	VoucherStatusCancelled VoucherStatus = "CANCELLED"
)

// ReceivingStatus tracks purchase order receipts once the order is approved
type ReceivingStatus string

const (
	ReceivingNone              ReceivingStatus = ""
	ReceivingNotReceived       ReceivingStatus = "NOT_RECEIVED"
	ReceivingPartiallyReceived ReceivingStatus = "PARTIALLY_RECEIVED"
	ReceivingFullyReceived     ReceivingStatus = "FULLY_RECEIVED"
)

// Voucher is the shared header of issue, return and purchase order documents.
// Totals are derived from the lines and never drive stock.
type Voucher struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Kind            VoucherKind     `gorm:"type:varchar(20);not null;uniqueIndex:idx_voucher_number,priority:2;index" json:"kind"`
	VoucherNumber   string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_voucher_number,priority:3" json:"voucher_number"`
	BranchID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_voucher_number,priority:1" json:"branch_id"`
	PartnerID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"partner_id"`
	Partner         *Partner        `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`
	VoucherDate     time.Time       `gorm:"not null" json:"voucher_date"`
	Status          VoucherStatus   `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	ReceivingStatus ReceivingStatus `gorm:"type:varchar(20)" json:"receiving_status,omitempty"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_amount"`
	TaxRate         decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tax_rate"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_amount"`
	Total           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	Note            string          `gorm:"type:text" json:"note"`
	CreatedBy       uuid.UUID       `gorm:"type:uuid;not null" json:"created_by"`
	ApprovedBy      *uuid.UUID      `gorm:"type:uuid" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CancelledBy     *uuid.UUID      `gorm:"type:uuid" json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	Lines           []VoucherLine   `gorm:"foreignKey:VoucherID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Line returns the line with the given id, or nil
func (v *Voucher) Line(id uuid.UUID) *VoucherLine {
	for i := range v.Lines {
		if v.Lines[i].ID == id {
			return &v.Lines[i]
		}
	}
	return nil
}

// VoucherLine is one product row of a voucher
type VoucherLine struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VoucherID uuid.UUID       `gorm:"type:uuid;not null;index" json:"voucher_id"`
	LineNo    int             `gorm:"not null;default:0" json:"line_no"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_price"`
	// SourceLineID points a return line at the issue line it gives back.
	SourceLineID *uuid.UUID `gorm:"type:uuid;index" json:"source_line_id,omitempty"`
	// ReceivedQuantity accumulates purchase order receipts.
	ReceivedQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"received_quantity"`
}

// Outstanding is the ordered quantity not yet received
func (l VoucherLine) Outstanding() decimal.Decimal {
	return l.Quantity.Sub(l.ReceivedQuantity)
}

// PurchaseReceipt records one delivery against an approved purchase order
type PurchaseReceipt struct {
	ID         uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VoucherID  uuid.UUID             `gorm:"type:uuid;not null;index" json:"voucher_id"`
	ReceivedAt time.Time             `gorm:"not null" json:"received_at"`
	ReceivedBy uuid.UUID             `gorm:"type:uuid;not null" json:"received_by"`
	Note       string                `gorm:"type:text" json:"note"`
	Lines      []PurchaseReceiptLine `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt  time.Time             `json:"created_at"`
}

type PurchaseReceiptLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReceiptID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"receipt_id"`
	OrderLineID uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_line_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
}
