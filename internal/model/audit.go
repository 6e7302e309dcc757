package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateVoucher   = "CREATE_VOUCHER"
	ActionDeleteVoucher   = "DELETE_VOUCHER"
	ActionApproveVoucher  = "APPROVE_VOUCHER"
	ActionCancelVoucher   = "CANCEL_VOUCHER"
	ActionReceivePurchase = "RECEIVE_PURCHASE_ORDER"
	ActionTransferStock   = "TRANSFER_STOCK"
	ActionAddStock        = "ADD_STOCK"
	ActionCountStock      = "COUNT_STOCK"
	ActionCreateProduct   = "CREATE_PRODUCT"
	ActionCreateBranch    = "CREATE_BRANCH"
	ActionCreatePartner   = "CREATE_PARTNER"
	ActionCreateUser      = "CREATE_USER"
	ActionGrantAccess     = "GRANT_BRANCH_ACCESS"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
