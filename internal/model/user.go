package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role names
const (
	RoleSuperAdmin = "super_admin"
	RoleStaff      = "staff"
)

// User is the actor behind every mutation. Credentials live with the auth service.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Role      string         `gorm:"type:varchar(50);not null" json:"role"` // super_admin, staff
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

// AccessLevel of a branch permission
const (
	AccessViewOnly   = "view_only"
	AccessFullAccess = "full_access"
)

// BranchPermission grants a user view or full access to one branch.
// Managed by administrators; the stock engine only reads it.
type BranchPermission struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	BranchID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"branch_id"`
	Level     string    `gorm:"type:varchar(20);not null" json:"level"` // view_only, full_access
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the authenticated caller of an engine operation
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}
