package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sentinel errors. Every typed error below unwraps to one of them.
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrExcessReturn      = errors.New("return quantity exceeds remaining returnable quantity")
	ErrOverReceive       = errors.New("receive quantity exceeds remaining ordered quantity")
	ErrAlreadyApproved   = errors.New("voucher already approved")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrBusy              = errors.New("resource busy")
)

// InsufficientStockError is returned when an outbound quantity exceeds the balance
type InsufficientStockError struct {
	ProductID uuid.UUID
	BranchID  uuid.UUID
	Requested decimal.Decimal
	Available decimal.Decimal
	// Message overrides the default text, e.g. "Insufficient stock for transfer".
	Message string
}

func (e *InsufficientStockError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Insufficient stock"
	}
	return fmt.Sprintf("%s: product %s at branch %s requested %s, available %s",
		msg, e.ProductID, e.BranchID, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type ExcessReturnError struct {
	IssueLineID uuid.UUID
	Requested   decimal.Decimal
	Remaining   decimal.Decimal
}

func (e *ExcessReturnError) Error() string {
	return fmt.Sprintf("%s: issue line %s requested %s, remaining %s",
		ErrExcessReturn.Error(), e.IssueLineID, e.Requested.String(), e.Remaining.String())
}

func (e *ExcessReturnError) Unwrap() error { return ErrExcessReturn }

type OverReceiveError struct {
	OrderLineID uuid.UUID
	Requested   decimal.Decimal
	Remaining   decimal.Decimal
}

func (e *OverReceiveError) Error() string {
	return fmt.Sprintf("%s: order line %s requested %s, remaining %s",
		ErrOverReceive.Error(), e.OrderLineID, e.Requested.String(), e.Remaining.String())
}

func (e *OverReceiveError) Unwrap() error { return ErrOverReceive }

type AlreadyApprovedError struct {
	VoucherID uuid.UUID
}

func (e *AlreadyApprovedError) Error() string {
	return fmt.Sprintf("voucher %s is already approved", e.VoucherID)
}

func (e *AlreadyApprovedError) Unwrap() error { return ErrAlreadyApproved }

type InvalidTransitionError struct {
	VoucherID uuid.UUID
	From      string
	Action    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s voucher %s: already %s", e.Action, e.VoucherID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

type ForbiddenError struct {
	UserID   uuid.UUID
	BranchID uuid.UUID
}

func (e *ForbiddenError) Error() string {
	if e.BranchID == uuid.Nil {
		return fmt.Sprintf("user %s is not allowed to perform this action", e.UserID)
	}
	return fmt.Sprintf("user %s has no full access to branch %s", e.UserID, e.BranchID)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError wraps ErrValidation with the offending field
type ValidationError struct {
	Field   string
	Details string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Details)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type BusyError struct {
	Resource string
	Err      error
}

func (e *BusyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s is busy, retry later: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("%s is busy, retry later", e.Resource)
}

func (e *BusyError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBusy, e.Err}
	}
	return []error{ErrBusy}
}

// notFound converts gorm.ErrRecordNotFound into a NotFoundError and wraps anything else
func notFound(err error, entity string, id fmt.Stringer) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Entity: entity, ID: id.String()}
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}
