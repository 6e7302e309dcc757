package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"stockledger/internal/lock"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "insufficient stock", err: &InsufficientStockError{Requested: dec("2"), Available: dec("1")}, want: ErrInsufficientStock},
		{name: "excess return", err: &ExcessReturnError{Requested: dec("6"), Remaining: dec("4")}, want: ErrExcessReturn},
		{name: "over receive", err: &OverReceiveError{Requested: dec("70"), Remaining: dec("60")}, want: ErrOverReceive},
		{name: "already approved", err: &AlreadyApprovedError{VoucherID: uuid.New()}, want: ErrAlreadyApproved},
		{name: "invalid transition", err: &InvalidTransitionError{From: "CANCELLED", Action: "approve"}, want: ErrInvalidTransition},
		{name: "forbidden", err: &ForbiddenError{UserID: uuid.New()}, want: ErrForbidden},
		{name: "not found", err: &NotFoundError{Entity: "product", ID: "x"}, want: ErrNotFound},
		{name: "validation", err: &ValidationError{Field: "qty", Details: "must be greater than 0"}, want: ErrValidation},
		{name: "busy", err: &BusyError{Resource: "voucher", Err: lock.ErrNotObtained}, want: ErrBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.want) {
				t.Fatalf("errors.Is(%v, %v) = false", wrapped, tt.want)
			}
			if !isBusinessError(wrapped) {
				t.Fatalf("%v is not classified as a business error", wrapped)
			}
		})
	}

	if !errors.Is(&BusyError{Resource: "voucher", Err: lock.ErrNotObtained}, lock.ErrNotObtained) {
		t.Fatal("busy error hides the lock error")
	}
	if isBusinessError(errors.New("connection reset")) {
		t.Fatal("infrastructure error classified as business error")
	}
}

func TestInsufficientStockMessage(t *testing.T) {
	err := &InsufficientStockError{Requested: dec("20"), Available: dec("10")}
	if !strings.HasPrefix(err.Error(), "Insufficient stock:") {
		t.Fatalf("message = %q", err.Error())
	}
	err.Message = insufficientForTransfer
	if !strings.HasPrefix(err.Error(), "Insufficient stock for transfer:") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestNotFoundMapping(t *testing.T) {
	id := uuid.New()
	var nf *NotFoundError
	if err := notFound(gorm.ErrRecordNotFound, "branch", id); !errors.As(err, &nf) || nf.ID != id.String() {
		t.Fatalf("err = %v, want NotFoundError for %s", err, id)
	}

	other := errors.New("boom")
	if err := notFound(other, "branch", id); errors.Is(err, ErrNotFound) || !errors.Is(err, other) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}
