package service

import (
	"context"
	"fmt"
	"sort"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnReconciler bounds returns by what is still outstanding on the issue line
type ReturnReconciler struct {
	tx repository.TransactionManager
}

func NewReturnReconciler(tx repository.TransactionManager) *ReturnReconciler {
	return &ReturnReconciler{tx: tx}
}

// RemainingReturnable is the issue line quantity minus every approved return
// against it, ignoring excludeLineID.
func (r *ReturnReconciler) RemainingReturnable(ctx context.Context, issueLineID uuid.UUID, excludeLineID *uuid.UUID) (decimal.Decimal, error) {
	reader := r.tx.Reader()
	issueLine, err := reader.Vouchers().FindLine(ctx, issueLineID)
	if err != nil {
		return decimal.Zero, notFound(err, "issue line", issueLineID)
	}
	return r.remaining(ctx, reader, issueLine, excludeLineID)
}

func (r *ReturnReconciler) remaining(ctx context.Context, uow repository.UnitOfWork, issueLine *model.VoucherLine, excludeLineID *uuid.UUID) (decimal.Decimal, error) {
	returned, err := uow.Vouchers().SumReturnedQuantity(ctx, issueLine.ID, excludeLineID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum returned quantity: %w", err)
	}
	return issueLine.Quantity.Sub(returned), nil
}

// LockSources row-locks the issue lines referenced by the return voucher, in id
// order, so concurrent returns against one issue line are evaluated one at a time.
func (r *ReturnReconciler) LockSources(ctx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) (map[uuid.UUID]*model.VoucherLine, error) {
	ids := make([]uuid.UUID, 0, len(voucher.Lines))
	seen := make(map[uuid.UUID]struct{})
	for _, line := range voucher.Lines {
		if line.SourceLineID == nil {
			return nil, &ValidationError{Field: "source_line_id", Details: fmt.Sprintf("line %d has no issue line", line.LineNo)}
		}
		if _, ok := seen[*line.SourceLineID]; ok {
			continue
		}
		seen[*line.SourceLineID] = struct{}{}
		ids = append(ids, *line.SourceLineID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	locked := make(map[uuid.UUID]*model.VoucherLine, len(ids))
	for _, id := range ids {
		line, err := uow.Vouchers().LockLine(ctx, id)
		if err != nil {
			return nil, notFound(err, "issue line", id)
		}
		locked[id] = line
	}
	return locked, nil
}

// Validate fails with ExcessReturnError when returnLine asks for more than remains.
// issueLine must already be locked in uow.
func (r *ReturnReconciler) Validate(ctx context.Context, uow repository.UnitOfWork, issueLine *model.VoucherLine, returnLine *model.VoucherLine) error {
	remaining, err := r.remaining(ctx, uow, issueLine, &returnLine.ID)
	if err != nil {
		return err
	}
	if returnLine.Quantity.GreaterThan(remaining) {
		return &ExcessReturnError{
			IssueLineID: issueLine.ID,
			Requested:   returnLine.Quantity,
			Remaining:   remaining,
		}
	}
	return nil
}
