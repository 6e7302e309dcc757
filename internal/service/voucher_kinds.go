package service

import (
	"context"
	"fmt"

	"stockledger/internal/model"
	"stockledger/internal/repository"
)

// voucherKind is the per kind behaviour plugged into the shared workflow
type voucherKind interface {
	kind() model.VoucherKind
	numberPrefix() string
	partnerType() string
	// checkDraft validates kind specific line rules before a draft is stored.
	checkDraft(ctx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error
	// reconcileLines runs before any stock is touched on approval.
	reconcileLines(ctx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error
	// lineEffect returns the ledger entry a line produces on approval; ok is false for none.
	lineEffect(voucher *model.Voucher, line *model.VoucherLine) (entry Entry, ok bool)
	approved(voucher *model.Voucher)
}

func kindFor(k model.VoucherKind, reconciler *ReturnReconciler) (voucherKind, error) {
	switch k {
	case model.VoucherKindIssue:
		return issueKind{}, nil
	case model.VoucherKindReturn:
		return returnKind{reconciler: reconciler}, nil
	case model.VoucherKindPurchaseOrder:
		return purchaseOrderKind{}, nil
	}
	return nil, &ValidationError{Field: "kind", Details: fmt.Sprintf("unknown voucher kind %q", k)}
}

func noSourceLines(voucher *model.Voucher) error {
	for _, line := range voucher.Lines {
		if line.SourceLineID != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("lines[%d].source_line_id", line.LineNo-1),
				Details: fmt.Sprintf("not allowed on %s vouchers", voucher.Kind),
			}
		}
	}
	return nil
}

type issueKind struct{}

func (issueKind) kind() model.VoucherKind { return model.VoucherKindIssue }
func (issueKind) numberPrefix() string    { return "ISS" }
func (issueKind) partnerType() string     { return model.PartnerTypeCustomer }

func (issueKind) checkDraft(_ context.Context, _ repository.UnitOfWork, voucher *model.Voucher) error {
	return noSourceLines(voucher)
}

func (issueKind) reconcileLines(context.Context, repository.UnitOfWork, *model.Voucher) error {
	return nil
}

func (issueKind) lineEffect(voucher *model.Voucher, line *model.VoucherLine) (Entry, bool) {
	return Entry{
		Key:           model.StockKey{ProductID: line.ProductID, BranchID: voucher.BranchID},
		Type:          model.MovementIssue,
		Qty:           line.Quantity,
		ReferenceType: model.RefTypeIssueVoucher,
		ReferenceID:   voucher.ID,
		Note:          voucher.VoucherNumber,
	}, true
}

func (issueKind) approved(*model.Voucher) {}

type returnKind struct {
	reconciler *ReturnReconciler
}

func (returnKind) kind() model.VoucherKind { return model.VoucherKindReturn }
func (returnKind) numberPrefix() string    { return "RET" }
func (returnKind) partnerType() string     { return model.PartnerTypeCustomer }

// checkDraft ties every line to an approved issue line of the same branch and
// product. The remaining quantity check here is advisory; approval re-checks it.
func (k returnKind) checkDraft(ctx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error {
	seen := make(map[string]struct{})
	for i := range voucher.Lines {
		line := &voucher.Lines[i]
		field := fmt.Sprintf("lines[%d].source_line_id", i)
		if line.SourceLineID == nil {
			return &ValidationError{Field: field, Details: "is required on return vouchers"}
		}
		if _, dup := seen[line.SourceLineID.String()]; dup {
			return &ValidationError{Field: field, Details: "issue line referenced more than once"}
		}
		seen[line.SourceLineID.String()] = struct{}{}

		issueLine, err := uow.Vouchers().FindLine(ctx, *line.SourceLineID)
		if err != nil {
			return notFound(err, "issue line", *line.SourceLineID)
		}
		issue, err := uow.Vouchers().FindByID(ctx, issueLine.VoucherID)
		if err != nil {
			return notFound(err, "issue voucher", issueLine.VoucherID)
		}
		switch {
		case issue.Kind != model.VoucherKindIssue:
			return &ValidationError{Field: field, Details: "does not belong to an issue voucher"}
		case issue.Status != model.VoucherStatusApproved:
			return &ValidationError{Field: field, Details: "issue voucher is not approved"}
		case issue.BranchID != voucher.BranchID:
			return &ValidationError{Field: field, Details: "issue voucher belongs to another branch"}
		case issueLine.ProductID != line.ProductID:
			return &ValidationError{Field: field, Details: "product differs from the issue line"}
		}

		remaining, err := k.reconciler.remaining(ctx, uow, issueLine, nil)
		if err != nil {
			return err
		}
		if line.Quantity.GreaterThan(remaining) {
			return &ExcessReturnError{IssueLineID: issueLine.ID, Requested: line.Quantity, Remaining: remaining}
		}
	}
	return nil
}

func (k returnKind) reconcileLines(ctx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error {
	sources, err := k.reconciler.LockSources(ctx, uow, voucher)
	if err != nil {
		return err
	}
	for i := range voucher.Lines {
		line := &voucher.Lines[i]
		if err := k.reconciler.Validate(ctx, uow, sources[*line.SourceLineID], line); err != nil {
			return err
		}
	}
	return nil
}

func (returnKind) lineEffect(voucher *model.Voucher, line *model.VoucherLine) (Entry, bool) {
	return Entry{
		Key:           model.StockKey{ProductID: line.ProductID, BranchID: voucher.BranchID},
		Type:          model.MovementReturn,
		Qty:           line.Quantity,
		ReferenceType: model.RefTypeReturnVoucher,
		ReferenceID:   voucher.ID,
		Note:          voucher.VoucherNumber,
	}, true
}

func (returnKind) approved(*model.Voucher) {}

// purchaseOrderKind defers every stock effect to Receive
type purchaseOrderKind struct{}

func (purchaseOrderKind) kind() model.VoucherKind { return model.VoucherKindPurchaseOrder }
func (purchaseOrderKind) numberPrefix() string    { return "PO" }
func (purchaseOrderKind) partnerType() string     { return model.PartnerTypeSupplier }

func (purchaseOrderKind) checkDraft(_ context.Context, _ repository.UnitOfWork, voucher *model.Voucher) error {
	return noSourceLines(voucher)
}

func (purchaseOrderKind) reconcileLines(context.Context, repository.UnitOfWork, *model.Voucher) error {
	return nil
}

func (purchaseOrderKind) lineEffect(*model.Voucher, *model.VoucherLine) (Entry, bool) {
	return Entry{}, false
}

func (purchaseOrderKind) approved(voucher *model.Voucher) {
	voucher.ReceivingStatus = model.ReceivingNotReceived
}

// receivingStatus derives the purchase order sub-state from its lines
func receivingStatus(lines []model.VoucherLine) model.ReceivingStatus {
	some, all := false, true
	for _, line := range lines {
		if line.ReceivedQuantity.IsPositive() {
			some = true
		}
		if line.ReceivedQuantity.LessThan(line.Quantity) {
			all = false
		}
	}
	switch {
	case all:
		return model.ReceivingFullyReceived
	case some:
		return model.ReceivingPartiallyReceived
	}
	return model.ReceivingNotReceived
}
