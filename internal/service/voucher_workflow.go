package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockledger/internal/lock"
	"stockledger/internal/model"
	"stockledger/internal/repository"
	ws "stockledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// --- DTOs ---

type VoucherLineRequest struct {
	ProductID    uuid.UUID       `json:"product_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity" binding:"required,gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price" binding:"gte=0"`
	SourceLineID *uuid.UUID      `json:"source_line_id"`
}

type CreateVoucherRequest struct {
	BranchID       uuid.UUID            `json:"branch_id" binding:"required"`
	PartnerID      uuid.UUID            `json:"partner_id" binding:"required"`
	VoucherNumber  string               `json:"voucher_number"`
	VoucherDate    time.Time            `json:"voucher_date"`
	DiscountAmount decimal.Decimal      `json:"discount_amount" binding:"gte=0"`
	TaxRate        decimal.Decimal      `json:"tax_rate" binding:"gte=0,lte=1"`
	Note           string               `json:"note"`
	Lines          []VoucherLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type ReceiveLineRequest struct {
	OrderLineID uuid.UUID       `json:"order_line_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required,gt=0"`
}

type ReceiveRequest struct {
	Lines []ReceiveLineRequest `json:"lines" binding:"required,min=1,dive"`
	Note  string               `json:"note"`
}

type ReceiveResult struct {
	Receipt   model.PurchaseReceipt `json:"receipt"`
	Voucher   model.Voucher         `json:"voucher"`
	Movements []model.Movement      `json:"movements"`
}

type VoucherFilter struct {
	BranchID *uuid.UUID
	Kind     model.VoucherKind
	Status   model.VoucherStatus
	Page     int
	Limit    int
}

// Totals are derived from the lines for display; stock never reads them
type Totals struct {
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// ComputeTotals: subtotal = sum(qty*price), tax = (subtotal-discount)*rate, rounded to 4 places
func ComputeTotals(lines []VoucherLineRequest, discount, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Quantity.Mul(l.UnitPrice))
	}
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(taxRate)
	return Totals{
		Subtotal:  subtotal.Round(4),
		Discount:  discount.Round(4),
		TaxAmount: tax.Round(4),
		Total:     taxable.Add(tax).Round(4),
	}
}

// VoucherWorkflow drives issue, return and purchase order vouchers through
// draft -> approved | cancelled. Approval is the only point where stock moves,
// except purchase order receipts.
type VoucherWorkflow struct {
	opts       Options
	ledger     *StockLedger
	reconciler *ReturnReconciler
	locker     lock.Locker
	lockTTL    time.Duration
}

func NewVoucherWorkflow(opts Options, ledger *StockLedger, reconciler *ReturnReconciler, locker lock.Locker, lockTTL time.Duration) *VoucherWorkflow {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &VoucherWorkflow{
		opts:       opts.withDefaults(),
		ledger:     ledger,
		reconciler: reconciler,
		locker:     locker,
		lockTTL:    lockTTL,
	}
}

func draftRules() []Rule[CreateVoucherRequest] {
	lines := func(r CreateVoucherRequest) []VoucherLineRequest { return r.Lines }
	return []Rule[CreateVoucherRequest]{
		requireID("branch_id", func(r CreateVoucherRequest) uuid.UUID { return r.BranchID }),
		requireID("partner_id", func(r CreateVoucherRequest) uuid.UUID { return r.PartnerID }),
		notEmpty("lines", lines),
		each("lines", lines,
			requireID("product_id", func(l VoucherLineRequest) uuid.UUID { return l.ProductID }),
			positiveQty("quantity", func(l VoucherLineRequest) decimal.Decimal { return l.Quantity }),
			nonNegative("unit_price", func(l VoucherLineRequest) decimal.Decimal { return l.UnitPrice }),
		),
		nonNegative("discount_amount", func(r CreateVoucherRequest) decimal.Decimal { return r.DiscountAmount }),
		nonNegative("tax_rate", func(r CreateVoucherRequest) decimal.Decimal { return r.TaxRate }),
		func(_ context.Context, r CreateVoucherRequest) error {
			if r.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
				return &ValidationError{Field: "tax_rate", Details: "must be a fraction between 0 and 1"}
			}
			return nil
		},
		func(_ context.Context, r CreateVoucherRequest) error {
			subtotal := ComputeTotals(r.Lines, decimal.Zero, decimal.Zero).Subtotal
			if r.DiscountAmount.GreaterThan(subtotal) {
				return &ValidationError{Field: "discount_amount", Details: "exceeds subtotal"}
			}
			return nil
		},
	}
}

// CreateDraft stores a voucher without any stock effect
func (w *VoucherWorkflow) CreateDraft(ctx context.Context, actor model.Actor, kind model.VoucherKind, req CreateVoucherRequest) (*model.Voucher, error) {
	behaviour, err := kindFor(kind, w.reconciler)
	if err != nil {
		return nil, err
	}
	if err := Validate(ctx, req, draftRules()...); err != nil {
		return nil, err
	}
	if err := requireMutate(ctx, w.opts.Guard, actor, req.BranchID); err != nil {
		return nil, err
	}

	date := req.VoucherDate
	if date.IsZero() {
		date = w.opts.Clock()
	}
	totals := ComputeTotals(req.Lines, req.DiscountAmount, req.TaxRate)

	voucher := model.Voucher{
		ID:             uuid.New(),
		Kind:           behaviour.kind(),
		VoucherNumber:  req.VoucherNumber,
		BranchID:       req.BranchID,
		PartnerID:      req.PartnerID,
		VoucherDate:    date,
		Status:         model.VoucherStatusDraft,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.Discount,
		TaxRate:        req.TaxRate,
		TaxAmount:      totals.TaxAmount,
		Total:          totals.Total,
		Note:           req.Note,
		CreatedBy:      actor.UserID,
	}
	for i, l := range req.Lines {
		voucher.Lines = append(voucher.Lines, model.VoucherLine{
			ID:           uuid.New(),
			VoucherID:    voucher.ID,
			LineNo:       i + 1,
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			SourceLineID: l.SourceLineID,
		})
	}

	err = w.opts.Tx.RunInTx(ctx, func(txCtx context.Context, uow repository.UnitOfWork) error {
		if _, err := uow.Branches().FindByID(txCtx, req.BranchID); err != nil {
			return notFound(err, "branch", req.BranchID)
		}
		partner, err := uow.Partners().FindByID(txCtx, req.PartnerID)
		if err != nil {
			return notFound(err, "partner", req.PartnerID)
		}
		if !partner.IsActive {
			return &ValidationError{Field: "partner_id", Details: "partner is inactive"}
		}
		if !partner.Is(behaviour.partnerType()) {
			return &ValidationError{Field: "partner_id", Details: fmt.Sprintf("partner is not a %s", behaviour.partnerType())}
		}

		for i, line := range voucher.Lines {
			product, err := uow.Products().FindByID(txCtx, line.ProductID)
			if err != nil {
				return notFound(err, "product", line.ProductID)
			}
			if err := wholeQuantity(fmt.Sprintf("lines[%d].quantity", i), product.AllowsFraction, line.Quantity); err != nil {
				return err
			}
		}
		if err := behaviour.checkDraft(txCtx, uow, &voucher); err != nil {
			return err
		}

		if voucher.VoucherNumber == "" {
			prefix := fmt.Sprintf("%s-%s-", behaviour.numberPrefix(), date.Format("20060102"))
			number, err := nextFreeNumber(txCtx, uow.Vouchers(), voucher.BranchID, voucher.Kind, prefix)
			if err != nil {
				return fmt.Errorf("failed to generate voucher number: %w", err)
			}
			voucher.VoucherNumber = number
		} else {
			exists, err := uow.Vouchers().NumberExists(txCtx, voucher.BranchID, voucher.Kind, voucher.VoucherNumber)
			if err != nil {
				return fmt.Errorf("failed to check voucher number: %w", err)
			}
			if exists {
				return &ValidationError{Field: "voucher_number", Details: fmt.Sprintf("%s already exists", voucher.VoucherNumber)}
			}
		}

		if err := uow.Vouchers().Create(txCtx, &voucher); err != nil {
			if errors.Is(err, repository.ErrDuplicateVoucherNumber) {
				return &ValidationError{Field: "voucher_number", Details: fmt.Sprintf("%s already exists", voucher.VoucherNumber)}
			}
			return fmt.Errorf("failed to create voucher: %w", err)
		}
		return writeAudit(txCtx, uow, actor, model.ActionCreateVoucher, voucher.ID.String(), voucher.VoucherNumber, req)
	})
	if err != nil {
		logOutcome(w.opts.Log, "voucher_workflow", "CreateDraft", err, logrus.Fields{"kind": kind, "branch_id": req.BranchID})
		return nil, err
	}

	w.opts.Log.WithFields(logrus.Fields{
		"voucher_id":     voucher.ID,
		"voucher_number": voucher.VoucherNumber,
		"kind":           voucher.Kind,
		"branch_id":      voucher.BranchID,
	}).Info("voucher draft created")
	return &voucher, nil
}

// maxNumberAttempts bounds the walk past hand-entered numbers
const maxNumberAttempts = 100

// nextFreeNumber takes the repository's next sequence and steps past any
// number that is already in use for the branch and kind.
func nextFreeNumber(ctx context.Context, vouchers repository.VoucherRepository, branchID uuid.UUID, kind model.VoucherKind, prefix string) (string, error) {
	number, err := vouchers.NextNumber(ctx, branchID, kind, prefix)
	if err != nil {
		return "", err
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil {
		return "", fmt.Errorf("unexpected voucher number %q: %w", number, err)
	}
	for range maxNumberAttempts {
		exists, err := vouchers.NumberExists(ctx, branchID, kind, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
		seq++
		number = fmt.Sprintf("%s%05d", prefix, seq)
	}
	return "", fmt.Errorf("no free voucher number for %s after %d attempts", prefix, maxNumberAttempts)
}

func (w *VoucherWorkflow) Get(ctx context.Context, id uuid.UUID) (*model.Voucher, error) {
	voucher, err := w.opts.Tx.Reader().Vouchers().FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "voucher", id)
	}
	return voucher, nil
}

func (w *VoucherWorkflow) List(ctx context.Context, filter VoucherFilter) ([]model.Voucher, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, 0, &ValidationError{Field: "kind", Details: fmt.Sprintf("unknown voucher kind %q", filter.Kind)}
	}
	return w.opts.Tx.Reader().Vouchers().List(ctx, repository.VoucherFilter{
		BranchID: filter.BranchID,
		Kind:     filter.Kind,
		Status:   filter.Status,
		Page:     filter.Page,
		Limit:    filter.Limit,
	})
}

// RemainingReturnable exposes the reconciler read path
func (w *VoucherWorkflow) RemainingReturnable(ctx context.Context, issueLineID uuid.UUID, excludeLineID *uuid.UUID) (decimal.Decimal, error) {
	return w.reconciler.RemainingReturnable(ctx, issueLineID, excludeLineID)
}

// mutate authorizes the actor on the voucher's branch, serializes on the voucher
// lock and runs fn with the header row locked.
func (w *VoucherWorkflow) mutate(ctx context.Context, actor model.Actor, id uuid.UUID, fn func(ctx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error) error {
	current, err := w.opts.Tx.Reader().Vouchers().FindByID(ctx, id)
	if err != nil {
		return notFound(err, "voucher", id)
	}
	if err := requireMutate(ctx, w.opts.Guard, actor, current.BranchID); err != nil {
		return err
	}

	lease, err := w.locker.Obtain(ctx, "voucher:"+id.String(), w.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return &BusyError{Resource: "voucher " + id.String(), Err: err}
		}
		return fmt.Errorf("failed to obtain voucher lock: %w", err)
	}
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			w.opts.Log.WithError(releaseErr).WithField("voucher_id", id).Warn("failed to release voucher lock")
		}
	}()

	return w.opts.Tx.RunInTx(ctx, func(txCtx context.Context, uow repository.UnitOfWork) error {
		voucher, err := uow.Vouchers().FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFound(err, "voucher", id)
		}
		return fn(txCtx, uow, voucher)
	})
}

// Approve applies the voucher's stock effect exactly once. Any failing line
// aborts the whole approval.
func (w *VoucherWorkflow) Approve(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Voucher, error) {
	var approved *model.Voucher
	var movements []model.Movement

	err := w.mutate(ctx, actor, id, func(txCtx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error {
		switch voucher.Status {
		case model.VoucherStatusApproved:
			return &AlreadyApprovedError{VoucherID: voucher.ID}
		case model.VoucherStatusCancelled:
			return &InvalidTransitionError{VoucherID: voucher.ID, From: string(voucher.Status), Action: "approve"}
		}

		behaviour, err := kindFor(voucher.Kind, w.reconciler)
		if err != nil {
			return err
		}
		if err := behaviour.reconcileLines(txCtx, uow, voucher); err != nil {
			return err
		}

		var entries []Entry
		for i := range voucher.Lines {
			if entry, ok := behaviour.lineEffect(voucher, &voucher.Lines[i]); ok {
				entries = append(entries, entry)
			}
		}
		movements, err = w.ledger.Apply(txCtx, uow, actor, entries)
		if err != nil {
			return err
		}

		now := w.opts.Clock()
		approver := actor.UserID
		voucher.Status = model.VoucherStatusApproved
		voucher.ApprovedBy = &approver
		voucher.ApprovedAt = &now
		behaviour.approved(voucher)
		if err := uow.Vouchers().Update(txCtx, voucher); err != nil {
			return fmt.Errorf("failed to update voucher: %w", err)
		}

		approved = voucher
		return writeAudit(txCtx, uow, actor, model.ActionApproveVoucher, voucher.ID.String(), voucher.VoucherNumber, map[string]interface{}{
			"kind":      voucher.Kind,
			"branch_id": voucher.BranchID,
			"lines":     len(voucher.Lines),
		})
	})
	if err != nil {
		logOutcome(w.opts.Log, "voucher_workflow", "Approve", err, logrus.Fields{"voucher_id": id})
		return nil, err
	}

	w.opts.Log.WithFields(logrus.Fields{
		"voucher_id":     approved.ID,
		"voucher_number": approved.VoucherNumber,
		"kind":           approved.Kind,
		"movements":      len(movements),
	}).Info("voucher approved")
	w.publishStatus(approved)
	publishAll(w.opts.Notifier, stockEvents(movements))
	return approved, nil
}

// Cancel closes a draft without stock effect
func (w *VoucherWorkflow) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Voucher, error) {
	var cancelled *model.Voucher
	err := w.mutate(ctx, actor, id, func(txCtx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error {
		if voucher.Status != model.VoucherStatusDraft {
			return &InvalidTransitionError{VoucherID: voucher.ID, From: string(voucher.Status), Action: "cancel"}
		}

		now := w.opts.Clock()
		by := actor.UserID
		voucher.Status = model.VoucherStatusCancelled
		voucher.CancelledBy = &by
		voucher.CancelledAt = &now
		if err := uow.Vouchers().Update(txCtx, voucher); err != nil {
			return fmt.Errorf("failed to update voucher: %w", err)
		}

		cancelled = voucher
		return writeAudit(txCtx, uow, actor, model.ActionCancelVoucher, voucher.ID.String(), voucher.VoucherNumber, nil)
	})
	if err != nil {
		logOutcome(w.opts.Log, "voucher_workflow", "Cancel", err, logrus.Fields{"voucher_id": id})
		return nil, err
	}

	w.opts.Log.WithFields(logrus.Fields{"voucher_id": id, "voucher_number": cancelled.VoucherNumber}).Info("voucher cancelled")
	w.publishStatus(cancelled)
	return cancelled, nil
}

// DeleteDraft removes a draft and its lines
func (w *VoucherWorkflow) DeleteDraft(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	err := w.mutate(ctx, actor, id, func(txCtx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error {
		if voucher.Status != model.VoucherStatusDraft {
			return &InvalidTransitionError{VoucherID: voucher.ID, From: string(voucher.Status), Action: "delete"}
		}
		if err := uow.Vouchers().Delete(txCtx, voucher.ID); err != nil {
			return fmt.Errorf("failed to delete voucher: %w", err)
		}
		return writeAudit(txCtx, uow, actor, model.ActionDeleteVoucher, voucher.ID.String(), voucher.VoucherNumber, nil)
	})
	if err != nil {
		logOutcome(w.opts.Log, "voucher_workflow", "DeleteDraft", err, logrus.Fields{"voucher_id": id})
		return err
	}
	w.opts.Log.WithField("voucher_id", id).Info("voucher draft deleted")
	return nil
}

// Receive books a delivery against an approved purchase order. Each line may
// receive at most its ordered minus already received quantity.
func (w *VoucherWorkflow) Receive(ctx context.Context, actor model.Actor, id uuid.UUID, req ReceiveRequest) (ReceiveResult, error) {
	lines := func(r ReceiveRequest) []ReceiveLineRequest { return r.Lines }
	if err := Validate(ctx, req,
		notEmpty("lines", lines),
		each("lines", lines,
			requireID("order_line_id", func(l ReceiveLineRequest) uuid.UUID { return l.OrderLineID }),
			positiveQty("quantity", func(l ReceiveLineRequest) decimal.Decimal { return l.Quantity }),
		),
		distinct("lines", lines, func(l ReceiveLineRequest) uuid.UUID { return l.OrderLineID }),
	); err != nil {
		return ReceiveResult{}, err
	}

	var result ReceiveResult
	err := w.mutate(ctx, actor, id, func(txCtx context.Context, uow repository.UnitOfWork, voucher *model.Voucher) error {
		if voucher.Kind != model.VoucherKindPurchaseOrder {
			return &ValidationError{Field: "voucher_id", Details: "only purchase orders can be received"}
		}
		if voucher.Status != model.VoucherStatusApproved {
			return &InvalidTransitionError{VoucherID: voucher.ID, From: string(voucher.Status), Action: "receive"}
		}

		receipt := model.PurchaseReceipt{
			ID:         uuid.New(),
			VoucherID:  voucher.ID,
			ReceivedAt: w.opts.Clock(),
			ReceivedBy: actor.UserID,
			Note:       req.Note,
		}
		entries := make([]Entry, 0, len(req.Lines))
		for i, r := range req.Lines {
			line := voucher.Line(r.OrderLineID)
			if line == nil {
				return &ValidationError{Field: fmt.Sprintf("lines[%d].order_line_id", i), Details: "not a line of this purchase order"}
			}
			if remaining := line.Outstanding(); r.Quantity.GreaterThan(remaining) {
				return &OverReceiveError{OrderLineID: line.ID, Requested: r.Quantity, Remaining: remaining}
			}
			line.ReceivedQuantity = line.ReceivedQuantity.Add(r.Quantity)

			receipt.Lines = append(receipt.Lines, model.PurchaseReceiptLine{
				ID:          uuid.New(),
				ReceiptID:   receipt.ID,
				OrderLineID: line.ID,
				ProductID:   line.ProductID,
				Quantity:    r.Quantity,
			})
			entries = append(entries, Entry{
				Key:           model.StockKey{ProductID: line.ProductID, BranchID: voucher.BranchID},
				Type:          model.MovementAdd,
				Qty:           r.Quantity,
				ReferenceType: model.RefTypePurchaseReceipt,
				ReferenceID:   receipt.ID,
				Note:          voucher.VoucherNumber,
			})
		}

		movements, err := w.ledger.Apply(txCtx, uow, actor, entries)
		if err != nil {
			return err
		}
		if err := uow.Vouchers().CreateReceipt(txCtx, &receipt); err != nil {
			return fmt.Errorf("failed to create purchase receipt: %w", err)
		}
		for _, r := range req.Lines {
			line := voucher.Line(r.OrderLineID)
			if err := uow.Vouchers().UpdateLineReceived(txCtx, line.ID, line.ReceivedQuantity); err != nil {
				return fmt.Errorf("failed to update received quantity: %w", err)
			}
		}

		voucher.ReceivingStatus = receivingStatus(voucher.Lines)
		if err := uow.Vouchers().Update(txCtx, voucher); err != nil {
			return fmt.Errorf("failed to update voucher: %w", err)
		}

		result = ReceiveResult{Receipt: receipt, Voucher: *voucher, Movements: movements}
		return writeAudit(txCtx, uow, actor, model.ActionReceivePurchase, voucher.ID.String(), voucher.VoucherNumber, req)
	})
	if err != nil {
		logOutcome(w.opts.Log, "voucher_workflow", "Receive", err, logrus.Fields{"voucher_id": id})
		return ReceiveResult{}, err
	}

	w.opts.Log.WithFields(logrus.Fields{
		"voucher_id":       id,
		"receipt_id":       result.Receipt.ID,
		"receiving_status": result.Voucher.ReceivingStatus,
	}).Info("purchase order received")
	w.publishStatus(&result.Voucher)
	publishAll(w.opts.Notifier, stockEvents(result.Movements))
	return result, nil
}

func (w *VoucherWorkflow) publishStatus(v *model.Voucher) {
	w.opts.Notifier.Publish(ws.Event{
		Event: "voucher_status_changed",
		Data: map[string]interface{}{
			"voucher_id":       v.ID.String(),
			"voucher_number":   v.VoucherNumber,
			"kind":             v.Kind,
			"branch_id":        v.BranchID.String(),
			"status":           v.Status,
			"receiving_status": v.ReceivingStatus,
		},
	})
}
