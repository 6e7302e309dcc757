package service

import (
	"context"
	"errors"
	"fmt"

	"stockledger/internal/logger"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Entry is one quantity change requested from the ledger. Qty is a positive
// magnitude; the direction comes from Type, or from Outgoing for count adjustments.
type Entry struct {
	Key           model.StockKey
	Type          model.MovementType
	Qty           decimal.Decimal
	Outgoing      bool
	ReferenceType string
	ReferenceID   uuid.UUID
	CorrelationID *uuid.UUID
	Note          string
	// ShortMessage replaces the default InsufficientStockError text.
	ShortMessage string
}

func (e Entry) outgoing() bool {
	if outgoing, fixed := e.Type.FixedDirection(); fixed {
		return outgoing
	}
	return e.Outgoing
}

// Delta is the signed form accepted by ApplyDelta
type Delta struct {
	Key           model.StockKey
	Type          model.MovementType
	Signed        decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
	Note          string
}

type AddStockRequest struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	BranchID  uuid.UUID       `json:"branch_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required,gt=0"`
	Note      string          `json:"note"`
}

type CountLineRequest struct {
	ProductID  uuid.UUID       `json:"product_id" binding:"required"`
	CountedQty decimal.Decimal `json:"counted_qty" binding:"gte=0"`
}

type CountStockRequest struct {
	BranchID uuid.UUID          `json:"branch_id" binding:"required"`
	Lines    []CountLineRequest `json:"lines" binding:"required,min=1,dive"`
	Note     string             `json:"note"`
}

type CountResult struct {
	CountID   uuid.UUID        `json:"count_id"`
	Movements []model.Movement `json:"movements"`
}

type ReconcileResult struct {
	ProductID    uuid.UUID       `json:"product_id"`
	BranchID     uuid.UUID       `json:"branch_id"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MovementSum  decimal.Decimal `json:"movement_sum"`
	Consistent   bool            `json:"consistent"`
}

// StockLedger owns the per (product, branch) balances. Every change goes
// through Apply, which pairs it with a movement in the same unit of work.
type StockLedger struct {
	opts     Options
	recorder *MovementRecorder
}

func NewStockLedger(opts Options, recorder *MovementRecorder) *StockLedger {
	return &StockLedger{opts: opts.withDefaults(), recorder: recorder}
}

// Apply locks every key in global order, applies the entries in sequence and
// records one movement per entry. Any failure leaves uow to be rolled back.
func (l *StockLedger) Apply(ctx context.Context, uow repository.UnitOfWork, actor model.Actor, entries []Entry) ([]model.Movement, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if err := l.checkEntries(ctx, uow, entries); err != nil {
		return nil, err
	}

	keys := make([]model.StockKey, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	balances, err := uow.Balances().LockForUpdate(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock balances: %w", err)
	}

	now := l.opts.Clock()
	movements := make([]model.Movement, 0, len(entries))
	for _, e := range entries {
		balance := balances[e.Key]
		if balance == nil {
			return nil, fmt.Errorf("stock balance %s/%s was not locked", e.Key.ProductID, e.Key.BranchID)
		}

		outgoing := e.outgoing()
		next := balance.CurrentStock.Add(e.Qty)
		if outgoing {
			next = balance.CurrentStock.Sub(e.Qty)
		}
		if next.IsNegative() {
			return nil, &InsufficientStockError{
				ProductID: e.Key.ProductID,
				BranchID:  e.Key.BranchID,
				Requested: e.Qty,
				Available: balance.CurrentStock,
				Message:   e.ShortMessage,
			}
		}
		balance.CurrentStock = next

		m := model.Movement{
			ProductID:     e.Key.ProductID,
			BranchID:      e.Key.BranchID,
			Type:          e.Type,
			Qty:           e.Qty,
			IsOutgoing:    outgoing,
			StockAfter:    next,
			ReferenceType: e.ReferenceType,
			ReferenceID:   e.ReferenceID,
			CorrelationID: e.CorrelationID,
			Note:          e.Note,
			ActorID:       actor.UserID,
			OccurredAt:    now,
		}
		if _, err := l.recorder.Append(ctx, uow, &m); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}

	for _, k := range repository.SortKeys(keys) {
		if err := uow.Balances().Save(ctx, balances[k]); err != nil {
			return nil, fmt.Errorf("failed to update stock balance: %w", err)
		}
	}
	return movements, nil
}

// ApplyDelta is Apply for a single signed change; it returns the new balance
func (l *StockLedger) ApplyDelta(ctx context.Context, uow repository.UnitOfWork, actor model.Actor, d Delta) (decimal.Decimal, error) {
	entry := Entry{
		Key:           d.Key,
		Type:          d.Type,
		Qty:           d.Signed.Abs(),
		Outgoing:      d.Signed.IsNegative(),
		ReferenceType: d.ReferenceType,
		ReferenceID:   d.ReferenceID,
		Note:          d.Note,
	}
	if outgoing, fixed := d.Type.FixedDirection(); fixed && outgoing != d.Signed.IsNegative() {
		return decimal.Zero, &ValidationError{Field: "qty", Details: fmt.Sprintf("sign does not match movement type %s", d.Type)}
	}
	movements, err := l.Apply(ctx, uow, actor, []Entry{entry})
	if err != nil {
		return decimal.Zero, err
	}
	return movements[0].StockAfter, nil
}

// checkEntries resolves the referenced products and branches and validates quantities
func (l *StockLedger) checkEntries(ctx context.Context, uow repository.UnitOfWork, entries []Entry) error {
	products := make(map[uuid.UUID]*model.Product)
	branches := make(map[uuid.UUID]struct{})
	for _, e := range entries {
		if !e.Type.Valid() {
			return &ValidationError{Field: "movement_type", Details: fmt.Sprintf("unknown type %q", e.Type)}
		}
		if !e.Qty.IsPositive() {
			return &ValidationError{Field: "qty", Details: "must be greater than 0"}
		}

		product, ok := products[e.Key.ProductID]
		if !ok {
			p, err := uow.Products().FindByID(ctx, e.Key.ProductID)
			if err != nil {
				return notFound(err, "product", e.Key.ProductID)
			}
			product = p
			products[p.ID] = p
		}
		if err := wholeQuantity("qty", product.AllowsFraction, e.Qty); err != nil {
			return err
		}

		if _, ok := branches[e.Key.BranchID]; !ok {
			if _, err := uow.Branches().FindByID(ctx, e.Key.BranchID); err != nil {
				return notFound(err, "branch", e.Key.BranchID)
			}
			branches[e.Key.BranchID] = struct{}{}
		}
	}
	return nil
}

// CurrentStock returns the balance, zero when no movement has reached the branch yet
func (l *StockLedger) CurrentStock(ctx context.Context, productID, branchID uuid.UUID) (decimal.Decimal, error) {
	reader := l.opts.Tx.Reader()
	if _, err := reader.Products().FindByID(ctx, productID); err != nil {
		return decimal.Zero, notFound(err, "product", productID)
	}
	if _, err := reader.Branches().FindByID(ctx, branchID); err != nil {
		return decimal.Zero, notFound(err, "branch", branchID)
	}

	balance, err := reader.Balances().Find(ctx, model.StockKey{ProductID: productID, BranchID: branchID})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load stock balance: %w", err)
	}
	return balance.CurrentStock, nil
}

// ListBalances pages through the balances held at a branch
func (l *StockLedger) ListBalances(ctx context.Context, branchID uuid.UUID, page, limit int) ([]model.StockBalance, int64, error) {
	reader := l.opts.Tx.Reader()
	if _, err := reader.Branches().FindByID(ctx, branchID); err != nil {
		return nil, 0, notFound(err, "branch", branchID)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return reader.Balances().ListByBranch(ctx, branchID, page, limit)
}

// AddStock books opening or manual stock with an ADD movement
func (l *StockLedger) AddStock(ctx context.Context, actor model.Actor, req AddStockRequest) (model.Movement, error) {
	if err := Validate(ctx, req,
		requireID("product_id", func(r AddStockRequest) uuid.UUID { return r.ProductID }),
		requireID("branch_id", func(r AddStockRequest) uuid.UUID { return r.BranchID }),
		positiveQty("qty", func(r AddStockRequest) decimal.Decimal { return r.Qty }),
	); err != nil {
		return model.Movement{}, err
	}
	if err := requireMutate(ctx, l.opts.Guard, actor, req.BranchID); err != nil {
		return model.Movement{}, err
	}

	additionID := uuid.New()
	var movements []model.Movement
	err := l.opts.Tx.RunInTx(ctx, func(txCtx context.Context, uow repository.UnitOfWork) error {
		var err error
		movements, err = l.Apply(txCtx, uow, actor, []Entry{{
			Key:           model.StockKey{ProductID: req.ProductID, BranchID: req.BranchID},
			Type:          model.MovementAdd,
			Qty:           req.Qty,
			ReferenceType: model.RefTypeStockAddition,
			ReferenceID:   additionID,
			Note:          req.Note,
		}})
		if err != nil {
			return err
		}
		return writeAudit(txCtx, uow, actor, model.ActionAddStock, additionID.String(), req.ProductID.String(), req)
	})
	if err != nil {
		l.logRejected("AddStock", err, logrus.Fields{"product_id": req.ProductID, "branch_id": req.BranchID})
		return model.Movement{}, err
	}

	l.opts.Log.WithFields(logrus.Fields{
		"product_id": req.ProductID,
		"branch_id":  req.BranchID,
		"qty":        req.Qty.String(),
	}).Info("stock added")
	publishAll(l.opts.Notifier, stockEvents(movements))
	return movements[0], nil
}

// CountStock sets each counted balance to the physical count, recording the
// difference as a COUNT_ADJUSTMENT. Lines that already match produce no movement.
func (l *StockLedger) CountStock(ctx context.Context, actor model.Actor, req CountStockRequest) (CountResult, error) {
	if err := Validate(ctx, req,
		requireID("branch_id", func(r CountStockRequest) uuid.UUID { return r.BranchID }),
		notEmpty("lines", func(r CountStockRequest) []CountLineRequest { return r.Lines }),
		each("lines", func(r CountStockRequest) []CountLineRequest { return r.Lines },
			requireID("product_id", func(c CountLineRequest) uuid.UUID { return c.ProductID }),
			nonNegative("counted_qty", func(c CountLineRequest) decimal.Decimal { return c.CountedQty }),
		),
		distinct("lines", func(r CountStockRequest) []CountLineRequest { return r.Lines },
			func(c CountLineRequest) uuid.UUID { return c.ProductID }),
	); err != nil {
		return CountResult{}, err
	}
	if err := requireMutate(ctx, l.opts.Guard, actor, req.BranchID); err != nil {
		return CountResult{}, err
	}

	result := CountResult{CountID: uuid.New(), Movements: []model.Movement{}}
	err := l.opts.Tx.RunInTx(ctx, func(txCtx context.Context, uow repository.UnitOfWork) error {
		if _, err := uow.Branches().FindByID(txCtx, req.BranchID); err != nil {
			return notFound(err, "branch", req.BranchID)
		}
		keys := make([]model.StockKey, 0, len(req.Lines))
		for _, line := range req.Lines {
			product, err := uow.Products().FindByID(txCtx, line.ProductID)
			if err != nil {
				return notFound(err, "product", line.ProductID)
			}
			if err := wholeQuantity("counted_qty", product.AllowsFraction, line.CountedQty); err != nil {
				return err
			}
			keys = append(keys, model.StockKey{ProductID: line.ProductID, BranchID: req.BranchID})
		}

		balances, err := uow.Balances().LockForUpdate(txCtx, keys)
		if err != nil {
			return fmt.Errorf("failed to lock stock balances: %w", err)
		}

		var entries []Entry
		for i, line := range req.Lines {
			diff := line.CountedQty.Sub(balances[keys[i]].CurrentStock)
			if diff.IsZero() {
				continue
			}
			entries = append(entries, Entry{
				Key:           keys[i],
				Type:          model.MovementCountAdjustment,
				Qty:           diff.Abs(),
				Outgoing:      diff.IsNegative(),
				ReferenceType: model.RefTypeStockCount,
				ReferenceID:   result.CountID,
				Note:          req.Note,
			})
		}

		movements, err := l.Apply(txCtx, uow, actor, entries)
		if err != nil {
			return err
		}
		result.Movements = append(result.Movements, movements...)
		return writeAudit(txCtx, uow, actor, model.ActionCountStock, result.CountID.String(), req.BranchID.String(), req)
	})
	if err != nil {
		l.logRejected("CountStock", err, logrus.Fields{"branch_id": req.BranchID})
		return CountResult{}, err
	}

	l.opts.Log.WithFields(logrus.Fields{
		"branch_id":   req.BranchID,
		"count_id":    result.CountID,
		"adjustments": len(result.Movements),
	}).Info("stock counted")
	publishAll(l.opts.Notifier, stockEvents(result.Movements))
	return result, nil
}

// Reconcile compares a balance with the signed sum of its movements
func (l *StockLedger) Reconcile(ctx context.Context, productID, branchID uuid.UUID) (ReconcileResult, error) {
	result := ReconcileResult{ProductID: productID, BranchID: branchID}
	key := model.StockKey{ProductID: productID, BranchID: branchID}

	err := l.opts.Tx.RunInTx(ctx, func(txCtx context.Context, uow repository.UnitOfWork) error {
		if _, err := uow.Products().FindByID(txCtx, productID); err != nil {
			return notFound(err, "product", productID)
		}
		if _, err := uow.Branches().FindByID(txCtx, branchID); err != nil {
			return notFound(err, "branch", branchID)
		}

		result.CurrentStock = decimal.Zero
		balance, err := uow.Balances().Find(txCtx, key)
		switch {
		case err == nil:
			result.CurrentStock = balance.CurrentStock
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to load stock balance: %w", err)
		}

		result.MovementSum, err = l.recorder.SignedSum(txCtx, uow, key)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	result.Consistent = result.CurrentStock.Equal(result.MovementSum)
	if !result.Consistent {
		l.opts.Log.WithFields(logrus.Fields{
			"product_id":    productID,
			"branch_id":     branchID,
			"current_stock": result.CurrentStock.String(),
			"movement_sum":  result.MovementSum.String(),
		}).Error("stock balance diverges from movements")
	}
	return result, nil
}

// logRejected logs business rule rejections at warn and everything else at error
func (l *StockLedger) logRejected(funcName string, err error, fields logrus.Fields) {
	logOutcome(l.opts.Log, "stock_ledger", funcName, err, fields)
}

func logOutcome(log *logrus.Logger, module, funcName string, err error, fields logrus.Fields) {
	if isBusinessError(err) {
		log.WithFields(fields).WithFields(logrus.Fields{"module": module, "funcName": funcName}).
			WithError(err).Warn("operation rejected")
		return
	}
	logger.LogError(log, module, funcName, "operation failed", fields, err)
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		ErrInsufficientStock, ErrExcessReturn, ErrOverReceive, ErrAlreadyApproved,
		ErrInvalidTransition, ErrForbidden, ErrNotFound, ErrValidation, ErrBusy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
