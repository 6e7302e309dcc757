package service

import (
	"context"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const insufficientForTransfer = "Insufficient stock for transfer"

type TransferRequest struct {
	ProductID      uuid.UUID       `json:"product_id" binding:"required"`
	SourceBranchID uuid.UUID       `json:"source_branch_id" binding:"required"`
	TargetBranchID uuid.UUID       `json:"target_branch_id" binding:"required"`
	Qty            decimal.Decimal `json:"qty" binding:"required,gt=0"`
	Note           string          `json:"note"`
}

type TransferResult struct {
	Transfer    model.StockTransfer `json:"transfer"`
	OutMovement model.Movement      `json:"out_movement"`
	InMovement  model.Movement      `json:"in_movement"`
}

// TransferCoordinator moves stock between two branches as one unit of work
type TransferCoordinator struct {
	opts   Options
	ledger *StockLedger
}

func NewTransferCoordinator(opts Options, ledger *StockLedger) *TransferCoordinator {
	return &TransferCoordinator{opts: opts.withDefaults(), ledger: ledger}
}

func differentBranches(_ context.Context, r TransferRequest) error {
	if r.SourceBranchID == r.TargetBranchID {
		return &ValidationError{Field: "target_branch_id", Details: "must differ from source_branch_id"}
	}
	return nil
}

// Transfer decrements the source and increments the target. Both balances and
// both movements commit together or not at all.
func (t *TransferCoordinator) Transfer(ctx context.Context, actor model.Actor, req TransferRequest) (TransferResult, error) {
	if err := Validate(ctx, req,
		requireID("product_id", func(r TransferRequest) uuid.UUID { return r.ProductID }),
		requireID("source_branch_id", func(r TransferRequest) uuid.UUID { return r.SourceBranchID }),
		requireID("target_branch_id", func(r TransferRequest) uuid.UUID { return r.TargetBranchID }),
		differentBranches,
		positiveQty("qty", func(r TransferRequest) decimal.Decimal { return r.Qty }),
	); err != nil {
		return TransferResult{}, err
	}
	if err := requireMutate(ctx, t.opts.Guard, actor, req.SourceBranchID, req.TargetBranchID); err != nil {
		return TransferResult{}, err
	}

	transfer := model.StockTransfer{
		ID:             uuid.New(),
		ProductID:      req.ProductID,
		SourceBranchID: req.SourceBranchID,
		TargetBranchID: req.TargetBranchID,
		Qty:            req.Qty,
		Note:           req.Note,
		CreatedBy:      actor.UserID,
		CreatedAt:      t.opts.Clock(),
	}
	correlation := transfer.ID

	var movements []model.Movement
	err := t.opts.Tx.RunInTx(ctx, func(txCtx context.Context, uow repository.UnitOfWork) error {
		var err error
		movements, err = t.ledger.Apply(txCtx, uow, actor, []Entry{
			{
				Key:           model.StockKey{ProductID: req.ProductID, BranchID: req.SourceBranchID},
				Type:          model.MovementTransferOut,
				Qty:           req.Qty,
				ReferenceType: model.RefTypeStockTransfer,
				ReferenceID:   transfer.ID,
				CorrelationID: &correlation,
				Note:          req.Note,
				ShortMessage:  insufficientForTransfer,
			},
			{
				Key:           model.StockKey{ProductID: req.ProductID, BranchID: req.TargetBranchID},
				Type:          model.MovementTransferIn,
				Qty:           req.Qty,
				ReferenceType: model.RefTypeStockTransfer,
				ReferenceID:   transfer.ID,
				CorrelationID: &correlation,
				Note:          req.Note,
			},
		})
		if err != nil {
			return err
		}

		if err := uow.Transfers().Create(txCtx, &transfer); err != nil {
			return err
		}
		return writeAudit(txCtx, uow, actor, model.ActionTransferStock, transfer.ID.String(), req.ProductID.String(), req)
	})
	if err != nil {
		logOutcome(t.opts.Log, "transfer_coordinator", "Transfer", err, logrus.Fields{
			"product_id":       req.ProductID,
			"source_branch_id": req.SourceBranchID,
			"target_branch_id": req.TargetBranchID,
			"qty":              req.Qty.String(),
		})
		return TransferResult{}, err
	}

	t.opts.Log.WithFields(logrus.Fields{
		"transfer_id":      transfer.ID,
		"product_id":       req.ProductID,
		"source_branch_id": req.SourceBranchID,
		"target_branch_id": req.TargetBranchID,
		"qty":              req.Qty.String(),
	}).Info("stock transferred")
	publishAll(t.opts.Notifier, stockEvents(movements))

	return TransferResult{Transfer: transfer, OutMovement: movements[0], InMovement: movements[1]}, nil
}

// GetTransfer loads a transfer document
func (t *TransferCoordinator) GetTransfer(ctx context.Context, id uuid.UUID) (*model.StockTransfer, error) {
	transfer, err := t.opts.Tx.Reader().Transfers().FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "transfer", id)
	}
	return transfer, nil
}
