package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestRunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := model.StockKey{ProductID: uuid.New(), BranchID: uuid.New()}
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		if err := uow.Balances().Save(ctx, &model.StockBalance{ProductID: key.ProductID, BranchID: key.BranchID, CurrentStock: decimal.NewFromInt(5)}); err != nil {
			return err
		}
		if err := uow.Movements().Create(ctx, &model.Movement{ProductID: key.ProductID, BranchID: key.BranchID, Type: model.MovementAdd, Qty: decimal.NewFromInt(5)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := s.Reader().Balances().Find(ctx, key); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("balance survived rollback: %v", err)
	}
	sum, err := s.Reader().Movements().SignedSum(ctx, key)
	if err != nil || !sum.IsZero() {
		t.Fatalf("movements survived rollback: sum %s, err %v", sum, err)
	}
}

func TestBalanceSaveRejectsNegative(t *testing.T) {
	s := NewStore()
	err := s.RunInTx(context.Background(), func(ctx context.Context, uow repository.UnitOfWork) error {
		return uow.Balances().Save(ctx, &model.StockBalance{ProductID: uuid.New(), BranchID: uuid.New(), CurrentStock: decimal.NewFromInt(-1)})
	})
	if err == nil {
		t.Fatal("negative balance stored")
	}
}

func TestMovementListOrderAndCursor(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	product, branch := uuid.New(), uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// two movements share a timestamp; id breaks the tie
	at := []time.Time{base.Add(2 * time.Second), base, base.Add(time.Second), base.Add(time.Second)}
	err := s.RunInTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		for _, ts := range at {
			m := &model.Movement{ProductID: product, BranchID: branch, Type: model.MovementIssue, Qty: decimal.NewFromInt(1), OccurredAt: ts}
			if err := uow.Movements().Create(ctx, m); err != nil {
				return err
			}
			if !m.IsOutgoing {
				t.Errorf("issue movement %d not normalized to outgoing", m.ID)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := s.Reader().Movements().List(ctx, repository.MovementFilter{ProductID: product})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []int64
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	want := []int64{2, 3, 4, 1}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}

	after := repository.MovementCursor{OccurredAt: all[1].OccurredAt, ID: all[1].ID}
	rest, err := s.Reader().Movements().List(ctx, repository.MovementFilter{ProductID: product, After: &after, Limit: 5})
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != 4 || rest[1].ID != 1 {
		t.Fatalf("after cursor got %+v", rest)
	}

	sum, err := s.Reader().Movements().SignedSum(ctx, model.StockKey{ProductID: product, BranchID: branch})
	if err != nil || !sum.Equal(decimal.NewFromInt(-4)) {
		t.Fatalf("signed sum = %s, err %v", sum, err)
	}
}

func TestVoucherNumberUnique(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	branch := uuid.New()

	create := func(kind model.VoucherKind, number string) error {
		return s.RunInTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
			return uow.Vouchers().Create(ctx, &model.Voucher{
				Kind: kind, BranchID: branch, VoucherNumber: number, Status: model.VoucherStatusDraft,
				Lines: []model.VoucherLine{{ProductID: uuid.New(), Quantity: decimal.NewFromInt(1)}},
			})
		})
	}
	if err := create(model.VoucherKindIssue, "ISS-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := create(model.VoucherKindIssue, "ISS-1"); !errors.Is(err, repository.ErrDuplicateVoucherNumber) {
		t.Fatalf("duplicate number: err = %v, want ErrDuplicateVoucherNumber", err)
	}
	if err := create(model.VoucherKindReturn, "ISS-1"); err != nil {
		t.Fatalf("same number on another kind: %v", err)
	}
}

func TestCloneSharesHistoryWithoutAliasing(t *testing.T) {
	committed := newState()
	committed.movements = make([]model.Movement, 1, 8)
	committed.movements[0] = model.Movement{ID: 1}

	tx := committed.clone()
	tx.movements = append(tx.movements, model.Movement{ID: 2})

	// a later commit on the original must not overwrite the transaction's rows
	committed.movements = append(committed.movements, model.Movement{ID: 3})

	if len(tx.movements) != 2 || tx.movements[1].ID != 2 {
		t.Fatalf("transaction history = %+v", tx.movements)
	}
	if len(committed.movements) != 2 || committed.movements[1].ID != 3 {
		t.Fatalf("committed history = %+v", committed.movements)
	}
}

func TestRolledBackAppendsLeaveHistoryIntact(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := model.StockKey{ProductID: uuid.New(), BranchID: uuid.New()}
	add := func(uow repository.UnitOfWork, qty int64) error {
		return uow.Movements().Create(ctx, &model.Movement{ProductID: key.ProductID, BranchID: key.BranchID, Type: model.MovementAdd, Qty: decimal.NewFromInt(qty)})
	}
	boom := errors.New("boom")

	if err := s.RunInTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error { return add(uow, 1) }); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.RunInTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		if err := add(uow, 100); err != nil {
			return err
		}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if err := s.RunInTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error { return add(uow, 2) }); err != nil {
		t.Fatalf("commit: %v", err)
	}

	sum, err := s.Reader().Movements().SignedSum(ctx, key)
	if err != nil || !sum.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("signed sum = %s, err %v, want 3", sum, err)
	}
	if got := len(s.state.movements); got != 2 {
		t.Fatalf("history length = %d, want 2", got)
	}
	if s.state.movements[1].ID != 2 {
		t.Fatalf("second movement id = %d, want 2", s.state.movements[1].ID)
	}
}
