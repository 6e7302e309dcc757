// Package memory is an in-process storage driver implementing the repository
// contracts. A transaction holds the store exclusively, works on a private copy
// of the state and publishes it only on commit, so every unit of work is
// serializable and a failed one leaves nothing behind.
//
// Entity maps are copied per transaction; the append-only movement, receipt
// and audit histories are shared. Intended for tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
)

type permKey struct {
	userID   uuid.UUID
	branchID uuid.UUID
}

type state struct {
	products       map[uuid.UUID]model.Product
	branches       map[uuid.UUID]model.Branch
	partners       map[uuid.UUID]model.Partner
	users          map[uuid.UUID]model.User
	permissions    map[permKey]model.BranchPermission
	balances       map[model.StockKey]model.StockBalance
	movements      []model.Movement
	lastMovementID int64
	vouchers       map[uuid.UUID]model.Voucher
	transfers      map[uuid.UUID]model.StockTransfer
	receipts       []model.PurchaseReceipt
	audit          []model.AuditLog
}

func newState() *state {
	return &state{
		products:    make(map[uuid.UUID]model.Product),
		branches:    make(map[uuid.UUID]model.Branch),
		partners:    make(map[uuid.UUID]model.Partner),
		users:       make(map[uuid.UUID]model.User),
		permissions: make(map[permKey]model.BranchPermission),
		balances:    make(map[model.StockKey]model.StockBalance),
		vouchers:    make(map[uuid.UUID]model.Voucher),
		transfers:   make(map[uuid.UUID]model.StockTransfer),
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// appendOnly shares the committed history with a transaction. Capping the
// capacity makes the first append copy, so the committed slice is never written.
func appendOnly[T any](src []T) []T {
	return src[:len(src):len(src)]
}

func (s *state) clone() *state {
	c := &state{
		products:       copyMap(s.products),
		branches:       copyMap(s.branches),
		partners:       copyMap(s.partners),
		users:          copyMap(s.users),
		permissions:    copyMap(s.permissions),
		balances:       copyMap(s.balances),
		movements:      appendOnly(s.movements),
		lastMovementID: s.lastMovementID,
		vouchers:       make(map[uuid.UUID]model.Voucher, len(s.vouchers)),
		transfers:      copyMap(s.transfers),
		receipts:       appendOnly(s.receipts),
		audit:          appendOnly(s.audit),
	}
	for id, v := range s.vouchers {
		c.vouchers[id] = copyVoucher(v)
	}
	return c
}

func copyVoucher(v model.Voucher) model.Voucher {
	v.Lines = append([]model.VoucherLine(nil), v.Lines...)
	return v
}

// Store is the in-memory TransactionManager
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ repository.TransactionManager = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) RunInTx(ctx context.Context, fn func(txCtx context.Context, uow repository.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &unitOfWork{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Reader returns auto-committing repositories. They must not be used from
// inside RunInTx, which already holds the store.
func (s *Store) Reader() repository.UnitOfWork {
	return &unitOfWork{store: s}
}

type unitOfWork struct {
	st    *state
	store *Store
}

func (u *unitOfWork) view(fn func(st *state) error) error {
	if u.st != nil {
		return fn(u.st)
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(u.store.state)
}

func (u *unitOfWork) Products() repository.ProductRepository { return &productRepository{u} }
func (u *unitOfWork) Branches() repository.BranchRepository  { return &branchRepository{u} }
func (u *unitOfWork) Partners() repository.PartnerRepository { return &partnerRepository{u} }
func (u *unitOfWork) Users() repository.UserRepository       { return &userRepository{u} }
func (u *unitOfWork) Permissions() repository.BranchPermissionRepository {
	return &permissionRepository{u}
}
func (u *unitOfWork) Balances() repository.StockBalanceRepository { return &balanceRepository{u} }
func (u *unitOfWork) Movements() repository.MovementRepository    { return &movementRepository{u} }
func (u *unitOfWork) Vouchers() repository.VoucherRepository      { return &voucherRepository{u} }
func (u *unitOfWork) Transfers() repository.TransferRepository    { return &transferRepository{u} }
func (u *unitOfWork) Audit() repository.AuditRepository           { return &auditRepository{u} }

func stamp(created *time.Time) {
	if created.IsZero() {
		*created = time.Now()
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func paginate(total, page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return 0, 0
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}
