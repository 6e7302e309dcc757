package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type productRepository struct{ u *unitOfWork }

func (r *productRepository) Create(_ context.Context, product *model.Product) error {
	return r.u.view(func(st *state) error {
		ensureID(&product.ID)
		for _, p := range st.products {
			if p.SKU == product.SKU {
				return fmt.Errorf("duplicate sku %s", product.SKU)
			}
		}
		stamp(&product.CreatedAt)
		product.UpdatedAt = product.CreatedAt
		st.products[product.ID] = *product
		return nil
	})
}

func (r *productRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	var out model.Product
	err := r.u.view(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *productRepository) FindBySKU(_ context.Context, sku string) (*model.Product, error) {
	var out model.Product
	err := r.u.view(func(st *state) error {
		for _, p := range st.products {
			if p.SKU == sku {
				out = p
				return nil
			}
		}
		return gorm.ErrRecordNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type branchRepository struct{ u *unitOfWork }

func (r *branchRepository) Create(_ context.Context, branch *model.Branch) error {
	return r.u.view(func(st *state) error {
		ensureID(&branch.ID)
		stamp(&branch.CreatedAt)
		branch.UpdatedAt = branch.CreatedAt
		st.branches[branch.ID] = *branch
		return nil
	})
}

func (r *branchRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Branch, error) {
	var out model.Branch
	err := r.u.view(func(st *state) error {
		b, ok := st.branches[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type partnerRepository struct{ u *unitOfWork }

func (r *partnerRepository) Create(_ context.Context, partner *model.Partner) error {
	return r.u.view(func(st *state) error {
		ensureID(&partner.ID)
		stamp(&partner.CreatedAt)
		partner.UpdatedAt = partner.CreatedAt
		st.partners[partner.ID] = *partner
		return nil
	})
}

func (r *partnerRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Partner, error) {
	var out model.Partner
	err := r.u.view(func(st *state) error {
		p, ok := st.partners[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type userRepository struct{ u *unitOfWork }

func (r *userRepository) Create(_ context.Context, user *model.User) error {
	return r.u.view(func(st *state) error {
		ensureID(&user.ID)
		stamp(&user.CreatedAt)
		user.UpdatedAt = user.CreatedAt
		st.users[user.ID] = *user
		return nil
	})
}

func (r *userRepository) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	var out model.User
	err := r.u.view(func(st *state) error {
		usr, ok := st.users[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = usr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type permissionRepository struct{ u *unitOfWork }

func (r *permissionRepository) Grant(_ context.Context, perm *model.BranchPermission) error {
	return r.u.view(func(st *state) error {
		stamp(&perm.CreatedAt)
		perm.UpdatedAt = time.Now()
		st.permissions[permKey{perm.UserID, perm.BranchID}] = *perm
		return nil
	})
}

func (r *permissionRepository) FindLevel(_ context.Context, userID, branchID uuid.UUID) (string, error) {
	var level string
	err := r.u.view(func(st *state) error {
		p, ok := st.permissions[permKey{userID, branchID}]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		level = p.Level
		return nil
	})
	return level, err
}

type balanceRepository struct{ u *unitOfWork }

func (r *balanceRepository) Find(_ context.Context, key model.StockKey) (*model.StockBalance, error) {
	var out model.StockBalance
	err := r.u.view(func(st *state) error {
		b, ok := st.balances[key]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockForUpdate only materialises missing rows: the transaction already owns the whole store.
func (r *balanceRepository) LockForUpdate(_ context.Context, keys []model.StockKey) (map[model.StockKey]*model.StockBalance, error) {
	locked := make(map[model.StockKey]*model.StockBalance, len(keys))
	err := r.u.view(func(st *state) error {
		for _, k := range repository.SortKeys(keys) {
			b, ok := st.balances[k]
			if !ok {
				now := time.Now()
				b = model.StockBalance{ProductID: k.ProductID, BranchID: k.BranchID, CurrentStock: decimal.Zero, CreatedAt: now, UpdatedAt: now}
				st.balances[k] = b
			}
			copied := b
			locked[k] = &copied
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

func (r *balanceRepository) Save(_ context.Context, balance *model.StockBalance) error {
	return r.u.view(func(st *state) error {
		if balance.CurrentStock.IsNegative() {
			return fmt.Errorf("check constraint violated: current_stock >= 0")
		}
		balance.UpdatedAt = time.Now()
		stamp(&balance.CreatedAt)
		st.balances[balance.Key()] = *balance
		return nil
	})
}

func (r *balanceRepository) ListByBranch(_ context.Context, branchID uuid.UUID, page, limit int) ([]model.StockBalance, int64, error) {
	var out []model.StockBalance
	var total int64
	err := r.u.view(func(st *state) error {
		var all []model.StockBalance
		for _, b := range st.balances {
			if b.BranchID == branchID {
				all = append(all, b)
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ProductID.String() < all[j].ProductID.String() })
		total = int64(len(all))
		start, end := paginate(len(all), page, limit)
		out = append(out, all[start:end]...)
		return nil
	})
	return out, total, err
}

type movementRepository struct{ u *unitOfWork }

func (r *movementRepository) Create(_ context.Context, movement *model.Movement) error {
	return r.u.view(func(st *state) error {
		if err := movement.Normalize(); err != nil {
			return err
		}
		st.lastMovementID++
		movement.ID = st.lastMovementID
		stamp(&movement.CreatedAt)
		st.movements = append(st.movements, *movement)
		return nil
	})
}

func movementBefore(a, b model.Movement) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	return a.ID < b.ID
}

func (r *movementRepository) List(_ context.Context, filter repository.MovementFilter) ([]model.Movement, error) {
	var out []model.Movement
	err := r.u.view(func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID != filter.ProductID {
				continue
			}
			if filter.BranchID != nil && m.BranchID != *filter.BranchID {
				continue
			}
			if filter.From != nil && m.OccurredAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && !m.OccurredAt.Before(*filter.To) {
				continue
			}
			if filter.After != nil && !movementBefore(model.Movement{OccurredAt: filter.After.OccurredAt, ID: filter.After.ID}, m) {
				continue
			}
			out = append(out, m)
		}
		sort.Slice(out, func(i, j int) bool { return movementBefore(out[i], out[j]) })
		if filter.Limit > 0 && len(out) > filter.Limit {
			out = out[:filter.Limit]
		}
		return nil
	})
	return out, err
}

func (r *movementRepository) SignedSum(_ context.Context, key model.StockKey) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.u.view(func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID == key.ProductID && m.BranchID == key.BranchID {
				sum = sum.Add(m.Signed())
			}
		}
		return nil
	})
	return sum, err
}

type voucherRepository struct{ u *unitOfWork }

func (r *voucherRepository) Create(_ context.Context, voucher *model.Voucher) error {
	return r.u.view(func(st *state) error {
		ensureID(&voucher.ID)
		for _, v := range st.vouchers {
			if v.BranchID == voucher.BranchID && v.Kind == voucher.Kind && v.VoucherNumber == voucher.VoucherNumber {
				return fmt.Errorf("%w: %s", repository.ErrDuplicateVoucherNumber, voucher.VoucherNumber)
			}
		}
		stamp(&voucher.CreatedAt)
		voucher.UpdatedAt = voucher.CreatedAt
		for i := range voucher.Lines {
			ensureID(&voucher.Lines[i].ID)
			voucher.Lines[i].VoucherID = voucher.ID
		}
		st.vouchers[voucher.ID] = copyVoucher(*voucher)
		return nil
	})
}

func (r *voucherRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Voucher, error) {
	var out model.Voucher
	err := r.u.view(func(st *state) error {
		v, ok := st.vouchers[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = copyVoucher(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *voucherRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Voucher, error) {
	return r.FindByID(ctx, id)
}

func (r *voucherRepository) List(_ context.Context, filter repository.VoucherFilter) ([]model.Voucher, int64, error) {
	var out []model.Voucher
	var total int64
	err := r.u.view(func(st *state) error {
		var all []model.Voucher
		for _, v := range st.vouchers {
			if filter.BranchID != nil && v.BranchID != *filter.BranchID {
				continue
			}
			if filter.Kind != "" && v.Kind != filter.Kind {
				continue
			}
			if filter.Status != "" && v.Status != filter.Status {
				continue
			}
			all = append(all, copyVoucher(v))
		}
		sort.Slice(all, func(i, j int) bool {
			if !all[i].VoucherDate.Equal(all[j].VoucherDate) {
				return all[i].VoucherDate.After(all[j].VoucherDate)
			}
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})
		total = int64(len(all))
		start, end := paginate(len(all), filter.Page, filter.Limit)
		out = append(out, all[start:end]...)
		return nil
	})
	return out, total, err
}

func (r *voucherRepository) Update(_ context.Context, voucher *model.Voucher) error {
	return r.u.view(func(st *state) error {
		existing, ok := st.vouchers[voucher.ID]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		header := copyVoucher(*voucher)
		header.Lines = existing.Lines
		header.UpdatedAt = time.Now()
		st.vouchers[voucher.ID] = header
		return nil
	})
}

func (r *voucherRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.u.view(func(st *state) error {
		delete(st.vouchers, id)
		return nil
	})
}

func (r *voucherRepository) NumberExists(_ context.Context, branchID uuid.UUID, kind model.VoucherKind, number string) (bool, error) {
	found := false
	err := r.u.view(func(st *state) error {
		for _, v := range st.vouchers {
			if v.BranchID == branchID && v.Kind == kind && v.VoucherNumber == number {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r *voucherRepository) NextNumber(_ context.Context, branchID uuid.UUID, kind model.VoucherKind, prefix string) (string, error) {
	var last int64
	err := r.u.view(func(st *state) error {
		for _, v := range st.vouchers {
			if v.BranchID != branchID || v.Kind != kind || !strings.HasPrefix(v.VoucherNumber, prefix) {
				continue
			}
			if seq, ok := sequenceOf(strings.TrimPrefix(v.VoucherNumber, prefix)); ok && seq > last {
				last = seq
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, last+1), nil
}

// sequenceOf parses an all-digit suffix the way the postgres query does
func sequenceOf(suffix string) (int64, bool) {
	if suffix == "" || len(suffix) > 18 || strings.TrimLeft(suffix, "0123456789") != "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(suffix, 10, 64)
	return seq, err == nil
}

func findLine(st *state, lineID uuid.UUID) (*model.Voucher, int, bool) {
	for id, v := range st.vouchers {
		for i := range v.Lines {
			if v.Lines[i].ID == lineID {
				voucher := st.vouchers[id]
				return &voucher, i, true
			}
		}
	}
	return nil, 0, false
}

func (r *voucherRepository) FindLine(_ context.Context, lineID uuid.UUID) (*model.VoucherLine, error) {
	var out model.VoucherLine
	err := r.u.view(func(st *state) error {
		v, i, ok := findLine(st, lineID)
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = v.Lines[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *voucherRepository) LockLine(ctx context.Context, lineID uuid.UUID) (*model.VoucherLine, error) {
	return r.FindLine(ctx, lineID)
}

func (r *voucherRepository) UpdateLineReceived(_ context.Context, lineID uuid.UUID, received decimal.Decimal) error {
	return r.u.view(func(st *state) error {
		v, i, ok := findLine(st, lineID)
		if !ok {
			return gorm.ErrRecordNotFound
		}
		v.Lines[i].ReceivedQuantity = received
		st.vouchers[v.ID] = *v
		return nil
	})
}

func (r *voucherRepository) SumReturnedQuantity(_ context.Context, issueLineID uuid.UUID, excludeLineID *uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.u.view(func(st *state) error {
		for _, v := range st.vouchers {
			if v.Kind != model.VoucherKindReturn || v.Status != model.VoucherStatusApproved {
				continue
			}
			for _, l := range v.Lines {
				if l.SourceLineID == nil || *l.SourceLineID != issueLineID {
					continue
				}
				if excludeLineID != nil && l.ID == *excludeLineID {
					continue
				}
				sum = sum.Add(l.Quantity)
			}
		}
		return nil
	})
	return sum, err
}

func (r *voucherRepository) CreateReceipt(_ context.Context, receipt *model.PurchaseReceipt) error {
	return r.u.view(func(st *state) error {
		ensureID(&receipt.ID)
		stamp(&receipt.CreatedAt)
		for i := range receipt.Lines {
			ensureID(&receipt.Lines[i].ID)
			receipt.Lines[i].ReceiptID = receipt.ID
		}
		copied := *receipt
		copied.Lines = append([]model.PurchaseReceiptLine(nil), receipt.Lines...)
		st.receipts = append(st.receipts, copied)
		return nil
	})
}

type transferRepository struct{ u *unitOfWork }

func (r *transferRepository) Create(_ context.Context, transfer *model.StockTransfer) error {
	return r.u.view(func(st *state) error {
		ensureID(&transfer.ID)
		stamp(&transfer.CreatedAt)
		st.transfers[transfer.ID] = *transfer
		return nil
	})
}

func (r *transferRepository) FindByID(_ context.Context, id uuid.UUID) (*model.StockTransfer, error) {
	var out model.StockTransfer
	err := r.u.view(func(st *state) error {
		t, ok := st.transfers[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type auditRepository struct{ u *unitOfWork }

func (r *auditRepository) Log(_ context.Context, entry *model.AuditLog) error {
	return r.u.view(func(st *state) error {
		ensureID(&entry.ID)
		stamp(&entry.CreatedAt)
		st.audit = append(st.audit, *entry)
		return nil
	})
}

func (r *auditRepository) List(_ context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	var out []model.AuditLog
	var total int64
	err := r.u.view(func(st *state) error {
		all := make([]model.AuditLog, 0, len(st.audit))
		for i := len(st.audit) - 1; i >= 0; i-- {
			entry := st.audit[i]
			if entry.UserID != nil {
				if usr, ok := st.users[*entry.UserID]; ok {
					u := usr
					entry.User = &u
				}
			}
			all = append(all, entry)
		}
		total = int64(len(all))
		start, end := paginate(len(all), page, limit)
		out = append(out, all[start:end]...)
		return nil
	})
	return out, total, err
}
