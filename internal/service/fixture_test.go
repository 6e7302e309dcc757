package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"stockledger/internal/access"
	"stockledger/internal/lock"
	"stockledger/internal/model"
	"stockledger/internal/repository/memory"
	ws "stockledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so every movement gets a distinct timestamp
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ws.Event
}

func (n *recordingNotifier) Publish(e ws.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) count(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Event == name {
			c++
		}
	}
	return c
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memory.Store
	guard      *access.StaticGuard
	notifier   *recordingNotifier
	recorder   *MovementRecorder
	ledger     *StockLedger
	transfers  *TransferCoordinator
	reconciler *ReturnReconciler
	vouchers   *VoucherWorkflow
	catalog    *CatalogService
	audit      *AuditService

	admin model.Actor
	clerk model.Actor

	widget   model.Product // whole units
	rice     model.Product // kilograms
	branchA  model.Branch
	branchB  model.Branch
	customer model.Partner
	supplier model.Partner
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.NewStore()
	guard := access.NewStaticGuard()
	notifier := &recordingNotifier{}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}

	opts := Options{Tx: store, Guard: guard, Notifier: notifier, Log: log, Clock: clock.Now}
	recorder := NewMovementRecorder(store)
	ledger := NewStockLedger(opts, recorder)
	reconciler := NewReturnReconciler(store)

	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		guard:      guard,
		notifier:   notifier,
		recorder:   recorder,
		ledger:     ledger,
		transfers:  NewTransferCoordinator(opts, ledger),
		reconciler: reconciler,
		vouchers:   NewVoucherWorkflow(opts, ledger, reconciler, lock.NewLocalLocker(), time.Second),
		catalog:    NewCatalogService(opts),
		audit:      NewAuditService(store),
		admin:      model.Actor{UserID: uuid.New(), Role: model.RoleSuperAdmin},
		clerk:      model.Actor{UserID: uuid.New(), Role: model.RoleStaff},
	}

	f.widget = f.createProduct("WID-1", false)
	f.rice = f.createProduct("RICE-KG", true)
	f.branchA = f.createBranch("A")
	f.branchB = f.createBranch("B")
	f.customer = f.createPartner("Acme", model.PartnerTypeCustomer)
	f.supplier = f.createPartner("Supply Co", model.PartnerTypeSupplier)
	guard.Grant(f.clerk.UserID, f.branchA.ID, model.AccessFullAccess)
	return f
}

func (f *fixture) createProduct(sku string, fraction bool) model.Product {
	f.t.Helper()
	p, err := f.catalog.CreateProduct(f.ctx, f.admin, CreateProductRequest{SKU: sku, Name: sku, AllowsFraction: fraction})
	if err != nil {
		f.t.Fatalf("create product: %v", err)
	}
	return *p
}

func (f *fixture) createBranch(code string) model.Branch {
	f.t.Helper()
	b, err := f.catalog.CreateBranch(f.ctx, f.admin, CreateBranchRequest{Code: code, Name: "Branch " + code})
	if err != nil {
		f.t.Fatalf("create branch: %v", err)
	}
	return *b
}

func (f *fixture) createPartner(name, partnerType string) model.Partner {
	f.t.Helper()
	p, err := f.catalog.CreatePartner(f.ctx, f.admin, CreatePartnerRequest{Name: name, Type: partnerType})
	if err != nil {
		f.t.Fatalf("create partner: %v", err)
	}
	return *p
}

func (f *fixture) addStock(product model.Product, branch model.Branch, qty string) {
	f.t.Helper()
	if _, err := f.ledger.AddStock(f.ctx, f.admin, AddStockRequest{ProductID: product.ID, BranchID: branch.ID, Qty: dec(qty)}); err != nil {
		f.t.Fatalf("add stock: %v", err)
	}
}

func (f *fixture) stock(product model.Product, branch model.Branch) decimal.Decimal {
	f.t.Helper()
	qty, err := f.ledger.CurrentStock(f.ctx, product.ID, branch.ID)
	if err != nil {
		f.t.Fatalf("current stock: %v", err)
	}
	return qty
}

func (f *fixture) assertStock(product model.Product, branch model.Branch, want string) {
	f.t.Helper()
	if got := f.stock(product, branch); !got.Equal(dec(want)) {
		f.t.Fatalf("stock of %s at %s = %s, want %s", product.SKU, branch.Code, got, want)
	}
}

func (f *fixture) movements(product model.Product, branch *model.Branch) []model.Movement {
	f.t.Helper()
	q := HistoryQuery{ProductID: product.ID}
	if branch != nil {
		q.BranchID = &branch.ID
	}
	var out []model.Movement
	if err := f.recorder.StreamHistory(f.ctx, q, func(m model.Movement) error {
		out = append(out, m)
		return nil
	}); err != nil {
		f.t.Fatalf("stream history: %v", err)
	}
	return out
}

func (f *fixture) assertConsistent(product model.Product, branch model.Branch) {
	f.t.Helper()
	res, err := f.ledger.Reconcile(f.ctx, product.ID, branch.ID)
	if err != nil {
		f.t.Fatalf("reconcile: %v", err)
	}
	if !res.Consistent {
		f.t.Fatalf("balance %s diverges from movement sum %s", res.CurrentStock, res.MovementSum)
	}
}

func (f *fixture) draft(kind model.VoucherKind, partner model.Partner, branch model.Branch, lines ...VoucherLineRequest) *model.Voucher {
	f.t.Helper()
	v, err := f.vouchers.CreateDraft(f.ctx, f.admin, kind, CreateVoucherRequest{
		BranchID:  branch.ID,
		PartnerID: partner.ID,
		Lines:     lines,
	})
	if err != nil {
		f.t.Fatalf("create %s draft: %v", kind, err)
	}
	return v
}

func (f *fixture) approvedIssue(branch model.Branch, product model.Product, qty string) *model.Voucher {
	f.t.Helper()
	f.addStock(product, branch, qty)
	v := f.draft(model.VoucherKindIssue, f.customer, branch, VoucherLineRequest{ProductID: product.ID, Quantity: dec(qty), UnitPrice: dec("10")})
	approved, err := f.vouchers.Approve(f.ctx, f.admin, v.ID)
	if err != nil {
		f.t.Fatalf("approve issue: %v", err)
	}
	return approved
}
