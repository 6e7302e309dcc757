package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockledger/internal/access"
	"stockledger/internal/lock"
	"stockledger/internal/model"
	"stockledger/internal/repository/memory"
	"stockledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var testSecret = []byte("test-secret")

type pageMeta struct {
	Total      *int64 `json:"total"`
	NextCursor string `json:"next_cursor"`
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Meta    *pageMeta       `json:"meta"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

type api struct {
	t       *testing.T
	router  *gin.Engine
	guard   *access.StaticGuard
	admin   string
	clerk   string
	clerkID uuid.UUID
}

func token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.NewStore()
	guard := access.NewStaticGuard()
	opts := service.Options{Tx: store, Guard: guard, Log: log}
	recorder := service.NewMovementRecorder(store)
	ledger := service.NewStockLedger(opts, recorder)
	reconciler := service.NewReturnReconciler(store)

	router := NewRouter(RouterConfig{
		Services: Services{
			Ledger:    ledger,
			Recorder:  recorder,
			Transfers: service.NewTransferCoordinator(opts, ledger),
			Vouchers:  service.NewVoucherWorkflow(opts, ledger, reconciler, lock.NewLocalLocker(), time.Second),
			Catalog:   service.NewCatalogService(opts),
			Audit:     service.NewAuditService(store),
		},
		Secret: testSecret,
		Log:    log,
	})

	clerkID := uuid.New()
	return &api{
		t:       t,
		router:  router,
		guard:   guard,
		admin:   token(t, uuid.New(), model.RoleSuperAdmin),
		clerk:   token(t, clerkID, model.RoleStaff),
		clerkID: clerkID,
	}
}

func (a *api) do(method, path, tok string, body interface{}) (int, envelope) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, env
}

// create posts body as admin and decodes the created entity id
func (a *api) create(path string, body interface{}) uuid.UUID {
	a.t.Helper()
	code, env := a.do(http.MethodPost, path, a.admin, body)
	if code != http.StatusCreated {
		a.t.Fatalf("POST %s = %d %s", path, code, env.Error)
	}
	var out struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		a.t.Fatalf("decode id: %v", err)
	}
	return out.ID
}

func (a *api) stock(product, branch uuid.UUID) string {
	a.t.Helper()
	code, env := a.do(http.MethodGet, "/api/stock?product_id="+product.String()+"&branch_id="+branch.String(), a.admin, nil)
	if code != http.StatusOK {
		a.t.Fatalf("get stock = %d %s", code, env.Error)
	}
	var out struct {
		CurrentStock string `json:"current_stock"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		a.t.Fatalf("decode stock: %v", err)
	}
	return out.CurrentStock
}

type seeded struct {
	product, branchA, branchB, customer uuid.UUID
}

func (a *api) seed() seeded {
	a.t.Helper()
	s := seeded{
		product:  a.create("/api/products", map[string]interface{}{"sku": "W-1", "name": "Widget"}),
		branchA:  a.create("/api/branches", map[string]interface{}{"code": "A", "name": "Branch A"}),
		branchB:  a.create("/api/branches", map[string]interface{}{"code": "B", "name": "Branch B"}),
		customer: a.create("/api/partners", map[string]interface{}{"name": "Acme", "type": "CUSTOMER"}),
	}
	a.guard.Grant(a.clerkID, s.branchA, model.AccessFullAccess)
	return s
}

func TestAuthentication(t *testing.T) {
	a := newAPI(t)

	if code, _ := a.do(http.MethodGet, "/health", "", nil); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
	if code, env := a.do(http.MethodGet, "/api/vouchers", "", nil); code != http.StatusUnauthorized || env.Error != "Authorization is missing" {
		t.Fatalf("no token = %d %q", code, env.Error)
	}
	if code, _ := a.do(http.MethodGet, "/api/vouchers", "garbage", nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", code)
	}
	if code, _ := a.do(http.MethodGet, "/api/audit-logs", a.clerk, nil); code != http.StatusForbidden {
		t.Fatalf("clerk audit logs = %d", code)
	}
	if code, _ := a.do(http.MethodGet, "/api/audit-logs", a.admin, nil); code != http.StatusOK {
		t.Fatalf("admin audit logs = %d", code)
	}
}

func TestStockEndpoints(t *testing.T) {
	a := newAPI(t)
	s := a.seed()

	code, env := a.do(http.MethodPost, "/api/stock/add", a.clerk, map[string]interface{}{
		"product_id": s.product, "branch_id": s.branchA, "qty": "50",
	})
	if code != http.StatusCreated {
		t.Fatalf("add stock = %d %s", code, env.Error)
	}

	tests := []struct {
		name     string
		tok      string
		body     map[string]interface{}
		wantCode int
		wantKind string
	}{
		{
			name:     "transfer",
			tok:      a.admin,
			body:     map[string]interface{}{"product_id": s.product, "source_branch_id": s.branchA, "target_branch_id": s.branchB, "qty": "20"},
			wantCode: http.StatusCreated,
		},
		{
			name:     "insufficient",
			tok:      a.admin,
			body:     map[string]interface{}{"product_id": s.product, "source_branch_id": s.branchA, "target_branch_id": s.branchB, "qty": "31"},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "INSUFFICIENT_STOCK",
		},
		{
			name:     "forbidden",
			tok:      a.clerk,
			body:     map[string]interface{}{"product_id": s.product, "source_branch_id": s.branchA, "target_branch_id": s.branchB, "qty": "1"},
			wantCode: http.StatusForbidden,
			wantKind: "FORBIDDEN",
		},
		{
			name:     "zero quantity",
			tok:      a.admin,
			body:     map[string]interface{}{"product_id": s.product, "source_branch_id": s.branchA, "target_branch_id": s.branchB, "qty": "0"},
			wantCode: http.StatusBadRequest,
			wantKind: "VALIDATION_ERROR",
		},
		{
			name:     "missing product",
			tok:      a.admin,
			body:     map[string]interface{}{"source_branch_id": s.branchA, "target_branch_id": s.branchB, "qty": "1"},
			wantCode: http.StatusBadRequest,
			wantKind: "VALIDATION_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := a.do(http.MethodPost, "/api/transfers", tt.tok, tt.body)
			if code != tt.wantCode || env.Code != tt.wantKind {
				t.Fatalf("got %d %q (%s), want %d %q", code, env.Code, env.Error, tt.wantCode, tt.wantKind)
			}
		})
	}

	if got := a.stock(s.product, s.branchA); got != "30" {
		t.Fatalf("branch A = %s, want 30", got)
	}
	if got := a.stock(s.product, s.branchB); got != "20" {
		t.Fatalf("branch B = %s, want 20", got)
	}

	code, env = a.do(http.MethodGet, "/api/stock/reconcile?product_id="+s.product.String()+"&branch_id="+s.branchA.String(), a.admin, nil)
	var rec service.ReconcileResult
	if code != http.StatusOK || json.Unmarshal(env.Data, &rec) != nil || !rec.Consistent {
		t.Fatalf("reconcile = %d %s", code, env.Data)
	}

	code, env = a.do(http.MethodGet, "/api/branches/"+s.branchA.String()+"/stock", a.admin, nil)
	if code != http.StatusOK || env.Meta == nil || env.Meta.Total == nil || *env.Meta.Total != 1 {
		t.Fatalf("branch stock = %d %+v", code, env.Meta)
	}

	if code, _ := a.do(http.MethodGet, "/api/stock?product_id=nope&branch_id="+s.branchA.String(), a.admin, nil); code != http.StatusBadRequest {
		t.Fatalf("malformed product id = %d", code)
	}
	if code, _ := a.do(http.MethodGet, "/api/stock?product_id="+uuid.NewString()+"&branch_id="+s.branchA.String(), a.admin, nil); code != http.StatusNotFound {
		t.Fatalf("unknown product = %d", code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	a := newAPI(t)
	s := a.seed()
	for i := 0; i < 3; i++ {
		if code, env := a.do(http.MethodPost, "/api/stock/add", a.admin, map[string]interface{}{
			"product_id": s.product, "branch_id": s.branchA, "qty": "1",
		}); code != http.StatusCreated {
			t.Fatalf("add stock = %d %s", code, env.Error)
		}
	}

	base := "/api/products/" + s.product.String() + "/movements?limit=2&branch_id=" + s.branchA.String()
	code, env := a.do(http.MethodGet, base, a.admin, nil)
	var first []model.Movement
	if code != http.StatusOK || json.Unmarshal(env.Data, &first) != nil || len(first) != 2 || env.Meta.NextCursor == "" {
		t.Fatalf("first page = %d %s", code, env.Data)
	}

	code, env = a.do(http.MethodGet, base+"&cursor="+env.Meta.NextCursor, a.admin, nil)
	var second []model.Movement
	if code != http.StatusOK || json.Unmarshal(env.Data, &second) != nil || len(second) != 1 || env.Meta.NextCursor != "" {
		t.Fatalf("second page = %d %s", code, env.Data)
	}
	if second[0].ID <= first[1].ID {
		t.Fatalf("pages overlap: %d after %d", second[0].ID, first[1].ID)
	}

	if code, env := a.do(http.MethodGet, base+"&cursor=bad!cursor", a.admin, nil); code != http.StatusUnprocessableEntity || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("bad cursor = %d %s", code, env.Error)
	}
	if code, _ := a.do(http.MethodGet, base+"&from=yesterday", a.admin, nil); code != http.StatusBadRequest {
		t.Fatalf("bad from = %d", code)
	}
}

func TestVoucherEndpoints(t *testing.T) {
	a := newAPI(t)
	s := a.seed()
	a.do(http.MethodPost, "/api/stock/add", a.admin, map[string]interface{}{"product_id": s.product, "branch_id": s.branchA, "qty": "10"})

	issueID := a.create("/api/issue-vouchers", map[string]interface{}{
		"branch_id":  s.branchA,
		"partner_id": s.customer,
		"lines":      []map[string]interface{}{{"product_id": s.product, "quantity": "4", "unit_price": "2.5"}},
	})

	code, env := a.do(http.MethodPost, "/api/vouchers/"+issueID.String()+"/approve", a.clerk, nil)
	var issue model.Voucher
	if code != http.StatusOK || json.Unmarshal(env.Data, &issue) != nil || issue.Status != model.VoucherStatusApproved {
		t.Fatalf("approve = %d %s", code, env.Error)
	}
	if code, env := a.do(http.MethodPost, "/api/vouchers/"+issueID.String()+"/approve", a.clerk, nil); code != http.StatusUnprocessableEntity || env.Code != "ALREADY_APPROVED" {
		t.Fatalf("second approve = %d %q", code, env.Code)
	}
	if got := a.stock(s.product, s.branchA); got != "6" {
		t.Fatalf("stock = %s, want 6", got)
	}

	lineID := issue.Lines[0].ID
	code, env = a.do(http.MethodPost, "/api/return-vouchers", a.admin, map[string]interface{}{
		"branch_id":  s.branchA,
		"partner_id": s.customer,
		"lines":      []map[string]interface{}{{"product_id": s.product, "quantity": "5", "source_line_id": lineID}},
	})
	if code != http.StatusUnprocessableEntity || env.Code != "EXCESS_RETURN" {
		t.Fatalf("excess return draft = %d %q", code, env.Code)
	}

	code, env = a.do(http.MethodGet, "/api/voucher-lines/"+lineID.String()+"/remaining-returnable", a.admin, nil)
	var remaining struct {
		Remaining string `json:"remaining"`
	}
	if code != http.StatusOK || json.Unmarshal(env.Data, &remaining) != nil || remaining.Remaining != "4" {
		t.Fatalf("remaining = %d %s", code, env.Data)
	}

	code, env = a.do(http.MethodGet, "/api/vouchers?kind=ISSUE&status=APPROVED", a.admin, nil)
	if code != http.StatusOK || env.Meta == nil || *env.Meta.Total != 1 {
		t.Fatalf("list = %d %+v", code, env.Meta)
	}
	if code, env := a.do(http.MethodDelete, "/api/vouchers/"+issueID.String(), a.admin, nil); code != http.StatusUnprocessableEntity || env.Code != "INVALID_TRANSITION" {
		t.Fatalf("delete approved = %d", code)
	}
	if code, _ := a.do(http.MethodGet, "/api/vouchers/"+uuid.NewString(), a.admin, nil); code != http.StatusNotFound {
		t.Fatalf("unknown voucher = %d", code)
	}
}

func TestPurchaseOrderEndpoints(t *testing.T) {
	a := newAPI(t)
	s := a.seed()
	supplier := a.create("/api/partners", map[string]interface{}{"name": "Supply", "type": "SUPPLIER"})

	poID := a.create("/api/purchase-orders", map[string]interface{}{
		"branch_id":  s.branchA,
		"partner_id": supplier,
		"lines":      []map[string]interface{}{{"product_id": s.product, "quantity": "100"}},
	})
	code, env := a.do(http.MethodPost, "/api/vouchers/"+poID.String()+"/approve", a.admin, nil)
	var po model.Voucher
	if code != http.StatusOK || json.Unmarshal(env.Data, &po) != nil {
		t.Fatalf("approve po = %d %s", code, env.Error)
	}

	receive := func(qty string) (int, envelope) {
		return a.do(http.MethodPost, "/api/purchase-orders/"+poID.String()+"/receive", a.admin, map[string]interface{}{
			"lines": []map[string]interface{}{{"order_line_id": po.Lines[0].ID, "quantity": qty}},
		})
	}
	if code, env := receive("40"); code != http.StatusCreated {
		t.Fatalf("receive 40 = %d %s", code, env.Error)
	}
	if code, env := receive("70"); code != http.StatusUnprocessableEntity || env.Code != "OVER_RECEIVE" {
		t.Fatalf("receive 70 = %d %q", code, env.Code)
	}
	code, env = receive("60")
	var res service.ReceiveResult
	if code != http.StatusCreated || json.Unmarshal(env.Data, &res) != nil || res.Voucher.ReceivingStatus != model.ReceivingFullyReceived {
		t.Fatalf("receive 60 = %d %s", code, env.Data)
	}
	if got := a.stock(s.product, s.branchA); got != "100" {
		t.Fatalf("stock = %s, want 100", got)
	}
}
