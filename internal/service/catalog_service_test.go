package service

import (
	"errors"
	"testing"

	"stockledger/internal/model"
)

func TestCatalogRequiresSuperAdmin(t *testing.T) {
	f := newFixture(t)

	if _, err := f.catalog.CreateProduct(f.ctx, f.clerk, CreateProductRequest{SKU: "X", Name: "X"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("clerk create product: err = %v, want forbidden", err)
	}
	if _, err := f.catalog.CreateBranch(f.ctx, f.clerk, CreateBranchRequest{Code: "C", Name: "C"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("clerk create branch: err = %v, want forbidden", err)
	}
	if _, err := f.catalog.CreateProduct(f.ctx, f.admin, CreateProductRequest{SKU: f.widget.SKU, Name: "dup"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate sku: err = %v, want validation", err)
	}
	if _, err := f.catalog.CreatePartner(f.ctx, f.admin, CreatePartnerRequest{Name: "X", Type: "VENDOR"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad partner type: err = %v, want validation", err)
	}
}

func TestGrantBranchAccessIsAudited(t *testing.T) {
	f := newFixture(t)

	user, err := f.catalog.CreateUser(f.ctx, f.admin, CreateUserRequest{Username: "picker", Role: model.RoleStaff})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	perm, err := f.catalog.GrantBranchAccess(f.ctx, f.admin, GrantAccessRequest{UserID: user.ID, BranchID: f.branchB.ID, Level: model.AccessFullAccess})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if perm.Level != model.AccessFullAccess {
		t.Fatalf("level = %s", perm.Level)
	}
	if _, err := f.catalog.GrantBranchAccess(f.ctx, f.admin, GrantAccessRequest{UserID: user.ID, BranchID: f.branchB.ID, Level: "owner"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad level: err = %v, want validation", err)
	}

	logs, total, err := f.audit.GetAuditLogs(f.ctx, 1, 5)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	// six fixture records, the user and the grant
	if total != 8 {
		t.Fatalf("total = %d, want 8", total)
	}
	if logs[0].Action != model.ActionGrantAccess || logs[0].EntityID != user.ID.String() {
		t.Fatalf("newest entry = %+v", logs[0])
	}
	if len(logs) != 5 {
		t.Fatalf("page size = %d, want 5", len(logs))
	}
}
