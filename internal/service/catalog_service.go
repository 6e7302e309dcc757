package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateProductRequest struct {
	SKU            string `json:"sku" binding:"required"`
	Name           string `json:"name" binding:"required"`
	Unit           string `json:"unit"`
	AllowsFraction bool   `json:"allows_fraction"`
}

type CreateBranchRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type CreatePartnerRequest struct {
	Name string `json:"name" binding:"required"`
	Type string `json:"type" binding:"required,oneof=CUSTOMER SUPPLIER BOTH"`
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=super_admin staff"`
}

type GrantAccessRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	BranchID uuid.UUID `json:"branch_id" binding:"required"`
	Level    string    `json:"level" binding:"required,oneof=view_only full_access"`
}

// permissionCache is implemented by guards that cache grants
type permissionCache interface {
	Forget(userID, branchID uuid.UUID)
}

// CatalogService maintains the reference data the engine reads: products,
// branches, partners, users and their branch grants. Only super admins write it.
type CatalogService struct {
	opts Options
}

func NewCatalogService(opts Options) *CatalogService {
	return &CatalogService{opts: opts.withDefaults()}
}

var validPartnerTypes = map[string]bool{
	model.PartnerTypeCustomer: true,
	model.PartnerTypeSupplier: true,
	model.PartnerTypeBoth:     true,
}

func (s *CatalogService) requireSuperAdmin(ctx context.Context, actor model.Actor) error {
	ok, err := s.opts.Guard.IsSuperAdmin(ctx, actor)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !ok {
		return &ForbiddenError{UserID: actor.UserID}
	}
	return nil
}

// create authorizes, runs fn and the audit entry in one unit of work and logs the result
func (s *CatalogService) create(ctx context.Context, actor model.Actor, funcName string, fn func(ctx context.Context, uow repository.UnitOfWork) error) error {
	if err := s.requireSuperAdmin(ctx, actor); err != nil {
		return err
	}
	err := s.opts.Tx.RunInTx(ctx, fn)
	if err != nil {
		logOutcome(s.opts.Log, "catalog", funcName, err, logrus.Fields{"user_id": actor.UserID})
	}
	return err
}

func (s *CatalogService) CreateProduct(ctx context.Context, actor model.Actor, req CreateProductRequest) (*model.Product, error) {
	sku := strings.TrimSpace(req.SKU)
	if sku == "" || strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Field: "sku", Details: "sku and name are required"}
	}
	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}

	product := model.Product{ID: uuid.New(), SKU: sku, Name: req.Name, Unit: unit, AllowsFraction: req.AllowsFraction}
	err := s.create(ctx, actor, "CreateProduct", func(txCtx context.Context, uow repository.UnitOfWork) error {
		_, err := uow.Products().FindBySKU(txCtx, sku)
		if err == nil {
			return &ValidationError{Field: "sku", Details: fmt.Sprintf("%s already exists", sku)}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check sku: %w", err)
		}
		if err := uow.Products().Create(txCtx, &product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return writeAudit(txCtx, uow, actor, model.ActionCreateProduct, product.ID.String(), product.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *CatalogService) CreateBranch(ctx context.Context, actor model.Actor, req CreateBranchRequest) (*model.Branch, error) {
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Field: "code", Details: "code and name are required"}
	}

	branch := model.Branch{ID: uuid.New(), Code: strings.TrimSpace(req.Code), Name: req.Name}
	err := s.create(ctx, actor, "CreateBranch", func(txCtx context.Context, uow repository.UnitOfWork) error {
		if err := uow.Branches().Create(txCtx, &branch); err != nil {
			return fmt.Errorf("failed to create branch: %w", err)
		}
		return writeAudit(txCtx, uow, actor, model.ActionCreateBranch, branch.ID.String(), branch.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *CatalogService) CreatePartner(ctx context.Context, actor model.Actor, req CreatePartnerRequest) (*model.Partner, error) {
	if !validPartnerTypes[req.Type] {
		return nil, &ValidationError{Field: "type", Details: "must be one of: CUSTOMER, SUPPLIER, BOTH"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Field: "name", Details: "is required"}
	}

	partner := model.Partner{ID: uuid.New(), Name: req.Name, Type: req.Type, IsActive: true}
	err := s.create(ctx, actor, "CreatePartner", func(txCtx context.Context, uow repository.UnitOfWork) error {
		if err := uow.Partners().Create(txCtx, &partner); err != nil {
			return fmt.Errorf("failed to create partner: %w", err)
		}
		return writeAudit(txCtx, uow, actor, model.ActionCreatePartner, partner.ID.String(), partner.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (s *CatalogService) CreateUser(ctx context.Context, actor model.Actor, req CreateUserRequest) (*model.User, error) {
	if req.Role != model.RoleSuperAdmin && req.Role != model.RoleStaff {
		return nil, &ValidationError{Field: "role", Details: "must be super_admin or staff"}
	}

	user := model.User{ID: uuid.New(), Username: req.Username, Role: req.Role}
	err := s.create(ctx, actor, "CreateUser", func(txCtx context.Context, uow repository.UnitOfWork) error {
		if err := uow.Users().Create(txCtx, &user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return writeAudit(txCtx, uow, actor, model.ActionCreateUser, user.ID.String(), user.Username, req)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GrantBranchAccess sets the user's level on a branch, replacing any earlier grant
func (s *CatalogService) GrantBranchAccess(ctx context.Context, actor model.Actor, req GrantAccessRequest) (*model.BranchPermission, error) {
	if req.Level != model.AccessViewOnly && req.Level != model.AccessFullAccess {
		return nil, &ValidationError{Field: "level", Details: "must be view_only or full_access"}
	}

	perm := model.BranchPermission{UserID: req.UserID, BranchID: req.BranchID, Level: req.Level}
	err := s.create(ctx, actor, "GrantBranchAccess", func(txCtx context.Context, uow repository.UnitOfWork) error {
		if _, err := uow.Users().GetByID(txCtx, req.UserID); err != nil {
			return notFound(err, "user", req.UserID)
		}
		if _, err := uow.Branches().FindByID(txCtx, req.BranchID); err != nil {
			return notFound(err, "branch", req.BranchID)
		}
		if err := uow.Permissions().Grant(txCtx, &perm); err != nil {
			return fmt.Errorf("failed to grant branch access: %w", err)
		}
		return writeAudit(txCtx, uow, actor, model.ActionGrantAccess, req.UserID.String(), req.BranchID.String(), req)
	})
	if err != nil {
		return nil, err
	}

	if cache, ok := s.opts.Guard.(permissionCache); ok {
		cache.Forget(req.UserID, req.BranchID)
	}
	return &perm, nil
}
