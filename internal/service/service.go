package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tokosinar/backend/internal/cache"
	"tokosinar/backend/internal/domain"
	"tokosinar/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	valuations cache.ValuationCache
	logger     *logrus.Logger
}

func New(repo store.Repository, valuations cache.ValuationCache, logger *logrus.Logger) *Service {
	if valuations == nil {
		valuations = cache.NoopValuationCache{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Service{
		repo:       repo,
		valuations: valuations,
		logger:     logger,
	}
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

// validateMethodBank is the shared coupling rule for payments and
// expenses: cash never references a bank, transfer and pos always do.
func validateMethodBank(method string, bankID string) error {
	switch method {
	case domain.PaymentMethodCash:
		if bankID != "" {
			return fmt.Errorf("cash payments cannot reference a bank: %w", store.ErrValidation)
		}
	case domain.PaymentMethodTransfer, domain.PaymentMethodPOS:
		if bankID == "" {
			return fmt.Errorf("%s payments require a bank: %w", method, store.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown payment method %q: %w", method, store.ErrValidation)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	s.logger.WithFields(logrus.Fields{
		"actor":  actor.Username,
		"action": action,
		"entity": entityType,
		"id":     entityID,
	}).Info("audit")

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("failed to write audit log")
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.ErrValidation
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: name})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.SellingPrice.IsNegative() || req.CostPrice.IsNegative() {
		return domain.Product{}, fmt.Errorf("negative price: %w", store.ErrValidation)
	}

	category, err := s.repo.GetCategoryByName(ctx, req.Category)
	if err != nil {
		return domain.Product{}, fmt.Errorf("category %q: %w", req.Category, err)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:         req.Name,
		CategoryID:   category.ID,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
	})
	if err != nil {
		return domain.Product{}, err
	}
	created.CategoryName = category.Name

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,category=%s", created.Name, category.Name))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Category != nil {
		category, err := s.repo.GetCategoryByName(ctx, strings.TrimSpace(*req.Category))
		if err != nil {
			return domain.Product{}, fmt.Errorf("category %q: %w", *req.Category, err)
		}
		updated.CategoryID = category.ID
		updated.CategoryName = category.Name
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, fmt.Errorf("negative price: %w", store.ErrValidation)
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return domain.Product{}, fmt.Errorf("negative price: %w", store.ErrValidation)
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

func (s *Service) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	return s.repo.ListVendors(ctx)
}

func (s *Service) CreateVendor(ctx context.Context, req domain.VendorCreateRequest) (domain.Vendor, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Vendor{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Vendor{}, store.ErrValidation
	}

	created, err := s.repo.CreateVendor(ctx, domain.Vendor{
		Name:    name,
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Vendor{}, err
	}

	s.logAudit(ctx, "vendor_create", "vendor", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) DeleteVendor(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteVendor(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "vendor_delete", "vendor", id, "")
	return nil
}

func (s *Service) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	return s.repo.ListBanks(ctx)
}

func (s *Service) CreateBank(ctx context.Context, req domain.BankCreateRequest) (domain.Bank, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Bank{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Bank{}, store.ErrValidation
	}

	created, err := s.repo.CreateBank(ctx, domain.Bank{
		Name:          name,
		AccountName:   strings.TrimSpace(req.AccountName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
	})
	if err != nil {
		return domain.Bank{}, err
	}

	s.logAudit(ctx, "bank_create", "bank", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

// DeleteBank refuses to remove a bank that payments still reference, so
// historical settlement records keep resolving.
func (s *Service) DeleteBank(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteBank(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "bank_delete", "bank", id, "")
	return nil
}

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffUser, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.StaffUser{}, err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || len(req.Password) < 8 {
		return domain.StaffUser{}, fmt.Errorf("username and a password of at least 8 characters are required: %w", store.ErrValidation)
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if role != domain.RoleStaff && role != domain.RoleAdmin {
		return domain.StaffUser{}, fmt.Errorf("unknown role %q: %w", role, store.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.StaffUser{}, err
	}

	now := time.Now().UTC()
	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		Active:    true,
		CreatedAt: now,
	}); err != nil {
		return domain.StaffUser{}, err
	}

	s.logAudit(ctx, "staff_create", "user", username, fmt.Sprintf("role=%s", role))
	return domain.StaffUser{Username: username, Role: role, Active: true, CreatedAt: now}, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffUser, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	staff := make([]domain.StaffUser, 0, len(users))
	for _, u := range users {
		staff = append(staff, domain.StaffUser{
			Username:  u.Username,
			Role:      u.Role,
			Active:    u.Active,
			CreatedAt: u.CreatedAt,
		})
	}
	return staff, nil
}
