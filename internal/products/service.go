package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/internal/categories"
	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
)

// announcer fans product lifecycle notifications out to customers.
type announcer interface {
	ProductCreated(ctx context.Context, product *models.Product)
}

// Service defines catalog product operations. Reads are public; writes
// require a staff identity.
type Service interface {
	Create(ctx context.Context, identity auth.Identity, req CreateRequest) (*models.Product, error)
	List(ctx context.Context, identity auth.Identity, input ListInput) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	Update(ctx context.Context, identity auth.Identity, id uuid.UUID, req UpdateRequest) (*models.Product, error)
	Delete(ctx context.Context, identity auth.Identity, id uuid.UUID) error
}

type service struct {
	repo     Repository
	announce announcer
}

// NewService builds a product service with the required dependencies.
func NewService(repo Repository, announce announcer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if announce == nil {
		return nil, fmt.Errorf("announcer required")
	}
	return &service{repo: repo, announce: announce}, nil
}

func (s *service) Create(ctx context.Context, identity auth.Identity, req CreateRequest) (*models.Product, error) {
	if !identity.IsStaff {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}

	price, err := parseMoney(req.Price, "price")
	if err != nil {
		return nil, err
	}
	discount := decimal.Zero
	if strings.TrimSpace(req.DiscountPercent) != "" {
		discount, err = parsePercent(req.DiscountPercent)
		if err != nil {
			return nil, err
		}
	}
	if req.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}

	categoryID, err := parseOptionalUUID(req.CategoryID, "category_id")
	if err != nil {
		return nil, err
	}

	product := &models.Product{
		CategoryID:      categoryID,
		Name:            strings.TrimSpace(req.Name),
		Price:           price,
		DiscountPercent: discount,
		Stock:           req.Stock,
		IsActive:        true,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = categories.Slugify(product.Name)
	}
	product.Slug = slug
	if desc := strings.TrimSpace(req.Description); desc != "" {
		product.Description = &desc
	}

	created, err := s.repo.Create(ctx, product)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_products_slug") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product slug already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}

	if created.IsActive {
		s.announce.ProductCreated(ctx, created)
	}
	return created, nil
}

func (s *service) List(ctx context.Context, identity auth.Identity, input ListInput) (*ListResult, error) {
	if input.Filters.IncludeInactive && !identity.IsStaff {
		input.Filters.IncludeInactive = false
	}
	if input.Filters.PriceMin != nil && input.Filters.PriceMin.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_min cannot be negative")
	}
	if input.Filters.PriceMax != nil && input.Filters.PriceMax.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_max cannot be negative")
	}

	result, err := s.repo.List(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	product, err := s.repo.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, identity auth.Identity, id uuid.UUID, req UpdateRequest) (*models.Product, error) {
	if !identity.IsStaff {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Slug != nil {
		product.Slug = strings.TrimSpace(*req.Slug)
	}
	if req.Description != nil {
		if desc := strings.TrimSpace(*req.Description); desc != "" {
			product.Description = &desc
		} else {
			product.Description = nil
		}
	}
	if req.CategoryID != nil {
		categoryID, err := parseOptionalUUID(req.CategoryID, "category_id")
		if err != nil {
			return nil, err
		}
		product.CategoryID = categoryID
	}
	if req.Price != nil {
		price, err := parseMoney(*req.Price, "price")
		if err != nil {
			return nil, err
		}
		product.Price = price
	}
	if req.DiscountPercent != nil {
		discount, err := parsePercent(*req.DiscountPercent)
		if err != nil {
			return nil, err
		}
		product.DiscountPercent = discount
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
		}
		product.Stock = *req.Stock
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "uq_products_slug") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product slug already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return product, nil
}

func (s *service) Delete(ctx context.Context, identity auth.Identity, id uuid.UUID) error {
	if !identity.IsStaff {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	affected, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func parseMoney(value, field string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be a decimal number", field))
	}
	if parsed.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s cannot be negative", field))
	}
	return parsed.Round(2), nil
}

func parsePercent(value string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "discount_percent must be a decimal number")
	}
	if parsed.IsNegative() || parsed.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "discount_percent must be between 0 and 100")
	}
	return parsed.Round(2), nil
}

func parseOptionalUUID(value *string, field string) (*uuid.UUID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(strings.TrimSpace(*value))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be a uuid", field))
	}
	return &parsed, nil
}
