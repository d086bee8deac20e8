package categories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
)

// Service defines catalog category operations. Reads are public; writes
// require a staff identity.
type Service interface {
	Create(ctx context.Context, identity auth.Identity, req UpsertRequest) (*models.Category, error)
	List(ctx context.Context) ([]models.Category, error)
	GetBySlug(ctx context.Context, slug string) (*models.Category, error)
	Update(ctx context.Context, identity auth.Identity, id uuid.UUID, req UpsertRequest) (*models.Category, error)
	Delete(ctx context.Context, identity auth.Identity, id uuid.UUID) error
}

// UpsertRequest carries the writable category fields.
type UpsertRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"omitempty,max=120"`
	Description string `json:"description" validate:"omitempty,max=1000"`
}

type service struct {
	repo Repository
}

// NewService builds a category service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("categories repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, identity auth.Identity, req UpsertRequest) (*models.Category, error) {
	if !identity.IsStaff {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}

	category := &models.Category{}
	applyUpsert(category, req)

	created, err := s.repo.Create(ctx, category)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_categories_slug") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category slug already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create category")
	}
	return created, nil
}

func (s *service) List(ctx context.Context) ([]models.Category, error) {
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return categories, nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	category, err := s.repo.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	return category, nil
}

func (s *service) Update(ctx context.Context, identity auth.Identity, id uuid.UUID, req UpsertRequest) (*models.Category, error) {
	if !identity.IsStaff {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}

	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}

	applyUpsert(category, req)
	if err := s.repo.Update(ctx, category); err != nil {
		if db.IsUniqueViolation(err, "uq_categories_slug") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category slug already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update category")
	}
	return category, nil
}

func (s *service) Delete(ctx context.Context, identity auth.Identity, id uuid.UUID) error {
	if !identity.IsStaff {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete category")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return nil
}

func applyUpsert(category *models.Category, req UpsertRequest) {
	category.Name = strings.TrimSpace(req.Name)
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = Slugify(category.Name)
	}
	category.Slug = slug
	if desc := strings.TrimSpace(req.Description); desc != "" {
		category.Description = &desc
	} else {
		category.Description = nil
	}
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases the value and collapses non-alphanumeric runs to dashes.
func Slugify(value string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(value), "-")
	return strings.Trim(slug, "-")
}
