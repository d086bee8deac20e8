package categories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
)

type stubCategoryRepo struct {
	byID      map[uuid.UUID]*models.Category
	createErr error
}

func newStubCategoryRepo() *stubCategoryRepo {
	return &stubCategoryRepo{byID: map[uuid.UUID]*models.Category{}}
}

func (s *stubCategoryRepo) Create(_ context.Context, category *models.Category) (*models.Category, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	s.byID[category.ID] = category
	return category, nil
}

func (s *stubCategoryRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Category, error) {
	if category, ok := s.byID[id]; ok {
		return category, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCategoryRepo) FindBySlug(_ context.Context, slug string) (*models.Category, error) {
	for _, category := range s.byID {
		if category.Slug == slug {
			return category, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCategoryRepo) List(_ context.Context) ([]models.Category, error) {
	out := make([]models.Category, 0, len(s.byID))
	for _, category := range s.byID {
		out = append(out, *category)
	}
	return out, nil
}

func (s *stubCategoryRepo) Update(_ context.Context, category *models.Category) error {
	s.byID[category.ID] = category
	return nil
}

func (s *stubCategoryRepo) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	if _, ok := s.byID[id]; !ok {
		return 0, nil
	}
	delete(s.byID, id)
	return 1, nil
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Home & Garden":  "home-garden",
		"  Electronics ": "electronics",
		"Déjà Vu":        "d-j-vu",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateRequiresStaff(t *testing.T) {
	t.Parallel()

	svc, err := NewService(newStubCategoryRepo())
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	_, err = svc.Create(context.Background(), auth.Identity{UserID: uuid.New()}, UpsertRequest{Name: "Books"})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateGeneratesSlug(t *testing.T) {
	t.Parallel()

	repo := newStubCategoryRepo()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	created, err := svc.Create(context.Background(), auth.Identity{UserID: uuid.New(), IsStaff: true}, UpsertRequest{
		Name: "Home & Garden",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Slug != "home-garden" {
		t.Fatalf("unexpected slug %q", created.Slug)
	}
}

func TestCreateDuplicateSlugIsConflict(t *testing.T) {
	t.Parallel()

	repo := newStubCategoryRepo()
	repo.createErr = errDuplicate("uq_categories_slug")
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	_, err = svc.Create(context.Background(), auth.Identity{UserID: uuid.New(), IsStaff: true}, UpsertRequest{
		Name: "Books",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetBySlugNotFound(t *testing.T) {
	t.Parallel()

	svc, err := NewService(newStubCategoryRepo())
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	_, err = svc.GetBySlug(context.Background(), "missing")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

type errDuplicate string

func (e errDuplicate) Error() string {
	return "duplicate key value violates unique constraint \"" + string(e) + "\""
}
