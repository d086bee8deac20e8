package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
)

type stubProductRepo struct {
	byID      map[uuid.UUID]*models.Product
	createErr error
}

func newStubProductRepo() *stubProductRepo {
	return &stubProductRepo{byID: map[uuid.UUID]*models.Product{}}
}

func (s *stubProductRepo) WithTx(_ *gorm.DB) Repository { return s }

func (s *stubProductRepo) Create(_ context.Context, product *models.Product) (*models.Product, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	s.byID[product.ID] = product
	return product, nil
}

func (s *stubProductRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := s.byID[id]
	if !ok || product.IsDeleted {
		return nil, gorm.ErrRecordNotFound
	}
	return product, nil
}

func (s *stubProductRepo) FindBySlug(_ context.Context, slug string) (*models.Product, error) {
	for _, product := range s.byID {
		if product.Slug == slug && !product.IsDeleted {
			return product, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubProductRepo) List(_ context.Context, _ ListInput) (*ListResult, error) {
	out := make([]models.Product, 0, len(s.byID))
	for _, product := range s.byID {
		if !product.IsDeleted {
			out = append(out, *product)
		}
	}
	return &ListResult{Products: out}, nil
}

func (s *stubProductRepo) Update(_ context.Context, product *models.Product) error {
	s.byID[product.ID] = product
	return nil
}

func (s *stubProductRepo) SoftDelete(_ context.Context, id uuid.UUID) (int64, error) {
	product, ok := s.byID[id]
	if !ok || product.IsDeleted {
		return 0, nil
	}
	product.IsDeleted = true
	product.IsActive = false
	return 1, nil
}

type stubAnnouncer struct {
	created []uuid.UUID
}

func (s *stubAnnouncer) ProductCreated(_ context.Context, product *models.Product) {
	s.created = append(s.created, product.ID)
}

func staffIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), IsStaff: true}
}

func TestCreateRequiresStaff(t *testing.T) {
	t.Parallel()

	svc, err := NewService(newStubProductRepo(), &stubAnnouncer{})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	_, err = svc.Create(context.Background(), auth.Identity{UserID: uuid.New()}, CreateRequest{
		Name:  "Mug",
		Price: "9.99",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateAnnouncesActiveProduct(t *testing.T) {
	t.Parallel()

	repo := newStubProductRepo()
	announcer := &stubAnnouncer{}
	svc, err := NewService(repo, announcer)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	created, err := svc.Create(context.Background(), staffIdentity(), CreateRequest{
		Name:  "Ceramic Mug",
		Price: "9.99",
		Stock: 25,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Slug != "ceramic-mug" {
		t.Fatalf("unexpected slug %q", created.Slug)
	}
	if created.Price.StringFixed(2) != "9.99" {
		t.Fatalf("unexpected price %s", created.Price)
	}
	if len(announcer.created) != 1 || announcer.created[0] != created.ID {
		t.Fatal("expected a product-created announcement")
	}
}

func TestCreateInactiveIsNotAnnounced(t *testing.T) {
	t.Parallel()

	announcer := &stubAnnouncer{}
	svc, err := NewService(newStubProductRepo(), announcer)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	inactive := false
	if _, err := svc.Create(context.Background(), staffIdentity(), CreateRequest{
		Name:     "Draft Product",
		Price:    "1.00",
		IsActive: &inactive,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(announcer.created) != 0 {
		t.Fatal("inactive products must not be announced")
	}
}

func TestCreateRejectsBadPrice(t *testing.T) {
	t.Parallel()

	svc, err := NewService(newStubProductRepo(), &stubAnnouncer{})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	for _, price := range []string{"", "abc", "-3.50"} {
		_, err := svc.Create(context.Background(), staffIdentity(), CreateRequest{
			Name:  "Mug",
			Price: price,
		})
		if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
			t.Fatalf("price %q: expected validation error, got %v", price, err)
		}
	}
}

func TestUpdatePatchesOnlyProvidedFields(t *testing.T) {
	t.Parallel()

	repo := newStubProductRepo()
	svc, err := NewService(repo, &stubAnnouncer{})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	created, err := svc.Create(context.Background(), staffIdentity(), CreateRequest{
		Name:  "Ceramic Mug",
		Price: "9.99",
		Stock: 5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newStock := 42
	updated, err := svc.Update(context.Background(), staffIdentity(), created.ID, UpdateRequest{
		Stock: &newStock,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Stock != 42 {
		t.Fatalf("stock not updated: %d", updated.Stock)
	}
	if updated.Name != "Ceramic Mug" || updated.Price.StringFixed(2) != "9.99" {
		t.Fatal("untouched fields must be preserved")
	}
}

func TestDeleteIsSoftAndIdempotentNotFound(t *testing.T) {
	t.Parallel()

	repo := newStubProductRepo()
	svc, err := NewService(repo, &stubAnnouncer{})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	created, err := svc.Create(context.Background(), staffIdentity(), CreateRequest{
		Name:  "Mug",
		Price: "9.99",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), staffIdentity(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err = svc.Get(context.Background(), created.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("deleted product should be hidden, got %v", err)
	}

	err = svc.Delete(context.Background(), staffIdentity(), created.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}
