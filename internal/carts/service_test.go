package carts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
)

type stubCartRepo struct {
	products map[uuid.UUID]*models.Product
	carts    map[uuid.UUID]*models.Cart
	items    map[uuid.UUID]*models.CartItem
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{
		products: map[uuid.UUID]*models.Product{},
		carts:    map[uuid.UUID]*models.Cart{},
		items:    map[uuid.UUID]*models.CartItem{},
	}
}

func (s *stubCartRepo) WithTx(_ *gorm.DB) Repository { return s }

func (s *stubCartRepo) GetOrCreateByUser(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	for _, cart := range s.carts {
		if cart.UserID == userID {
			return cart, nil
		}
	}
	cart := &models.Cart{ID: uuid.New(), UserID: userID}
	s.carts[cart.ID] = cart
	return cart, nil
}

func (s *stubCartRepo) FindByUserWithItems(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	for _, cart := range s.carts {
		if cart.UserID == userID {
			view := *cart
			view.Items = nil
			for _, item := range s.items {
				if item.CartID == cart.ID {
					line := *item
					line.Product = s.products[item.ProductID]
					view.Items = append(view.Items, line)
				}
			}
			return &view, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCartRepo) FindProductForUpdate(_ context.Context, productID uuid.UUID) (*models.Product, error) {
	product, ok := s.products[productID]
	if !ok || product.IsDeleted {
		return nil, gorm.ErrRecordNotFound
	}
	return product, nil
}

func (s *stubCartRepo) FindItemForUpdate(_ context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	for _, item := range s.items {
		if item.CartID == cartID && item.ProductID == productID {
			return item, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCartRepo) FindItemByID(_ context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	item, ok := s.items[itemID]
	if !ok || item.CartID != cartID {
		return nil, gorm.ErrRecordNotFound
	}
	return item, nil
}

func (s *stubCartRepo) CreateItem(_ context.Context, item *models.CartItem) (*models.CartItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.items[item.ID] = item
	return item, nil
}

func (s *stubCartRepo) UpdateItemQuantity(_ context.Context, itemID uuid.UUID, quantity int) error {
	if item, ok := s.items[itemID]; ok {
		item.Quantity = quantity
	}
	return nil
}

func (s *stubCartRepo) DeleteItem(_ context.Context, cartID, itemID uuid.UUID) (int64, error) {
	item, ok := s.items[itemID]
	if !ok || item.CartID != cartID {
		return 0, nil
	}
	delete(s.items, itemID)
	return 1, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, stubTxRunner{}, nil)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return svc
}

func seedProduct(repo *stubCartRepo, stock int) *models.Product {
	product := &models.Product{
		ID:       uuid.New(),
		Name:     "Mug",
		Slug:     "mug",
		Price:    decimal.RequireFromString("9.99"),
		Stock:    stock,
		IsActive: true,
	}
	repo.products[product.ID] = product
	return product
}

func TestAddItemCreatesLine(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	svc := newTestService(t, repo)
	identity := auth.Identity{UserID: uuid.New()}

	result, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a new line")
	}
	if result.Item.Quantity != 3 {
		t.Fatalf("unexpected quantity %d", result.Item.Quantity)
	}
}

func TestAddItemDefaultsQuantityToOne(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	svc := newTestService(t, repo)

	result, err := svc.AddItem(context.Background(), auth.Identity{UserID: uuid.New()}, AddItemRequest{
		ProductID: product.ID.String(),
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if result.Item.Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", result.Item.Quantity)
	}
}

func TestAddItemMergesExistingLine(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	svc := newTestService(t, repo)
	identity := auth.Identity{UserID: uuid.New()}

	if _, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  3,
	}); err != nil {
		t.Fatalf("first add: %v", err)
	}

	result, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  4,
	})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if result.Created {
		t.Fatal("merge must not create a second line")
	}
	if result.Item.Quantity != 7 {
		t.Fatalf("expected merged quantity 7, got %d", result.Item.Quantity)
	}
	if len(repo.items) != 1 {
		t.Fatalf("expected a single line, got %d", len(repo.items))
	}
}

func TestAddItemMergeExceedingStock(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 5)
	svc := newTestService(t, repo)
	identity := auth.Identity{UserID: uuid.New()}

	if _, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  4,
	}); err != nil {
		t.Fatalf("first add: %v", err)
	}

	_, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if appErr.Message() != msgNotEnoughStockTotal {
		t.Fatalf("unexpected message %q", appErr.Message())
	}

	// The original line must be untouched.
	for _, item := range repo.items {
		if item.Quantity != 4 {
			t.Fatalf("existing line mutated to %d", item.Quantity)
		}
	}
}

func TestAddItemNewLineExceedingStock(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 2)
	svc := newTestService(t, repo)

	_, err := svc.AddItem(context.Background(), auth.Identity{UserID: uuid.New()}, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  3,
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if appErr.Message() != msgNotEnoughStock {
		t.Fatalf("unexpected message %q", appErr.Message())
	}
	if len(repo.items) != 0 {
		t.Fatal("no line should have been created")
	}
}

func TestAddItemInactiveProduct(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	product.IsActive = false
	svc := newTestService(t, repo)

	_, err := svc.AddItem(context.Background(), auth.Identity{UserID: uuid.New()}, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  1,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateItemReChecksStock(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 5)
	svc := newTestService(t, repo)
	identity := auth.Identity{UserID: uuid.New()}

	result, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	updated, err := svc.UpdateItem(context.Background(), identity, result.Item.ID, UpdateItemRequest{Quantity: 5})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.Quantity != 5 {
		t.Fatalf("unexpected quantity %d", updated.Quantity)
	}

	_, err = svc.UpdateItem(context.Background(), identity, result.Item.ID, UpdateItemRequest{Quantity: 6})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestUpdateItemScopedToOwner(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	svc := newTestService(t, repo)
	owner := auth.Identity{UserID: uuid.New()}
	stranger := auth.Identity{UserID: uuid.New()}

	result, err := svc.AddItem(context.Background(), owner, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	_, err = svc.UpdateItem(context.Background(), stranger, result.Item.ID, UpdateItemRequest{Quantity: 1})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("foreign item must be invisible, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	svc := newTestService(t, repo)
	identity := auth.Identity{UserID: uuid.New()}

	result, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	if err := svc.RemoveItem(context.Background(), identity, result.Item.ID); err != nil {
		t.Fatalf("remove item: %v", err)
	}

	err = svc.RemoveItem(context.Background(), identity, result.Item.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
}

func TestGetCartComputesSubtotal(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	product.DiscountPercent = decimal.RequireFromString("10")
	svc := newTestService(t, repo)
	identity := auth.Identity{UserID: uuid.New()}

	if _, err := svc.AddItem(context.Background(), identity, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	view, err := svc.GetCart(context.Background(), identity, nil)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	// 9.99 with 10% off = 8.99, times 2 = 17.98
	if view.Subtotal.StringFixed(2) != "17.98" {
		t.Fatalf("unexpected subtotal %s", view.Subtotal)
	}
}

func TestGetCartCreatesEmptyCart(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	svc := newTestService(t, repo)

	view, err := svc.GetCart(context.Background(), auth.Identity{UserID: uuid.New()}, nil)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(view.Cart.Items) != 0 {
		t.Fatal("expected an empty cart")
	}
	if !view.Subtotal.IsZero() {
		t.Fatalf("expected zero subtotal, got %s", view.Subtotal)
	}
}

func TestGetCartForOtherUserRequiresStaff(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	product := seedProduct(repo, 10)
	svc := newTestService(t, repo)
	shopper := auth.Identity{UserID: uuid.New()}

	if _, err := svc.AddItem(context.Background(), shopper, AddItemRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	_, err := svc.GetCart(context.Background(), auth.Identity{UserID: uuid.New()}, &shopper.UserID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	view, err := svc.GetCart(context.Background(), auth.Identity{UserID: uuid.New(), IsStaff: true}, &shopper.UserID)
	if err != nil {
		t.Fatalf("staff get cart: %v", err)
	}
	if view.Cart.UserID != shopper.UserID {
		t.Fatal("expected the shopper's cart")
	}
	if len(view.Cart.Items) != 1 || view.Cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected cart contents %+v", view.Cart.Items)
	}
}

func TestGetCartForOtherUserNeverCreates(t *testing.T) {
	t.Parallel()

	repo := newStubCartRepo()
	svc := newTestService(t, repo)
	staff := auth.Identity{UserID: uuid.New(), IsStaff: true}
	shopper := uuid.New()

	_, err := svc.GetCart(context.Background(), staff, &shopper)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(repo.carts) != 0 {
		t.Fatal("inspection must not create a cart")
	}
}
