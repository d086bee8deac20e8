package carts

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("STOREFRONT_DB_DSN")
	if dsn == "" {
		t.Skip("STOREFRONT_DB_DSN is not set")
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return conn
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func seedPGUserAndProduct(t *testing.T, conn *gorm.DB, stock int) (uuid.UUID, *models.Product) {
	t.Helper()

	user := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "Shopper",
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	product := &models.Product{
		Name:     "Concurrency Mug",
		Slug:     "concurrency-mug-" + uuid.NewString(),
		Price:    decimal.RequireFromString("9.99"),
		Stock:    stock,
		IsActive: true,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	t.Cleanup(func() {
		conn.Where("user_id = ?", user.ID).Delete(&models.Cart{})
		conn.Delete(product)
		conn.Delete(user)
	})
	return user.ID, product
}

func TestConcurrentAddsMergeUnderLock(t *testing.T) {
	conn := openTestDB(t)
	svc, err := NewService(NewRepository(conn), gormTxRunner{db: conn}, nil)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	userID, product := seedPGUserAndProduct(t, conn, 100)
	identity := auth.Identity{UserID: userID}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddItem(context.Background(), identity, AddItemRequest{
				ProductID: product.ID.String(),
				Quantity:  1,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	var items []models.CartItem
	if err := conn.
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ? AND cart_items.product_id = ?", userID, product.ID).
		Find(&items).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(items))
	}
	if items[0].Quantity != workers {
		t.Fatalf("expected quantity %d, got %d", workers, items[0].Quantity)
	}
}

func TestConcurrentAddsRespectStockCeiling(t *testing.T) {
	conn := openTestDB(t)
	svc, err := NewService(NewRepository(conn), gormTxRunner{db: conn}, nil)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	userID, product := seedPGUserAndProduct(t, conn, 5)
	identity := auth.Identity{UserID: userID}

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddItem(context.Background(), identity, AddItemRequest{
				ProductID: product.ID.String(),
				Quantity:  2,
			})
		}(i)
	}
	wg.Wait()

	rejected := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		appErr := pkgerrors.As(err)
		if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientStock {
			t.Fatalf("unexpected error: %v", err)
		}
		rejected++
	}
	if rejected != 2 {
		t.Fatalf("expected 2 rejected adds, got %d", rejected)
	}

	var items []models.CartItem
	if err := conn.
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ? AND cart_items.product_id = ?", userID, product.ID).
		Find(&items).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 4 {
		t.Fatalf("expected a single line with quantity 4, got %+v", items)
	}
}
