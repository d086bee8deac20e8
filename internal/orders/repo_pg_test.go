package orders

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
	"github.com/accra-labs/storefront-backend/pkg/enums"
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

type noopNotifier struct{}

func (noopNotifier) OrderPlaced(context.Context, *models.Order) {}

func (noopNotifier) OrderStatusChanged(context.Context, *models.Order, enums.OrderStatus) {}

func seedPGUserAndProduct(t *testing.T, conn *gorm.DB, stock int) (uuid.UUID, *models.Product) {
	t.Helper()

	user := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "Buyer",
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	product := &models.Product{
		Name:     "Checkout Mug",
		Slug:     "checkout-mug-" + uuid.NewString(),
		Price:    decimal.RequireFromString("9.99"),
		Stock:    stock,
		IsActive: true,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	t.Cleanup(func() {
		conn.Exec("DELETE FROM order_items WHERE product_id = ?", product.ID)
		conn.Where("user_id = ?", user.ID).Delete(&models.Order{})
		conn.Delete(product)
		conn.Delete(user)
	})
	return user.ID, product
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	conn := openTestDB(t)
	svc, err := NewService(NewRepository(conn), gormTxRunner{db: conn}, noopNotifier{}, nil)
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
			_, errs[i] = svc.Create(context.Background(), identity, CreateOrderRequest{
				Items: []OrderLineInput{{ProductID: product.ID.String(), Quantity: 2}},
			})
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		appErr := pkgerrors.As(err)
		if appErr == nil || appErr.Code() != pkgerrors.CodeInsufficientStock {
			t.Fatalf("unexpected error: %v", err)
		}
		rejected++
	}
	if succeeded != 2 || rejected != 2 {
		t.Fatalf("expected 2 successes and 2 rejections, got %d/%d", succeeded, rejected)
	}

	var remaining models.Product
	if err := conn.First(&remaining, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if remaining.Stock != 1 {
		t.Fatalf("expected stock 1, got %d", remaining.Stock)
	}
}

func TestOrderTotalDerivedInDatabase(t *testing.T) {
	conn := openTestDB(t)
	svc, err := NewService(NewRepository(conn), gormTxRunner{db: conn}, noopNotifier{}, nil)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	userID, product := seedPGUserAndProduct(t, conn, 50)
	identity := auth.Identity{UserID: userID}

	order, err := svc.Create(context.Background(), identity, CreateOrderRequest{
		Items: []OrderLineInput{{ProductID: product.ID.String(), Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TotalAmount.StringFixed(2) != "29.97" {
		t.Fatalf("unexpected total %s", order.TotalAmount)
	}

	updated, err := svc.UpdateItem(context.Background(), identity, order.ID, order.Items[0].ID, UpdateItemRequest{Quantity: 5})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.TotalAmount.StringFixed(2) != "49.95" {
		t.Fatalf("unexpected total %s", updated.TotalAmount)
	}
}
