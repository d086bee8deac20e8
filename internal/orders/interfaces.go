package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for orders and order items.
//
// The *ForUpdate variants take row locks and are only meaningful inside a
// transaction; callers scope the repository with WithTx first. Lock
// acquisition order is products (sorted by id) before orders before items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindProductsForUpdate(ctx context.Context, productIDs []uuid.UUID) ([]models.Product, error)
	AdjustProductStock(ctx context.Context, productID uuid.UUID, delta int) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindItem(ctx context.Context, orderID, itemID uuid.UUID) (*models.OrderItem, error)
	FindItemForUpdate(ctx context.Context, orderID, itemID uuid.UUID) (*models.OrderItem, error)
	FindItemByProductForUpdate(ctx context.Context, orderID, productID uuid.UUID) (*models.OrderItem, error)
	UpdateItem(ctx context.Context, item *models.OrderItem) error
	DeleteItem(ctx context.Context, orderID, itemID uuid.UUID) (int64, error)
	UpdateTotal(ctx context.Context, orderID uuid.UUID) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	List(ctx context.Context, userID *uuid.UUID, input ListInput) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
