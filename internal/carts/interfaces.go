package carts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for carts and cart items.
//
// The *ForUpdate variants take row locks and are only meaningful inside a
// transaction; callers scope the repository with WithTx first.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetOrCreateByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByUserWithItems(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindProductForUpdate(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindItemForUpdate(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	FindItemByID(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) (*models.CartItem, error)
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
