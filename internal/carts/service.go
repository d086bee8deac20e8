package carts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
	"github.com/accra-labs/storefront-backend/pkg/metrics"
)

const (
	msgNotEnoughStock      = "Not enough stock available."
	msgNotEnoughStockTotal = "Not enough stock available for requested total quantity."
)

// AddItemRequest carries the inputs for adding a product to the cart. An
// omitted quantity means one unit.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"omitempty,gte=1"`
}

// UpdateItemRequest carries the replacement quantity for a cart item.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

// AddItemResult reports the post-merge item and whether a new row was created.
type AddItemResult struct {
	Item    *models.CartItem `json:"item"`
	Created bool             `json:"created"`
}

// CartView is the cart with derived totals. Totals are advisory: nothing is
// reserved until an order is placed.
type CartView struct {
	Cart     *models.Cart    `json:"cart"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Currency string          `json:"currency"`
}

// Service defines cart operations scoped to the calling user.
type Service interface {
	AddItem(ctx context.Context, identity auth.Identity, req AddItemRequest) (*AddItemResult, error)
	UpdateItem(ctx context.Context, identity auth.Identity, itemID uuid.UUID, req UpdateItemRequest) (*models.CartItem, error)
	RemoveItem(ctx context.Context, identity auth.Identity, itemID uuid.UUID) error
	GetCart(ctx context.Context, identity auth.Identity, forUser *uuid.UUID) (*CartView, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	metrics *metrics.CommerceMetrics
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, tx txRunner, m *metrics.CommerceMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, metrics: m}, nil
}

// AddItem merges the requested quantity into any existing line for the same
// product. The product row is locked first so two concurrent adds for the same
// product serialize, then the item row; stock is validated against the merged
// total while both locks are held.
func (s *service) AddItem(ctx context.Context, identity auth.Identity, req AddItemRequest) (*AddItemResult, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id must be a uuid")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var result AddItemResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := repo.FindProductForUpdate(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return classifyLockErr(err, "lock product")
		}
		if !product.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
		}

		cart, err := repo.GetOrCreateByUser(ctx, identity.UserID)
		if err != nil {
			if db.IsUniqueViolation(err, "uq_carts_user_id") {
				return pkgerrors.New(pkgerrors.CodeConflict, "cart already being created")
			}
			return classifyLockErr(err, "load cart")
		}

		existing, err := repo.FindItemForUpdate(ctx, cart.ID, product.ID)
		switch {
		case err == nil:
			merged := existing.Quantity + req.Quantity
			if merged > product.Stock {
				s.metrics.IncStockConflict("cart_add")
				return pkgerrors.New(pkgerrors.CodeInsufficientStock, msgNotEnoughStockTotal).
					WithDetails(stockDetails(product, merged))
			}
			if err := repo.UpdateItemQuantity(ctx, existing.ID, merged); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart item")
			}
			existing.Quantity = merged
			result = AddItemResult{Item: existing, Created: false}
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			if req.Quantity > product.Stock {
				s.metrics.IncStockConflict("cart_add")
				return pkgerrors.New(pkgerrors.CodeInsufficientStock, msgNotEnoughStock).
					WithDetails(stockDetails(product, req.Quantity))
			}
			item := &models.CartItem{
				CartID:    cart.ID,
				ProductID: product.ID,
				Quantity:  req.Quantity,
			}
			created, err := repo.CreateItem(ctx, item)
			if err != nil {
				// A concurrent add won the insert race on (cart_id, product_id).
				if db.IsUniqueViolation(err, "uq_cart_items_cart_product") {
					return pkgerrors.New(pkgerrors.CodeConflict, "cart item changed concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
			result = AddItemResult{Item: created, Created: true}
			return nil

		default:
			return classifyLockErr(err, "lock cart item")
		}
	})
	if err != nil {
		s.metrics.IncCartMutation("add", "error")
		return nil, err
	}
	s.metrics.IncCartMutation("add", "ok")
	return &result, nil
}

// UpdateItem replaces the line quantity after re-checking stock under the
// product lock.
func (s *service) UpdateItem(ctx context.Context, identity auth.Identity, itemID uuid.UUID, req UpdateItemRequest) (*models.CartItem, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if req.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var updated *models.CartItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.GetOrCreateByUser(ctx, identity.UserID)
		if err != nil {
			return classifyLockErr(err, "load cart")
		}
		item, err := repo.FindItemByID(ctx, cart.ID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return classifyLockErr(err, "load cart item")
		}

		product, err := repo.FindProductForUpdate(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return classifyLockErr(err, "lock product")
		}
		if req.Quantity > product.Stock {
			s.metrics.IncStockConflict("cart_update")
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, msgNotEnoughStock).
				WithDetails(stockDetails(product, req.Quantity))
		}

		if err := repo.UpdateItemQuantity(ctx, item.ID, req.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		item.Quantity = req.Quantity
		updated = item
		return nil
	})
	if err != nil {
		s.metrics.IncCartMutation("update", "error")
		return nil, err
	}
	s.metrics.IncCartMutation("update", "ok")
	return updated, nil
}

func (s *service) RemoveItem(ctx context.Context, identity auth.Identity, itemID uuid.UUID) error {
	if identity.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.GetOrCreateByUser(ctx, identity.UserID)
		if err != nil {
			return classifyLockErr(err, "load cart")
		}
		affected, err := repo.DeleteItem(ctx, cart.ID, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncCartMutation("remove", "error")
		return err
	}
	s.metrics.IncCartMutation("remove", "ok")
	return nil
}

// GetCart returns the caller's cart, creating an empty one on first read.
// Staff may pass forUser to inspect another user's cart; inspection never
// creates a cart on that user's behalf.
func (s *service) GetCart(ctx context.Context, identity auth.Identity, forUser *uuid.UUID) (*CartView, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	userID := identity.UserID
	if forUser != nil && *forUser != identity.UserID {
		if !identity.IsStaff {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
		}
		userID = *forUser
	}

	cart, err := s.repo.FindByUserWithItems(ctx, userID)
	if err != nil {
		switch {
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		case userID != identity.UserID:
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		default:
			if cart, err = s.repo.GetOrCreateByUser(ctx, userID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
		}
	}

	subtotal := decimal.Zero
	for _, item := range cart.Items {
		if item.Product == nil {
			continue
		}
		line := item.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	return &CartView{
		Cart:     cart,
		Subtotal: subtotal.Round(2),
		Currency: "USD",
	}, nil
}

func stockDetails(product *models.Product, requested int) map[string]any {
	return map[string]any{
		"product_id": product.ID,
		"available":  product.Stock,
		"requested":  requested,
	}
}

// classifyLockErr maps lock timeouts and deadlocks onto a retryable conflict.
func classifyLockErr(err error, op string) error {
	if db.IsLockContention(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, op+": lock contention")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
