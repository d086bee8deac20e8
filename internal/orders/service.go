package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/enums"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
	"github.com/accra-labs/storefront-backend/pkg/metrics"
)

const (
	msgNotEnoughStock = "Not enough stock available."
	msgOrderFrozen    = "order can no longer be modified"
)

// notifier fans order lifecycle notifications out to the owning user.
type notifier interface {
	OrderPlaced(ctx context.Context, order *models.Order)
	OrderStatusChanged(ctx context.Context, order *models.Order, status enums.OrderStatus)
}

// Service defines order operations scoped to the calling user. Item prices are
// snapshotted when a line is created; stock is decremented while the product
// rows are locked, and returned when lines shrink or disappear.
type Service interface {
	Create(ctx context.Context, identity auth.Identity, req CreateOrderRequest) (*models.Order, error)
	Get(ctx context.Context, identity auth.Identity, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, identity auth.Identity, input ListInput) (*ListResult, error)
	AddItem(ctx context.Context, identity auth.Identity, orderID uuid.UUID, req AddItemRequest) (*models.Order, error)
	UpdateItem(ctx context.Context, identity auth.Identity, orderID, itemID uuid.UUID, req UpdateItemRequest) (*models.Order, error)
	DeleteItem(ctx context.Context, identity auth.Identity, orderID, itemID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, identity auth.Identity, orderID uuid.UUID, req UpdateStatusRequest) (*models.Order, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	notify  notifier
	metrics *metrics.CommerceMetrics
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, notify notifier, m *metrics.CommerceMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier required")
	}
	return &service{repo: repo, tx: tx, notify: notify, metrics: m}, nil
}

func (s *service) Create(ctx context.Context, identity auth.Identity, req CreateOrderRequest) (*models.Order, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}

	currency := enums.CurrencyUSD
	if c := strings.ToUpper(strings.TrimSpace(req.Currency)); c != "" {
		parsed, err := enums.ParseCurrency(c)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
		}
		currency = parsed
	}

	var addressID *uuid.UUID
	if strings.TrimSpace(req.AddressID) != "" {
		parsed, err := uuid.Parse(req.AddressID)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "address_id must be a uuid")
		}
		addressID = &parsed
	}

	// Collapse duplicate product lines so each product is locked and
	// validated exactly once.
	quantities := make(map[uuid.UUID]int, len(req.Items))
	for _, line := range req.Items {
		productID, err := uuid.Parse(line.ProductID)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id must be a uuid")
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
		quantities[productID] += line.Quantity
	}
	productIDs := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		productIDs = append(productIDs, id)
	}
	sort.Slice(productIDs, func(i, j int) bool {
		return strings.Compare(productIDs[i].String(), productIDs[j].String()) < 0
	})

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		products, err := repo.FindProductsForUpdate(ctx, productIDs)
		if err != nil {
			return classifyLockErr(err, "lock products")
		}
		byID := make(map[uuid.UUID]*models.Product, len(products))
		for i := range products {
			byID[products[i].ID] = &products[i]
		}
		for _, id := range productIDs {
			product, ok := byID[id]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": id})
			}
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
					WithDetails(map[string]any{"product_id": id})
			}
			if quantities[id] > product.Stock {
				s.metrics.IncStockConflict("order_create")
				return pkgerrors.New(pkgerrors.CodeInsufficientStock, msgNotEnoughStock).
					WithDetails(map[string]any{
						"product_id": id,
						"available":  product.Stock,
						"requested":  quantities[id],
					})
			}
		}

		userID := identity.UserID
		order = &models.Order{
			UserID:    &userID,
			AddressID: addressID,
			Status:    enums.OrderStatusPending,
			Currency:  currency,
		}
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderItem, 0, len(productIDs))
		for _, id := range productIDs {
			product := byID[id]
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: id,
				Quantity:  quantities[id],
				UnitPrice: product.EffectivePrice(),
			}
			item.RecalculateTotal()
			items = append(items, item)
			if err := repo.AdjustProductStock(ctx, id, -quantities[id]); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		if err := repo.UpdateTotal(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order total")
		}
		reloaded, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		order = reloaded
		return nil
	})
	if err != nil {
		s.metrics.IncOrderMutation("create", "error")
		return nil, err
	}
	s.metrics.IncOrderMutation("create", "ok")
	s.notify.OrderPlaced(ctx, order)
	return order, nil
}

func (s *service) Get(ctx context.Context, identity auth.Identity, orderID uuid.UUID) (*models.Order, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	// Other users' orders stay invisible on reads.
	if !identity.IsStaff && !ownedBy(order, identity.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, identity auth.Identity, input ListInput) (*ListResult, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	// Staff browse the whole order book; everyone else sees their own.
	var scope *uuid.UUID
	if !identity.IsStaff {
		userID := identity.UserID
		scope = &userID
	}
	result, err := s.repo.List(ctx, scope, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return result, nil
}

// AddItem appends a line to a pending order, merging into an existing line for
// the same product. A merged line keeps its originally snapshotted unit price.
func (s *service) AddItem(ctx context.Context, identity auth.Identity, orderID uuid.UUID, req AddItemRequest) (*models.Order, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id must be a uuid")
	}
	if req.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		products, err := repo.FindProductsForUpdate(ctx, []uuid.UUID{productID})
		if err != nil {
			return classifyLockErr(err, "lock product")
		}
		if len(products) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		product := &products[0]
		if !product.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
		}

		locked, err := s.lockMutableOrder(ctx, repo, identity, orderID)
		if err != nil {
			return err
		}

		if req.Quantity > product.Stock {
			s.metrics.IncStockConflict("order_add_item")
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, msgNotEnoughStock).
				WithDetails(map[string]any{
					"product_id": product.ID,
					"available":  product.Stock,
					"requested":  req.Quantity,
				})
		}

		existing, err := repo.FindItemByProductForUpdate(ctx, locked.ID, product.ID)
		switch {
		case err == nil:
			existing.Quantity += req.Quantity
			existing.RecalculateTotal()
			if err := repo.UpdateItem(ctx, existing); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge order item")
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			item := models.OrderItem{
				OrderID:   locked.ID,
				ProductID: product.ID,
				Quantity:  req.Quantity,
				UnitPrice: product.EffectivePrice(),
			}
			item.RecalculateTotal()
			if err := repo.CreateItems(ctx, []models.OrderItem{item}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order item")
			}
		default:
			return classifyLockErr(err, "lock order item")
		}

		if err := repo.AdjustProductStock(ctx, product.ID, -req.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		return s.finishMutation(ctx, repo, locked.ID, &order)
	})
	if err != nil {
		s.metrics.IncOrderMutation("add_item", "error")
		return nil, err
	}
	s.metrics.IncOrderMutation("add_item", "ok")
	return order, nil
}

// UpdateItem replaces a line quantity. Stock moves by the delta: growth is
// validated against and taken from stock, shrinkage is returned to it. The
// line keeps its snapshotted unit price.
func (s *service) UpdateItem(ctx context.Context, identity auth.Identity, orderID, itemID uuid.UUID, req UpdateItemRequest) (*models.Order, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if req.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// Read the line unlocked to learn its product, then take locks in
		// the fixed order: product, order, item.
		peek, err := s.peekItem(ctx, repo, identity, orderID, itemID)
		if err != nil {
			return err
		}
		products, err := repo.FindProductsForUpdate(ctx, []uuid.UUID{peek.ProductID})
		if err != nil {
			return classifyLockErr(err, "lock product")
		}
		var product *models.Product
		if len(products) > 0 {
			product = &products[0]
		}

		locked, err := s.lockMutableOrder(ctx, repo, identity, orderID)
		if err != nil {
			return err
		}
		item, err := repo.FindItemForUpdate(ctx, locked.ID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
			}
			return classifyLockErr(err, "lock order item")
		}

		delta := req.Quantity - item.Quantity
		if delta > 0 {
			if product == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			if delta > product.Stock {
				s.metrics.IncStockConflict("order_update_item")
				return pkgerrors.New(pkgerrors.CodeInsufficientStock, msgNotEnoughStock).
					WithDetails(map[string]any{
						"product_id": item.ProductID,
						"available":  product.Stock,
						"requested":  delta,
					})
			}
		}

		item.Quantity = req.Quantity
		item.RecalculateTotal()
		if err := repo.UpdateItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
		}
		if delta != 0 {
			if err := repo.AdjustProductStock(ctx, item.ProductID, -delta); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust stock")
			}
		}
		return s.finishMutation(ctx, repo, locked.ID, &order)
	})
	if err != nil {
		s.metrics.IncOrderMutation("update_item", "error")
		return nil, err
	}
	s.metrics.IncOrderMutation("update_item", "ok")
	return order, nil
}

// DeleteItem removes a line and returns its quantity to stock.
func (s *service) DeleteItem(ctx context.Context, identity auth.Identity, orderID, itemID uuid.UUID) (*models.Order, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// Same lock order as AddItem: product, then order, then item.
		peek, err := s.peekItem(ctx, repo, identity, orderID, itemID)
		if err != nil {
			return err
		}
		if _, err := repo.FindProductsForUpdate(ctx, []uuid.UUID{peek.ProductID}); err != nil {
			return classifyLockErr(err, "lock product")
		}

		locked, err := s.lockMutableOrder(ctx, repo, identity, orderID)
		if err != nil {
			return err
		}
		item, err := repo.FindItemForUpdate(ctx, locked.ID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
			}
			return classifyLockErr(err, "lock order item")
		}

		affected, err := repo.DeleteItem(ctx, locked.ID, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order item")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if err := repo.AdjustProductStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock product")
		}
		return s.finishMutation(ctx, repo, locked.ID, &order)
	})
	if err != nil {
		s.metrics.IncOrderMutation("delete_item", "error")
		return nil, err
	}
	s.metrics.IncOrderMutation("delete_item", "ok")
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, identity auth.Identity, orderID uuid.UUID, req UpdateStatusRequest) (*models.Order, error) {
	if !identity.IsStaff {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff access required")
	}
	target, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	var order *models.Order
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return classifyLockErr(err, "lock order")
		}
		if locked.Status == target {
			order = locked
			return nil
		}
		if !locked.Status.CanTransitionTo(target) {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("cannot move order from %s to %s", locked.Status, target))
		}
		if err := repo.UpdateStatus(ctx, locked.ID, target); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		reloaded, err := repo.FindByID(ctx, locked.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		order = reloaded
		return nil
	})
	if txErr != nil {
		s.metrics.IncOrderMutation("update_status", "error")
		return nil, txErr
	}
	s.metrics.IncOrderMutation("update_status", "ok")
	s.notify.OrderStatusChanged(ctx, order, target)
	return order, nil
}

// lockMutableOrder locks the order row and enforces ownership plus the
// pending-only mutation rule. Addressing someone else's order by id is the one
// place that answers Forbidden instead of NotFound.
func (s *service) lockMutableOrder(ctx context.Context, repo Repository, identity auth.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, classifyLockErr(err, "lock order")
	}
	if !identity.IsStaff && !ownedBy(order, identity.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgOrderFrozen)
	}
	return order, nil
}

// peekItem reads an order line without locking it, so item mutations can lock
// the line's product before the order row. When the line is missing it locks
// the order anyway so callers still get the order-level error they would have
// seen first.
func (s *service) peekItem(ctx context.Context, repo Repository, identity auth.Identity, orderID, itemID uuid.UUID) (*models.OrderItem, error) {
	item, err := repo.FindItem(ctx, orderID, itemID)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
	}
	if _, err := s.lockMutableOrder(ctx, repo, identity, orderID); err != nil {
		return nil, err
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
}

func (s *service) finishMutation(ctx context.Context, repo Repository, orderID uuid.UUID, out **models.Order) error {
	if err := repo.UpdateTotal(ctx, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order total")
	}
	reloaded, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	*out = reloaded
	return nil
}

func ownedBy(order *models.Order, userID uuid.UUID) bool {
	return order.UserID != nil && *order.UserID == userID
}

// classifyLockErr maps lock timeouts and deadlocks onto a retryable conflict.
func classifyLockErr(err error, op string) error {
	if db.IsLockContention(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, op+": lock contention")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
