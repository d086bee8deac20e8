package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/config"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/enums"
	"github.com/accra-labs/storefront-backend/pkg/logger"
	"github.com/accra-labs/storefront-backend/pkg/metrics"
)

// orderSource re-reads order rows at delivery time so the notification body
// reflects the committed state, not the enqueue-time snapshot.
type orderSource interface {
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type productSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type eventKind string

const (
	eventOrderPlaced    eventKind = "order_placed"
	eventOrderStatus    eventKind = "order_status"
	eventProductCreated eventKind = "product_created"
)

type event struct {
	kind      eventKind
	userID    *uuid.UUID
	orderID   *uuid.UUID
	productID *uuid.UUID
	status    enums.OrderStatus
}

// Dispatcher queues notification events from the commerce services and
// delivers them on a background worker. Enqueueing never blocks a request:
// when the queue is full the event is dropped and counted.
type Dispatcher struct {
	queue    chan event
	repo     Repository
	orders   orderSource
	products productSource
	logg     *logger.Logger
	metrics  *metrics.CommerceMetrics

	maxAttempts int
	backoff     time.Duration
}

// DispatcherParams bundles the dispatcher dependencies.
type DispatcherParams struct {
	Repo     Repository
	Orders   orderSource
	Products productSource
	Logger   *logger.Logger
	Metrics  *metrics.CommerceMetrics
	Config   config.NotificationsConfig
}

// NewDispatcher builds a dispatcher with the required dependencies.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order source required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := params.Config.Backoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	queueSize := params.Config.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Dispatcher{
		queue:       make(chan event, queueSize),
		repo:        params.Repo,
		orders:      params.Orders,
		products:    params.Products,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}, nil
}

// Run drains the queue until ctx is cancelled. Call it on its own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.queue:
			d.deliver(ctx, evt)
		}
	}
}

// OrderPlaced enqueues a notification for a freshly created order.
func (d *Dispatcher) OrderPlaced(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	orderID := order.ID
	d.enqueue(ctx, event{kind: eventOrderPlaced, userID: order.UserID, orderID: &orderID})
}

// OrderStatusChanged enqueues a notification for an order status transition.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, order *models.Order, status enums.OrderStatus) {
	if order == nil {
		return
	}
	orderID := order.ID
	d.enqueue(ctx, event{kind: eventOrderStatus, userID: order.UserID, orderID: &orderID, status: status})
}

// ProductCreated enqueues a broadcast notification for a new catalog product.
func (d *Dispatcher) ProductCreated(ctx context.Context, product *models.Product) {
	if product == nil {
		return
	}
	productID := product.ID
	d.enqueue(ctx, event{kind: eventProductCreated, productID: &productID})
}

func (d *Dispatcher) enqueue(ctx context.Context, evt event) {
	select {
	case d.queue <- evt:
	default:
		d.metrics.IncDispatch("dropped")
		d.logg.Warn(ctx, fmt.Sprintf("notification queue full, dropping %s event", evt.kind))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, evt event) {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(d.maxAttempts-1), retry.NewConstant(d.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			d.metrics.IncDispatchRetry()
		}

		notification, err := d.build(ctx, evt)
		if err != nil {
			// A not-yet-visible order or product is the transient case
			// this loop exists for; retry it like any other failure.
			return retry.RetryableError(err)
		}
		if err := d.repo.Create(ctx, notification); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d.metrics.IncDispatch("skipped")
			d.logg.Warn(ctx, fmt.Sprintf("dropping %s notification, referenced row still missing after %d attempts", evt.kind, attempt))
			return
		}
		d.metrics.IncDispatch("failure")
		d.logg.Error(ctx, fmt.Sprintf("delivering %s notification after %d attempts", evt.kind, attempt), err)
		return
	}
	d.metrics.IncDispatch("success")
}

func (d *Dispatcher) build(ctx context.Context, evt event) (*models.Notification, error) {
	switch evt.kind {
	case eventOrderPlaced:
		order, err := d.orders.FindByID(ctx, *evt.orderID)
		if err != nil {
			return nil, err
		}
		return &models.Notification{
			UserID:         evt.userID,
			Type:           enums.NotificationTypeOrder,
			Title:          "Order placed",
			Body:           fmt.Sprintf("Your order for %s %s was placed.", order.TotalAmount.StringFixed(2), order.Currency),
			RelatedOrderID: evt.orderID,
		}, nil
	case eventOrderStatus:
		if _, err := d.orders.FindByID(ctx, *evt.orderID); err != nil {
			return nil, err
		}
		return &models.Notification{
			UserID:         evt.userID,
			Type:           enums.NotificationTypeOrder,
			Title:          fmt.Sprintf("Order %s", evt.status),
			Body:           fmt.Sprintf("Your order is now %s.", evt.status),
			RelatedOrderID: evt.orderID,
		}, nil
	case eventProductCreated:
		product, err := d.products.FindByID(ctx, *evt.productID)
		if err != nil {
			return nil, err
		}
		return &models.Notification{
			Type:             enums.NotificationTypeProduct,
			Title:            "New product available",
			Body:             fmt.Sprintf("%s just landed in the catalog.", product.Name),
			RelatedProductID: evt.productID,
		}, nil
	default:
		return nil, fmt.Errorf("unknown notification event %q", evt.kind)
	}
}
