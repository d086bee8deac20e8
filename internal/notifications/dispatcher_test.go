package notifications

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/config"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/enums"
	"github.com/accra-labs/storefront-backend/pkg/logger"
)

type stubOrderSource struct {
	order *models.Order
	err   error
}

func (s stubOrderSource) FindByID(context.Context, uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

type stubProductSource struct {
	product *models.Product
	err     error
}

func (s stubProductSource) FindByID(context.Context, uuid.UUID) (*models.Product, error) {
	return s.product, s.err
}

// flakyOrderSource simulates an order that only becomes visible to the
// dispatcher after a few lookups, as under replication lag.
type flakyOrderSource struct {
	calls        int
	failuresLeft int
	order        *models.Order
}

func (s *flakyOrderSource) FindByID(context.Context, uuid.UUID) (*models.Order, error) {
	s.calls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

type flakyCreateRepo struct {
	stubNotificationsRepo
	failuresLeft int
	attempts     int
}

func (r *flakyCreateRepo) Create(ctx context.Context, notification *models.Notification) error {
	r.attempts++
	if r.failuresLeft > 0 {
		r.failuresLeft--
		return errors.New("transient write failure")
	}
	return r.stubNotificationsRepo.Create(ctx, notification)
}

func newTestDispatcher(t *testing.T, repo Repository, orders orderSource, products productSource) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{
		Repo:     repo,
		Orders:   orders,
		Products: products,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.NotificationsConfig{
			MaxAttempts: 3,
			Backoff:     time.Millisecond,
			QueueSize:   4,
		},
	})
	if err != nil {
		t.Fatalf("building dispatcher: %v", err)
	}
	return d
}

func drainOne(t *testing.T, d *Dispatcher) {
	t.Helper()
	select {
	case evt := <-d.queue:
		d.deliver(context.Background(), evt)
	default:
		t.Fatal("expected a queued event")
	}
}

func TestOrderPlacedPersistsNotification(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      &userID,
		Currency:    enums.CurrencyUSD,
		TotalAmount: decimal.RequireFromString("42.03"),
	}
	repo := &stubNotificationsRepo{}
	d := newTestDispatcher(t, repo, stubOrderSource{order: order}, stubProductSource{})

	d.OrderPlaced(context.Background(), order)
	drainOne(t, d)

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	row := repo.created[0]
	if row.UserID == nil || *row.UserID != userID {
		t.Fatalf("expected notification for user %s, got %+v", userID, row.UserID)
	}
	if row.Type != enums.NotificationTypeOrder {
		t.Fatalf("unexpected type %s", row.Type)
	}
	if row.RelatedOrderID == nil || *row.RelatedOrderID != order.ID {
		t.Fatal("expected related order id")
	}
}

func TestProductCreatedIsBroadcast(t *testing.T) {
	t.Parallel()

	product := &models.Product{ID: uuid.New(), Name: "Walnut Desk"}
	repo := &stubNotificationsRepo{}
	d := newTestDispatcher(t, repo, stubOrderSource{}, stubProductSource{product: product})

	d.ProductCreated(context.Background(), product)
	drainOne(t, d)

	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	row := repo.created[0]
	if row.UserID != nil {
		t.Fatalf("broadcast notification must have nil user, got %v", row.UserID)
	}
	if row.Type != enums.NotificationTypeProduct {
		t.Fatalf("unexpected type %s", row.Type)
	}
	if row.RelatedProductID == nil || *row.RelatedProductID != product.ID {
		t.Fatal("expected related product id")
	}
}

func TestDeliveryRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	order := &models.Order{ID: uuid.New(), Currency: enums.CurrencyUSD}
	repo := &flakyCreateRepo{failuresLeft: 2}
	d := newTestDispatcher(t, repo, stubOrderSource{order: order}, stubProductSource{})

	d.OrderPlaced(context.Background(), order)
	drainOne(t, d)

	if repo.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", repo.attempts)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected the third attempt to persist, got %d rows", len(repo.created))
	}
}

func TestDeliveryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	order := &models.Order{ID: uuid.New(), Currency: enums.CurrencyUSD}
	repo := &flakyCreateRepo{failuresLeft: 10}
	d := newTestDispatcher(t, repo, stubOrderSource{order: order}, stubProductSource{})

	d.OrderPlaced(context.Background(), order)
	drainOne(t, d)

	if repo.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", repo.attempts)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no persisted rows, got %d", len(repo.created))
	}
}

func TestDeliveryRetriesNotYetVisibleOrder(t *testing.T) {
	t.Parallel()

	order := &models.Order{ID: uuid.New(), Currency: enums.CurrencyUSD}
	source := &flakyOrderSource{failuresLeft: 2, order: order}
	repo := &stubNotificationsRepo{}
	d := newTestDispatcher(t, repo, source, stubProductSource{})

	d.OrderPlaced(context.Background(), order)
	drainOne(t, d)

	if source.calls != 3 {
		t.Fatalf("expected 3 lookup attempts, got %d", source.calls)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected the third lookup to deliver, got %d rows", len(repo.created))
	}
}

func TestDeliveryDropsRowStillMissingAfterRetries(t *testing.T) {
	t.Parallel()

	source := &flakyOrderSource{failuresLeft: 10}
	repo := &flakyCreateRepo{}
	d := newTestDispatcher(t, repo, source, stubProductSource{})

	d.OrderPlaced(context.Background(), &models.Order{ID: uuid.New()})
	drainOne(t, d)

	if source.calls != 3 {
		t.Fatalf("expected 3 lookup attempts, got %d", source.calls)
	}
	if repo.attempts != 0 {
		t.Fatalf("expected no create attempts, got %d", repo.attempts)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no persisted rows, got %d", len(repo.created))
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	repo := &stubNotificationsRepo{}
	d, err := NewDispatcher(DispatcherParams{
		Repo:     repo,
		Orders:   stubOrderSource{},
		Products: stubProductSource{},
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config:   config.NotificationsConfig{MaxAttempts: 1, Backoff: time.Millisecond, QueueSize: 1},
	})
	if err != nil {
		t.Fatalf("building dispatcher: %v", err)
	}

	product := &models.Product{ID: uuid.New(), Name: "Lamp"}
	d.ProductCreated(context.Background(), product)
	d.ProductCreated(context.Background(), product)

	if len(d.queue) != 1 {
		t.Fatalf("expected queue length 1, got %d", len(d.queue))
	}
}
