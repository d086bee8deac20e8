package notifications

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/enums"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One shared in-memory DB per test; broadcast rows would bleed
	// across tests on a process-wide DSN.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	notifications := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  body TEXT NOT NULL,
  related_order_id TEXT,
  related_product_id TEXT,
  read_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(notifications).Error)
	return db
}

func createNotification(t *testing.T, db *gorm.DB, userID *uuid.UUID, title string, created time.Time, readAt *time.Time) *models.Notification {
	t.Helper()

	notification := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      enums.NotificationTypeSystem,
		Title:     title,
		Body:      "body for " + title,
		ReadAt:    readAt,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, db.Create(notification).Error)
	return notification
}

func TestRepositoryList_ownAndBroadcastRows(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	otherID := uuid.New()
	now := time.Now().UTC()

	createNotification(t, db, &userID, "mine", now.Add(-time.Minute), nil)
	createNotification(t, db, nil, "broadcast", now, nil)
	createNotification(t, db, &otherID, "not mine", now.Add(-time.Second), nil)

	rows, cursor, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, cursor)
	assert.Equal(t, "broadcast", rows[0].Title)
	assert.Equal(t, "mine", rows[1].Title)
}

func TestRepositoryList_cursorPagination(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	createNotification(t, db, &userID, "oldest", now.Add(-2*time.Hour), nil)
	createNotification(t, db, &userID, "middle", now.Add(-time.Hour), nil)
	createNotification(t, db, &userID, "newest", now, nil)

	first, cursor, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	assert.Equal(t, "newest", first[0].Title)
	assert.Equal(t, "middle", first[1].Title)

	second, next, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Nil(t, next)
	assert.Equal(t, "oldest", second[0].Title)
}

func TestRepositoryList_unreadOnly(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	readAt := now.Add(-time.Minute)
	createNotification(t, db, &userID, "already read", now.Add(-time.Hour), &readAt)
	createNotification(t, db, &userID, "still unread", now, nil)

	rows, _, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "still unread", rows[0].Title)
}

func TestRepositoryMarkRead(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	otherID := uuid.New()
	now := time.Now().UTC()
	own := createNotification(t, db, &userID, "own", now.Add(-time.Minute), nil)
	broadcast := createNotification(t, db, nil, "broadcast", now, nil)
	foreign := createNotification(t, db, &otherID, "foreign", now, nil)

	mark, err := repo.MarkRead(context.Background(), userID, own.ID, now)
	require.NoError(t, err)
	assert.True(t, mark.Updated)
	assert.True(t, mark.Found)

	// Second mark finds the row but has nothing left to update.
	mark, err = repo.MarkRead(context.Background(), userID, own.ID, now)
	require.NoError(t, err)
	assert.False(t, mark.Updated)
	assert.True(t, mark.Found)

	mark, err = repo.MarkRead(context.Background(), userID, broadcast.ID, now)
	require.NoError(t, err)
	assert.True(t, mark.Updated)

	mark, err = repo.MarkRead(context.Background(), userID, foreign.ID, now)
	require.NoError(t, err)
	assert.False(t, mark.Updated)
	assert.False(t, mark.Found)
}

func TestRepositoryMarkAllRead(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	otherID := uuid.New()
	now := time.Now().UTC()
	readAt := now.Add(-time.Minute)
	createNotification(t, db, &userID, "unread one", now.Add(-time.Hour), nil)
	createNotification(t, db, &userID, "unread two", now.Add(-time.Minute), nil)
	createNotification(t, db, nil, "broadcast", now, nil)
	createNotification(t, db, &userID, "already read", now, &readAt)
	createNotification(t, db, &otherID, "foreign", now, nil)

	updated, err := repo.MarkAllRead(context.Background(), userID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	rows, _, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
