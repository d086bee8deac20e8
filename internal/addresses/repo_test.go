package addresses

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/db/models"
)

func setupAddressesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	addresses := `
CREATE TABLE IF NOT EXISTS addresses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  label TEXT,
  line1 TEXT NOT NULL,
  line2 TEXT,
  city TEXT NOT NULL,
  region TEXT,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(addresses).Error)
	return db
}

func createAddress(t *testing.T, db *gorm.DB, userID uuid.UUID, line1 string, isDefault bool) *models.Address {
	t.Helper()

	address := &models.Address{
		ID:         uuid.New(),
		UserID:     userID,
		Line1:      line1,
		City:       "Accra",
		PostalCode: "GA-100",
		Country:    "GH",
		IsDefault:  isDefault,
	}
	require.NoError(t, db.Create(address).Error)
	return address
}

func TestRepositoryListByUser_defaultFirst(t *testing.T) {
	db := setupAddressesTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	createAddress(t, db, userID, "12 Market St", false)
	preferred := createAddress(t, db, userID, "4 Harbor Rd", true)
	createAddress(t, db, uuid.New(), "99 Other Ave", true)

	list, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, preferred.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
}

func TestRepositoryClearDefault_keepsException(t *testing.T) {
	db := setupAddressesTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	old := createAddress(t, db, userID, "12 Market St", true)
	next := createAddress(t, db, userID, "4 Harbor Rd", true)

	require.NoError(t, repo.ClearDefault(context.Background(), userID, next.ID))

	reloaded, err := repo.FindByID(context.Background(), userID, old.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault)

	kept, err := repo.FindByID(context.Background(), userID, next.ID)
	require.NoError(t, err)
	assert.True(t, kept.IsDefault)
}

func TestRepositoryDelete_scopedToOwner(t *testing.T) {
	db := setupAddressesTestDB(t)
	repo := NewRepository(db)

	ownerID := uuid.New()
	address := createAddress(t, db, ownerID, "12 Market St", false)

	affected, err := repo.Delete(context.Background(), uuid.New(), address.ID)
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = repo.Delete(context.Background(), ownerID, address.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = repo.FindByID(context.Background(), ownerID, address.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
