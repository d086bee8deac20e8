package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/enums"
)

// Order is a placed order. UserID is nullable so deleting an account keeps the
// order row for accounting; TotalAmount is always derived from the items.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	AddressID   *uuid.UUID        `gorm:"column:address_id;type:uuid"`
	Status      enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency    enums.Currency    `gorm:"column:currency;type:text;not null;default:'USD'"`
	TotalAmount decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(_ *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
