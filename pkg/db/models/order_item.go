package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem is a priced line on an order. UnitPrice is snapshotted at the time
// the line is created and never re-read from the product afterwards. The
// product FK is RESTRICT so catalog rows referenced by orders cannot be
// hard-deleted out from under them.
type OrderItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	TotalPrice decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	Product    *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (oi *OrderItem) BeforeCreate(_ *gorm.DB) error {
	if oi.ID == uuid.Nil {
		oi.ID = uuid.New()
	}
	return nil
}

// RecalculateTotal derives TotalPrice from the snapshotted unit price and the
// current quantity.
func (oi *OrderItem) RecalculateTotal() {
	oi.TotalPrice = oi.UnitPrice.Mul(decimal.NewFromInt(int64(oi.Quantity))).Round(2)
}
