package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog listing. Rows are soft deleted via IsDeleted so
// historical order items keep a valid product reference.
type Product struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CategoryID      *uuid.UUID      `gorm:"column:category_id;type:uuid;index"`
	Name            string          `gorm:"column:name;not null"`
	Slug            string          `gorm:"column:slug;not null;uniqueIndex"`
	Description     *string         `gorm:"column:description"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	DiscountPercent decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null;default:0"`
	Stock           int             `gorm:"column:stock;not null;default:0"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	IsDeleted       bool            `gorm:"column:is_deleted;not null;default:false"`
	Category        *Category       `gorm:"foreignKey:CategoryID"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EffectivePrice returns the price after the configured discount, rounded to
// two decimal places.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPercent.IsZero() {
		return p.Price
	}
	hundred := decimal.NewFromInt(100)
	factor := hundred.Sub(p.DiscountPercent).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}
