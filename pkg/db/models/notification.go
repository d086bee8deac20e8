package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/enums"
)

// Notification is a per-user or broadcast message. A nil UserID marks a
// broadcast row visible to every account.
type Notification struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           *uuid.UUID             `gorm:"column:user_id;type:uuid;index"`
	Type             enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title            string                 `gorm:"column:title;not null"`
	Body             string                 `gorm:"column:body;not null"`
	RelatedOrderID   *uuid.UUID             `gorm:"column:related_order_id;type:uuid"`
	RelatedProductID *uuid.UUID             `gorm:"column:related_product_id;type:uuid"`
	ReadAt           *time.Time             `gorm:"column:read_at"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
