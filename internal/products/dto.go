package products

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/pagination"
)

// ListFilters describe the supported filter knobs for the catalog endpoint.
type ListFilters struct {
	CategoryID   *uuid.UUID
	CategorySlug string
	PriceMin     *decimal.Decimal
	PriceMax     *decimal.Decimal
	InStockOnly  bool
	Query        string
	// IncludeInactive is honored only for staff callers.
	IncludeInactive bool
}

// ListInput captures the inputs needed to paginate and filter the catalog.
type ListInput struct {
	Filters    ListFilters
	Pagination pagination.Params
}

// ListResult is one catalog page plus the cursor for the next one.
type ListResult struct {
	Products   []models.Product `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// CreateRequest carries the writable fields for a new product.
type CreateRequest struct {
	Name            string  `json:"name" validate:"required,max=200"`
	Slug            string  `json:"slug" validate:"omitempty,max=220"`
	Description     string  `json:"description" validate:"omitempty,max=5000"`
	CategoryID      *string `json:"category_id" validate:"omitempty,uuid4"`
	Price           string  `json:"price" validate:"required"`
	DiscountPercent string  `json:"discount_percent" validate:"omitempty"`
	Stock           int     `json:"stock" validate:"gte=0"`
	IsActive        *bool   `json:"is_active"`
}

// UpdateRequest carries optional patches; nil fields are left untouched.
type UpdateRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=200"`
	Slug            *string `json:"slug" validate:"omitempty,max=220"`
	Description     *string `json:"description" validate:"omitempty,max=5000"`
	CategoryID      *string `json:"category_id" validate:"omitempty,uuid4"`
	Price           *string `json:"price"`
	DiscountPercent *string `json:"discount_percent"`
	Stock           *int    `json:"stock" validate:"omitempty,gte=0"`
	IsActive        *bool   `json:"is_active"`
}
