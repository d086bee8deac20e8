package orders

import (
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/pagination"
)

// OrderLineInput is one requested line when placing an order.
type OrderLineInput struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// CreateOrderRequest carries the inputs for placing an order.
type CreateOrderRequest struct {
	AddressID string           `json:"address_id" validate:"omitempty,uuid4"`
	Currency  string           `json:"currency" validate:"omitempty,len=3"`
	Items     []OrderLineInput `json:"items" validate:"required,min=1,dive"`
}

// AddItemRequest carries the inputs for adding a line to an existing order.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// UpdateItemRequest carries the replacement quantity for an order line.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

// UpdateStatusRequest carries the target status for an order.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListInput captures pagination inputs for the order history endpoint.
type ListInput struct {
	Pagination pagination.Params
}

// ListResult is one history page plus the cursor for the next one.
type ListResult struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
