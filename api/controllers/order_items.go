package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/accra-labs/storefront-backend/api/responses"
	"github.com/accra-labs/storefront-backend/api/validators"
	"github.com/accra-labs/storefront-backend/internal/orders"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
	"github.com/accra-labs/storefront-backend/pkg/logger"
)

// orderItemAddRequest names the order alongside the line being added; the
// order-items surface is flat, not nested under /orders.
type orderItemAddRequest struct {
	OrderID   string `json:"order_id" validate:"required,uuid4"`
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

type orderItemUpdateRequest struct {
	OrderID  string `json:"order_id" validate:"required,uuid4"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

func OrderItemAdd(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var req orderItemAddRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id"))
			return
		}

		order, err := svc.AddItem(r.Context(), identity, orderID, orders.AddItemRequest{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func OrderItemUpdate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		itemID, ok := pathUUID(w, r, logg, "itemId")
		if !ok {
			return
		}

		var req orderItemUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id"))
			return
		}

		order, err := svc.UpdateItem(r.Context(), identity, orderID, itemID, orders.UpdateItemRequest{
			Quantity: req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderItemDelete(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		itemID, ok := pathUUID(w, r, logg, "itemId")
		if !ok {
			return
		}

		raw := strings.TrimSpace(r.URL.Query().Get("order_id"))
		orderID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order_id query parameter required"))
			return
		}

		order, err := svc.DeleteItem(r.Context(), identity, orderID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
