package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/accra-labs/storefront-backend/api/responses"
	"github.com/accra-labs/storefront-backend/api/validators"
	"github.com/accra-labs/storefront-backend/internal/carts"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
	"github.com/accra-labs/storefront-backend/pkg/logger"
)

func CartFetch(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		// Staff may inspect another user's cart via ?user_id=.
		var forUser *uuid.UUID
		if raw := r.URL.Query().Get("user_id"); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a uuid"))
				return
			}
			forUser = &parsed
		}

		view, err := svc.GetCart(r.Context(), identity, forUser)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartAddItem adds a product to the cart, merging quantities when the product
// already has a line. Both outcomes return 201.
func CartAddItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var req carts.AddItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AddItem(r.Context(), identity, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func CartUpdateItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
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

		var req carts.UpdateItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.UpdateItem(r.Context(), identity, itemID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func CartRemoveItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
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

		if err := svc.RemoveItem(r.Context(), identity, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}
