package controllers

import (
	"net/http"

	"github.com/accra-labs/storefront-backend/api/responses"
	"github.com/accra-labs/storefront-backend/api/validators"
	"github.com/accra-labs/storefront-backend/internal/addresses"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
	"github.com/accra-labs/storefront-backend/pkg/logger"
)

func AddressCreate(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "addresses service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var req addresses.UpsertRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		address, err := svc.Create(r.Context(), identity, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, address)
	}
}

func AddressList(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "addresses service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		list, err := svc.List(r.Context(), identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AddressDetail(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "addresses service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		addressID, ok := pathUUID(w, r, logg, "addressId")
		if !ok {
			return
		}

		address, err := svc.Get(r.Context(), identity, addressID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, address)
	}
}

func AddressUpdate(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "addresses service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		addressID, ok := pathUUID(w, r, logg, "addressId")
		if !ok {
			return
		}

		var req addresses.UpsertRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		address, err := svc.Update(r.Context(), identity, addressID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, address)
	}
}

func AddressDelete(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "addresses service unavailable"))
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		addressID, ok := pathUUID(w, r, logg, "addressId")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), identity, addressID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
