package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/accra-labs/storefront-backend/api/middleware"
	"github.com/accra-labs/storefront-backend/api/responses"
	pkgauth "github.com/accra-labs/storefront-backend/pkg/auth"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
	"github.com/accra-labs/storefront-backend/pkg/logger"
)

// requireIdentity pulls the authenticated requester from the context, writing
// a 401 when the Auth middleware did not run.
func requireIdentity(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (pkgauth.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok || identity.UserID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return pkgauth.Identity{}, false
	}
	return identity, true
}

// pathUUID parses a chi URL parameter as a UUID.
func pathUUID(w http.ResponseWriter, r *http.Request, logg *logger.Logger, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		responses.WriteError(r.Context(), logg, w,
			pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid identifier").WithDetails(map[string]any{"field": param}))
		return uuid.Nil, false
	}
	return id, true
}
