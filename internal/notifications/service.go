package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
	"github.com/accra-labs/storefront-backend/pkg/pagination"
)

// Service exposes the notification inbox for the calling user.
type Service interface {
	List(ctx context.Context, identity auth.Identity, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, identity auth.Identity, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, identity auth.Identity) (int64, error)
}

// ListParams filters and pages the inbox listing.
type ListParams struct {
	Pagination pagination.Params
	UnreadOnly bool
}

// ListResult is one page of notifications plus the cursor for the next page.
type ListResult struct {
	Items      []models.Notification
	NextCursor string
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ServiceParams bundles the notification service dependencies.
type ServiceParams struct {
	Repo Repository
	Now  func() time.Time
}

// NewService builds a notification service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{repo: params.Repo, now: params.Now}, nil
}

func (s *service) List(ctx context.Context, identity auth.Identity, params ListParams) (*ListResult, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	items, next, err := s.repo.List(ctx, listNotificationsParams{
		UserID:     identity.UserID,
		Limit:      params.Pagination.Limit,
		Cursor:     cursor,
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	nextCursor := ""
	if next != nil {
		nextCursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, NextCursor: nextCursor}, nil
}

func (s *service) MarkRead(ctx context.Context, identity auth.Identity, notificationID uuid.UUID) error {
	if identity.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	mark, err := s.repo.MarkRead(ctx, identity.UserID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !mark.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, identity auth.Identity) (int64, error) {
	if identity.UserID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	updated, err := s.repo.MarkAllRead(ctx, identity.UserID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return updated, nil
}
