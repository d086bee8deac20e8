package addresses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/accra-labs/storefront-backend/pkg/auth"
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/accra-labs/storefront-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines address book operations scoped to the calling user.
type Service interface {
	Create(ctx context.Context, identity auth.Identity, req UpsertRequest) (*models.Address, error)
	List(ctx context.Context, identity auth.Identity) ([]models.Address, error)
	Get(ctx context.Context, identity auth.Identity, addressID uuid.UUID) (*models.Address, error)
	Update(ctx context.Context, identity auth.Identity, addressID uuid.UUID, req UpsertRequest) (*models.Address, error)
	Delete(ctx context.Context, identity auth.Identity, addressID uuid.UUID) error
}

// UpsertRequest carries the writable address fields.
type UpsertRequest struct {
	Label      string `json:"label" validate:"omitempty,max=64"`
	Line1      string `json:"line1" validate:"required,max=255"`
	Line2      string `json:"line2" validate:"omitempty,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region" validate:"omitempty,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
	IsDefault  bool   `json:"is_default"`
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds an address service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("addresses repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, identity auth.Identity, req UpsertRequest) (*models.Address, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	address := &models.Address{UserID: identity.UserID}
	applyUpsert(address, req)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, address)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
		}
		address = created
		if address.IsDefault {
			if err := repo.ClearDefault(ctx, identity.UserID, address.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (s *service) List(ctx context.Context, identity auth.Identity) ([]models.Address, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	addresses, err := s.repo.ListByUser(ctx, identity.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	return addresses, nil
}

func (s *service) Get(ctx context.Context, identity auth.Identity, addressID uuid.UUID) (*models.Address, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	address, err := s.repo.FindByID(ctx, identity.UserID, addressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return address, nil
}

func (s *service) Update(ctx context.Context, identity auth.Identity, addressID uuid.UUID, req UpsertRequest) (*models.Address, error) {
	if identity.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var updated *models.Address
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		address, err := repo.FindByID(ctx, identity.UserID, addressID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
		}

		applyUpsert(address, req)
		if err := repo.Update(ctx, address); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update address")
		}
		if address.IsDefault {
			if err := repo.ClearDefault(ctx, identity.UserID, address.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
		}
		updated = address
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, identity auth.Identity, addressID uuid.UUID) error {
	if identity.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	affected, err := s.repo.Delete(ctx, identity.UserID, addressID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return nil
}

func applyUpsert(address *models.Address, req UpsertRequest) {
	address.Label = optional(req.Label)
	address.Line1 = strings.TrimSpace(req.Line1)
	address.Line2 = optional(req.Line2)
	address.City = strings.TrimSpace(req.City)
	address.Region = optional(req.Region)
	address.PostalCode = strings.TrimSpace(req.PostalCode)
	address.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	address.IsDefault = req.IsDefault
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
