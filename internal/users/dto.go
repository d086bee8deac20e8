package users

import (
	"github.com/accra-labs/storefront-backend/pkg/db/models"
	"github.com/accra-labs/storefront-backend/pkg/enums"
)

// CreateUserDTO carries the fields required to persist a new account.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        *string
	Role         enums.Role
}

// ToModel converts the DTO into the persistence model.
func (dto CreateUserDTO) ToModel() *models.User {
	role := dto.Role
	if role == "" {
		role = enums.RoleCustomer
	}
	return &models.User{
		Email:        dto.Email,
		PasswordHash: dto.PasswordHash,
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		Phone:        dto.Phone,
		Role:         role,
		IsActive:     true,
	}
}
