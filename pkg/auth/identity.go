package auth

import "github.com/google/uuid"

// Identity is the resolved requester threaded explicitly through every
// service call. There is no ambient current-user state anywhere else.
type Identity struct {
	UserID  uuid.UUID
	IsStaff bool
}
