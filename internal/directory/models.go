// Package directory provides the user directory domain model and store.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// Role values for directory users. A pending user has been provisioned but
// not yet activated; deactivation maps back to pending.
const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RolePending = "pending"
)

// User is a directory user record.
type User struct {
	ID              string    `json:"id" db:"id"`
	Email           string    `json:"email" db:"email"`
	Name            string    `json:"name" db:"name"`
	Role            string    `json:"role" db:"role"`
	PasswordHash    string    `json:"-" db:"password_hash"`
	ProfileImageURL string    `json:"profile_image_url,omitempty" db:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Active reports whether the user counts as active for provisioning
// purposes. Any role other than pending is active.
func (u *User) Active() bool {
	return u.Role != RolePending
}

// Group is a named collection of directory users. Membership is stored as an
// ordered list of user ids; ids referencing deleted users may linger.
type Group struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	UserIDs     []string  `json:"user_ids" db:"user_ids"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UserUpdate carries one attribute group of a user write. Nil fields are
// left untouched.
type UserUpdate struct {
	Email *string
	Name  *string
	Role  *string
}

// IsZero reports whether the update would write nothing.
func (u UserUpdate) IsZero() bool {
	return u.Email == nil && u.Name == nil && u.Role == nil
}

// GroupUpdate carries one attribute group of a group write. Nil fields are
// left untouched.
type GroupUpdate struct {
	Name        *string
	Description *string
	UserIDs     *[]string
}

// IsZero reports whether the update would write nothing.
func (g GroupUpdate) IsZero() bool {
	return g.Name == nil && g.Description == nil && g.UserIDs == nil
}

// NewUser creates a user with a generated id and creation timestamps.
func NewUser(email, name, role, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewGroup creates a group with a generated id and creation timestamps.
func NewGroup(ownerID, name, description string) *Group {
	now := time.Now().UTC()
	return &Group{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		UserIDs:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
