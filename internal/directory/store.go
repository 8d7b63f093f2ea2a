package directory

import "context"

// Store is the persistence contract for the user directory. Implementations
// return *errors.AppError values: NotFound codes for missing records,
// database codes for infrastructure failures.
type Store interface {
	// Users
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, id string, update UserUpdate) error
	DeleteUser(ctx context.Context, id string) error

	// Groups
	FindGroupByID(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	CreateGroup(ctx context.Context, group *Group) error
	UpdateGroup(ctx context.Context, id string, update GroupUpdate) error
	DeleteGroup(ctx context.Context, id string) error

	// FindSuperAdmin returns the oldest admin user. Group creation assigns
	// it as the owner of provisioned groups.
	FindSuperAdmin(ctx context.Context) (*User, error)

	Ping(ctx context.Context) error
}
