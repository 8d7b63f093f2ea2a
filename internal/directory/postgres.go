package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/scimgate/scimgate/internal/common/errors"
)

const queryTimeout = 5 * time.Second

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed directory store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `id, email, name, role, password_hash, COALESCE(profile_image_url, ''), created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.ProfileImageURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByID retrieves a user by id.
func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.UserNotFound(id)
		}
		return nil, apperrors.DatabaseError("find user by id", err)
	}
	return user, nil
}

// FindUserByEmail retrieves a user by email. Email is unique-indexed, so
// this is the fast path for userName lookups and conflict checks.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.UserNotFound(email)
		}
		return nil, apperrors.DatabaseError("find user by email", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by creation time.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.DatabaseError("list users", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("list users", err)
	}
	return users, nil
}

// ListUsersByIDs returns the users whose ids appear in ids. Missing ids are
// silently omitted; callers resolve the gap.
func (s *PostgresStore) ListUsersByIDs(ctx context.Context, ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, apperrors.DatabaseError("list users by ids", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("list users by ids", err)
	}
	return users, nil
}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, profile_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.Name, user.Role, user.PasswordHash, user.ProfileImageURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return apperrors.DatabaseError("create user", err)
	}
	return nil
}

// UpdateUser applies the non-nil fields of update to the user row.
func (s *PostgresStore) UpdateUser(ctx context.Context, id string, update UserUpdate) error {
	if update.IsZero() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email      = COALESCE($2, email),
		    name       = COALESCE($3, name),
		    role       = COALESCE($4, role),
		    updated_at = $5
		WHERE id = $1
	`, id, update.Email, update.Name, update.Role, time.Now().UTC())
	if err != nil {
		return apperrors.DatabaseError("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.UserNotFound(id)
	}
	return nil
}

// DeleteUser removes a user by id.
func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return apperrors.DatabaseError("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.UserNotFound(id)
	}
	return nil
}

const groupColumns = `id, owner_id, name, COALESCE(description, ''), user_ids, created_at, updated_at`

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	var userIDs []byte
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Description, &userIDs, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(userIDs) > 0 {
		if err := json.Unmarshal(userIDs, &g.UserIDs); err != nil {
			return nil, err
		}
	}
	if g.UserIDs == nil {
		g.UserIDs = []string{}
	}
	return &g, nil
}

// FindGroupByID retrieves a group by id.
func (s *PostgresStore) FindGroupByID(ctx context.Context, id string) (*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	group, err := scanGroup(s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.GroupNotFound(id)
		}
		return nil, apperrors.DatabaseError("find group by id", err)
	}
	return group, nil
}

// ListGroups returns all groups ordered by creation time.
func (s *PostgresStore) ListGroups(ctx context.Context) ([]*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.DatabaseError("list groups", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, apperrors.DatabaseError("scan group", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("list groups", err)
	}
	return groups, nil
}

// CreateGroup inserts a new group.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *Group) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	userIDs, err := json.Marshal(group.UserIDs)
	if err != nil {
		return apperrors.DatabaseError("marshal group members", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO groups (id, owner_id, name, description, user_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, group.ID, group.OwnerID, group.Name, group.Description, userIDs, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		return apperrors.DatabaseError("create group", err)
	}
	return nil
}

// UpdateGroup applies the non-nil fields of update to the group row.
func (s *PostgresStore) UpdateGroup(ctx context.Context, id string, update GroupUpdate) error {
	if update.IsZero() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var userIDs []byte
	if update.UserIDs != nil {
		var err error
		userIDs, err = json.Marshal(*update.UserIDs)
		if err != nil {
			return apperrors.DatabaseError("marshal group members", err)
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE groups
		SET name        = COALESCE($2, name),
		    description = COALESCE($3, description),
		    user_ids    = COALESCE($4, user_ids),
		    updated_at  = $5
		WHERE id = $1
	`, id, update.Name, update.Description, userIDs, time.Now().UTC())
	if err != nil {
		return apperrors.DatabaseError("update group", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.GroupNotFound(id)
	}
	return nil
}

// DeleteGroup removes a group by id.
func (s *PostgresStore) DeleteGroup(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return apperrors.DatabaseError("delete group", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.GroupNotFound(id)
	}
	return nil
}

// FindSuperAdmin returns the oldest admin user.
func (s *PostgresStore) FindSuperAdmin(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at, id LIMIT 1`, RoleAdmin))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("admin user")
		}
		return nil, apperrors.DatabaseError("find super admin", err)
	}
	return user, nil
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return apperrors.DatabaseError("ping", err)
	}
	return nil
}
