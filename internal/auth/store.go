package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store is the Postgres-backed credential store for users, roles and
// permissions.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

const selectUser = `
	SELECT u.id, u.name, u.email, u.password_hash, u.role_id, r.id, r.name, u.active, u.created_at
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var roleRef, roleID, roleName sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &roleRef, &roleID, &roleName, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.RoleID = roleRef.String
	if roleID.Valid {
		u.Role = &Role{ID: roleID.String, Name: roleName.String}
	}
	return u, nil
}

// GetUserByEmail matches the email exactly, case included.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+`WHERE u.email = $1`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+`WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// CreateUser inserts u, assigning its ID and CreatedAt. A taken email is
// reported as ErrDuplicateUser.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	const q = `
		INSERT INTO users (id, name, email, password_hash, role_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash, u.RoleID, u.Active, u.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateUser
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+`ORDER BY u.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return result, nil
}

// UpdateUser changes the name and/or role of a user. Nil arguments leave the
// column untouched.
func (s *Store) UpdateUser(ctx context.Context, id string, name, roleID *string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	const q = `UPDATE users SET name = COALESCE($2, name), role_id = COALESCE($3, role_id) WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, name, roleID)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return nil, ErrUserNotFound
	}
	return s.GetUserByID(ctx, id)
}

// DeleteUser removes a user and returns it as it was stored.
func (s *Store) DeleteUser(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	const q = `
		WITH d AS (
			DELETE FROM users WHERE id = $1
			RETURNING id, name, email, password_hash, role_id, active, created_at
		)
		SELECT d.id, d.name, d.email, d.password_hash, d.role_id, r.id, r.name, d.active, d.created_at
		FROM d
		LEFT JOIN roles r ON r.id = d.role_id
	`
	u, err := scanUser(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("delete user: %w", err)
	}
	return u, nil
}

func (s *Store) GetRoleByID(ctx context.Context, id string) (*Role, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRoleNotFound
	}
	return s.getRole(ctx, `SELECT id, name FROM roles WHERE id = $1`, id)
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.getRole(ctx, `SELECT id, name FROM roles WHERE name = $1`, name)
}

func (s *Store) getRole(ctx context.Context, q, arg string) (*Role, error) {
	r := &Role{}
	if err := s.db.QueryRowContext(ctx, q, arg).Scan(&r.ID, &r.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return r, nil
}

// PermissionNames resolves the permission references of a role to names.
func (s *Store) PermissionNames(ctx context.Context, roleID string) ([]string, error) {
	const q = `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
	`
	rows, err := s.db.QueryContext(ctx, q, roleID)
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("role permissions: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	return names, nil
}

// UpsertPermission returns the id of the named permission, creating it when
// missing.
func (s *Store) UpsertPermission(ctx context.Context, name string) (string, error) {
	const q = `
		INSERT INTO permissions (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	var id string
	if err := s.db.QueryRowContext(ctx, q, uuid.NewString(), name).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert permission %q: %w", name, err)
	}
	return id, nil
}

func (s *Store) UpsertRole(ctx context.Context, name string) (string, error) {
	const q = `
		INSERT INTO roles (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	var id string
	if err := s.db.QueryRowContext(ctx, q, uuid.NewString(), name).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert role %q: %w", name, err)
	}
	return id, nil
}

// GrantPermissions links the named permissions to a role. Unknown names are
// ignored and existing grants are kept.
func (s *Store) GrantPermissions(ctx context.Context, roleID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	const q = `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE name = ANY($2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, q, roleID, pq.Array(names)); err != nil {
		return fmt.Errorf("grant permissions: %w", err)
	}
	return nil
}
