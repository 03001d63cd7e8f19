package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// memStore is an in-memory CredentialStore and PermissionStore.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*User // by id
	roles       map[string]*Role // by id
	permissions map[string][]string

	err error // returned from every call when set
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]*User{},
		roles:       map[string]*Role{},
		permissions: map[string][]string{},
	}
}

func (m *memStore) addRole(name string, perms ...string) *Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &Role{ID: uuid.NewString(), Name: name}
	m.roles[r.ID] = r
	m.permissions[r.ID] = perms
	return r
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == email {
			return m.withRole(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.withRole(u), nil
}

func (m *memStore) withRole(u *User) *User {
	cp := *u
	cp.Role = nil
	if r, ok := m.roles[u.RoleID]; ok {
		rc := *r
		cp.Role = &rc
	}
	return &cp
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateUser
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetRoleByID(_ context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return r, nil
}

func (m *memStore) GetRoleByName(_ context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, ErrRoleNotFound
}

func (m *memStore) PermissionNames(_ context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.permissions[roleID], nil
}

func (m *memStore) setPermissions(roleID string, perms ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions[roleID] = perms
}

func (m *memStore) setUserRole(userID, roleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].RoleID = roleID
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
