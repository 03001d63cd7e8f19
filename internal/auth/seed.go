package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SeedData struct {
	Permissions []string   `yaml:"permissions"`
	Roles       []SeedRole `yaml:"roles"`
	Users       []SeedUser `yaml:"users"`
}

type SeedRole struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// SeedUser is a bootstrap account; Role is a role name.
type SeedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

func LoadSeedFile(path string) (*SeedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sd SeedData
	if err := yaml.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &sd, nil
}

func (s *Store) SeedFromFile(ctx context.Context, path string) error {
	sd, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	return s.Seed(ctx, sd)
}

// Seed creates the declared permissions, roles and bootstrap users. It is
// safe to run on every start: existing rows are reused and existing users
// are left alone.
func (s *Store) Seed(ctx context.Context, sd *SeedData) error {
	for _, name := range sd.Permissions {
		if name == "" {
			continue
		}
		if _, err := s.UpsertPermission(ctx, name); err != nil {
			return err
		}
	}
	roleIDs := make(map[string]string, len(sd.Roles))
	for _, r := range sd.Roles {
		if r.Name == "" {
			continue
		}
		id, err := s.UpsertRole(ctx, r.Name)
		if err != nil {
			return err
		}
		if err := s.GrantPermissions(ctx, id, r.Permissions); err != nil {
			return err
		}
		roleIDs[r.Name] = id
	}
	for _, u := range sd.Users {
		if u.Email == "" || u.Password == "" {
			continue
		}
		if _, err := s.GetUserByEmail(ctx, u.Email); err == nil {
			continue
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		roleID, ok := roleIDs[u.Role]
		if !ok {
			role, err := s.GetRoleByName(ctx, u.Role)
			if err != nil {
				return fmt.Errorf("seed user %s: role %q: %w", u.Email, u.Role, err)
			}
			roleID = role.ID
		}
		hash, err := HashPassword(u.Password)
		if err != nil {
			return err
		}
		user := &User{Name: u.Name, Email: u.Email, PasswordHash: hash, RoleID: roleID, Active: true}
		if err := s.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	return nil
}
