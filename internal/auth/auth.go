package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// CredentialStore is the storage the authentication service needs.
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	GetRoleByID(ctx context.Context, id string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
}

type Service struct {
	store    CredentialStore
	tokens   *TokenService
	validate *validator.Validate
	metrics  *Metrics
}

func NewService(store CredentialStore, tokens *TokenService, metrics *Metrics) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  metrics,
	}
}

func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login checks the credentials and issues a session token. Unknown email and
// wrong password produce the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		s.metrics.login(resultRejected)
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.metrics.login(resultRejected)
			return nil, ErrInvalidCredentials
		}
		s.metrics.login(resultError)
		return nil, fmt.Errorf("login: %w", err)
	}
	if !VerifyPassword(password, user.PasswordHash) {
		s.metrics.login(resultRejected)
		return nil, ErrInvalidCredentials
	}
	// A token always carries a role name; a user whose role is gone cannot
	// get one.
	if user.Role == nil {
		s.metrics.login(resultRejected)
		return nil, ErrInvalidCredentials
	}
	sess, err := s.newSession(user)
	if err != nil {
		s.metrics.login(resultError)
		return nil, err
	}
	s.metrics.login(resultSuccess)
	return sess, nil
}

type RegisterInput struct {
	Name            string `validate:"required"`
	Email           string `validate:"required"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required"`
	// RoleID is optional; empty means the default role.
	RoleID string
	// Active is optional; nil means active.
	Active *bool
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	sess, err := s.register(ctx, in)
	switch {
	case err == nil:
		s.metrics.registration(resultSuccess)
	case isRegisterRejection(err):
		s.metrics.registration(resultRejected)
	default:
		s.metrics.registration(resultError)
	}
	return sess, err
}

func isRegisterRejection(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrPasswordMismatch) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrDuplicateUser) ||
		errors.Is(err, ErrInvalidRole)
}

func (s *Service) register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, ErrMissingFields
		}
		return nil, err
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, ErrDuplicateUser
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	role, err := s.resolveRole(ctx, in.RoleID)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	user := &User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		RoleID:       role.ID,
		Role:         role,
		Active:       active,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	return s.newSession(user)
}

func (s *Service) resolveRole(ctx context.Context, roleID string) (*Role, error) {
	if roleID != "" {
		role, err := s.store.GetRoleByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				return nil, ErrInvalidRole
			}
			return nil, fmt.Errorf("register: %w", err)
		}
		return role, nil
	}
	role, err := s.store.GetRoleByName(ctx, DefaultRoleName)
	if err != nil {
		// The default role is seed data; its absence is a deployment fault.
		return nil, fmt.Errorf("register: default role %q: %w", DefaultRoleName, err)
	}
	return role, nil
}

func (s *Service) newSession(user *User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID, user.Role.Name)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{
		Token: token,
		Role:  user.Role.Name,
		User:  user.Summary(),
	}, nil
}
