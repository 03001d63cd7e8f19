package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"salonadmin/internal/respond"
)

type contextKey string

const userIDContextKey contextKey = "salonadmin_user_id"

const bearerPrefix = "Bearer "

// Response messages shared with the frontend.
const (
	msgNoToken         = "No hay token en la petición"
	msgInvalidToken    = "No tienes permiso para estar aqui :) post: tu token no es válido"
	msgUserOrRoleGone  = "Usuario o rol no encontrado"
	msgForbidden       = "No tienes permiso para acceder a esta ruta"
	msgPermissionCheck = "Error al verificar permisos"
)

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey).(string)
	return id, ok && id != ""
}

// TokenFromHeader strips an optional "Bearer " prefix from an Authorization
// header value.
func TokenFromHeader(h string) (string, error) {
	if strings.TrimSpace(h) == "" {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimLeft(h, " \t"), bearerPrefix))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

// JWTMiddleware rejects requests without a valid session token and puts the
// token's user id into the request context. The role claim is not trusted
// downstream.
func JWTMiddleware(tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := TokenFromHeader(r.Header.Get("Authorization"))
			if errors.Is(err, ErrNoToken) {
				respond.Msg(w, http.StatusUnauthorized, msgNoToken)
				return
			}
			if err != nil {
				respond.Msg(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}
			claims, err := tokens.Verify(token)
			if err != nil {
				logger.Debug("rejected token", "path", r.URL.Path)
				respond.Msg(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// PermissionStore is the storage the permission guard reads on every request.
type PermissionStore interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	PermissionNames(ctx context.Context, roleID string) ([]string, error)
}

// Guard authorizes requests against the caller's current role as stored,
// not against what the token said at issue time.
type Guard struct {
	store   PermissionStore
	logger  *slog.Logger
	metrics *Metrics
}

func NewGuard(store PermissionStore, logger *slog.Logger, metrics *Metrics) *Guard {
	return &Guard{store: store, logger: logger, metrics: metrics}
}

// HasAllPermissions reports whether every required name is granted.
func HasAllPermissions(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

// errUserOrRoleMissing is a denial: the caller or its role cannot be resolved.
var errUserOrRoleMissing = errors.New("user or role not found")

// Check returns nil when the user's role grants all required permissions,
// an error wrapping ErrPermissionDenied when it does not, and any other
// error when storage failed.
func (g *Guard) Check(ctx context.Context, userID string, required []string) error {
	user, err := g.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return errors.Join(ErrPermissionDenied, errUserOrRoleMissing)
		}
		return err
	}
	if user.Role == nil || user.Role.ID == "" {
		return errors.Join(ErrPermissionDenied, errUserOrRoleMissing)
	}
	granted, err := g.store.PermissionNames(ctx, user.Role.ID)
	if err != nil {
		return err
	}
	if !HasAllPermissions(granted, required) {
		return ErrPermissionDenied
	}
	return nil
}

// RequirePermissions builds middleware that lets a request through only when
// the caller holds every permission in required. It must run after
// JWTMiddleware.
func (g *Guard) RequirePermissions(required ...string) func(http.Handler) http.Handler {
	required = append([]string(nil), required...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				g.metrics.decision(decisionDenied)
				respond.Msg(w, http.StatusForbidden, msgUserOrRoleGone)
				return
			}
			err := g.Check(r.Context(), userID, required)
			switch {
			case err == nil:
				g.metrics.decision(decisionAllowed)
				next.ServeHTTP(w, r)
			case errors.Is(err, errUserOrRoleMissing):
				g.metrics.decision(decisionDenied)
				respond.Msg(w, http.StatusForbidden, msgUserOrRoleGone)
			case errors.Is(err, ErrPermissionDenied):
				g.metrics.decision(decisionDenied)
				g.logger.Info("permission denied", "user_id", userID, "required", required)
				respond.Msg(w, http.StatusForbidden, msgForbidden)
			default:
				g.metrics.decision(decisionError)
				g.logger.Error("permission check", "user_id", userID, "err", err)
				respond.Msg(w, http.StatusInternalServerError, msgPermissionCheck)
			}
		})
	}
}
