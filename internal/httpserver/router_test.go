package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonadmin/internal/auth"
)

// fakeStore backs every store interface the router needs.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*auth.User
	roles map[string]*auth.Role
	perms map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[string]*auth.User{},
		roles: map[string]*auth.Role{},
		perms: map[string][]string{},
	}
}

func (f *fakeStore) addRole(name string, perms ...string) *auth.Role {
	r := &auth.Role{ID: uuid.NewString(), Name: name}
	f.roles[r.ID] = r
	f.perms[r.ID] = perms
	return r
}

func (f *fakeStore) resolve(u *auth.User) *auth.User {
	cp := *u
	cp.Role = f.roles[u.RoleID]
	return &cp
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return f.resolve(u), nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return f.resolve(u), nil
}

func (f *fakeStore) CreateUser(_ context.Context, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = uuid.NewString()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetRoleByID(_ context.Context, id string) (*auth.Role, error) {
	if r, ok := f.roles[id]; ok {
		return r, nil
	}
	return nil, auth.ErrRoleNotFound
}

func (f *fakeStore) GetRoleByName(_ context.Context, name string) (*auth.Role, error) {
	for _, r := range f.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, auth.ErrRoleNotFound
}

func (f *fakeStore) PermissionNames(_ context.Context, roleID string) ([]string, error) {
	return f.perms[roleID], nil
}

func (f *fakeStore) ListUsers(context.Context) ([]auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *f.resolve(u))
	}
	return out, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	delete(f.users, id)
	return f.resolve(u), nil
}

func (f *fakeStore) UpdateUser(_ context.Context, id string, name, roleID *string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if roleID != nil {
		u.RoleID = *roleID
	}
	return f.resolve(u), nil
}

type testEnv struct {
	handler http.Handler
	store   *fakeStore
	admin   *auth.Role
	staff   *auth.Role
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newFakeStore()
	admin := store.addRole("Admin", "CanViewUser", "CanEditUser", "CanDeleteUser")
	staff := store.addRole("Usuario", "CanViewUser", "CanManageAppointment")
	store.addRole(auth.DefaultRoleName)

	reg := prometheus.NewRegistry()
	metrics := auth.NewMetrics(reg)
	svc := auth.NewService(store, auth.NewTokenService("test-secret"), metrics)

	h := NewRouter(RouterDeps{
		Logger:     logger,
		Auth:       svc,
		Guard:      auth.NewGuard(store, logger, metrics),
		Users:      store,
		Gatherer:   reg,
		CORSOrigin: "http://localhost:3000",
	})
	return &testEnv{handler: h, store: store, admin: admin, staff: staff}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestRegisterAndLogin_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"nombre": "Ana", "email": "a@x.com", "password": "secret1", "confirmPassword": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reg := decode(t, rec)
	assert.Equal(t, "Cliente", reg["role"])
	assert.NotEmpty(t, reg["token"])
	regUser := reg["user"].(map[string]any)
	assert.Equal(t, "Ana", regUser["name"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode(t, rec)
	assert.Equal(t, regUser["id"], login["user"].(map[string]any)["id"])
}

func TestLogin_SameResponseForUnknownAndWrong(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"nombre": "Ana", "email": "a@x.com", "password": "secret1", "confirmPassword": "secret1",
	})

	wrong := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "bad"})
	unknown := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "z@x.com", "password": "secret1"})

	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "Credenciales inválidas", decode(t, wrong)["message"])
}

var longPassword = strings.Repeat("p", auth.MaxPasswordBytes+1)

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t)
	ok := map[string]any{"nombre": "Ana", "email": "a@x.com", "password": "secret1", "confirmPassword": "secret1"}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/register", "", ok).Code)

	tests := []struct {
		name string
		body map[string]any
		key  string
		msg  string
	}{
		{"missing", map[string]any{"email": "b@x.com", "password": "p", "confirmPassword": "p"}, "msg", msgMissingFields},
		{"mismatch", map[string]any{"nombre": "B", "email": "b@x.com", "password": "p", "confirmPassword": "q"}, "msg", msgPasswordMismatch},
		{"duplicate", ok, "message", msgUserExists},
		{"bad role", map[string]any{"nombre": "B", "email": "b@x.com", "password": "p", "confirmPassword": "p", "rol": "nope"}, "msg", msgInvalidRole},
		{"long password", map[string]any{"nombre": "B", "email": "b@x.com", "password": longPassword, "confirmPassword": longPassword}, "msg", msgPasswordTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.msg, decode(t, rec)[tc.key])
		})
	}
}

func TestProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"nombre": "Ana", "email": "a@x.com", "password": "secret1", "confirmPassword": "secret1",
	})
	clientToken := decode(t, rec)["token"].(string)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"nombre": "Root", "email": "root@x.com", "password": "pw", "confirmPassword": "pw", "rol": env.admin.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	adminToken := decode(t, rec)["token"].(string)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"nombre": "Eva", "email": "eva@x.com", "password": "pw", "confirmPassword": "pw", "rol": env.staff.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	staffToken := decode(t, rec)["token"].(string)

	t.Run("no token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/usuarios", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "No hay token en la petición", decode(t, rec)["msg"])
	})
	t.Run("bad token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/usuarios", "junk", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, decode(t, rec)["msg"], "token no es válido")
	})
	t.Run("forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/usuarios", clientToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.True(t, strings.HasPrefix(decode(t, rec)["msg"].(string), "No tienes permiso"))
	})
	t.Run("allowed", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/usuarios", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["usuarios"], 3)
	})

	var anaID string
	for id, u := range env.store.users {
		if u.Email == "a@x.com" {
			anaID = id
		}
	}
	t.Run("update", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/usuarios/"+anaID, adminToken, map[string]string{"nombre": "Ana B"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Ana B", decode(t, rec)["usuario"].(map[string]any)["nombre"])
	})
	t.Run("staff can list but not delete", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/usuarios", staffToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodDelete, "/api/usuarios/"+anaID, staffToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "No tienes permiso para acceder a esta ruta", decode(t, rec)["msg"])
		assert.Contains(t, env.store.users, anaID)
	})
	t.Run("delete", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/usuarios/"+anaID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Usuario eliminado", decode(t, rec)["msg"])
		assert.NotContains(t, env.store.users, anaID)

		rec = env.do(t, http.MethodDelete, "/api/usuarios/"+anaID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Usuario no encontrado", decode(t, rec)["msg"])
	})
	t.Run("deleted user loses access", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/usuarios", clientToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Usuario o rol no encontrado", decode(t, rec)["msg"])
	})
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "x@x.com", "password": "p"})

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `salon_auth_logins_total{result="rejected"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodOptions, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
