package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salonadmin/internal/auth"
	"salonadmin/internal/respond"
	"salonadmin/internal/users"
)

type RouterDeps struct {
	Logger     *slog.Logger
	Auth       *auth.Service
	Guard      *auth.Guard
	Users      users.Store
	Gatherer   prometheus.Gatherer
	CORSOrigin string
}

func NewRouter(d RouterDeps) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	// Auth
	api.Handle("/auth/login", loginHandler(d.Auth, d.Logger)).Methods(http.MethodPost)
	api.Handle("/auth/register", registerHandler(d.Auth, d.Logger)).Methods(http.MethodPost)

	// Users
	secured := auth.JWTMiddleware(d.Auth.Tokens(), d.Logger)
	list := &users.ListHandler{Store: d.Users, Logger: d.Logger}
	update := users.NewUpdateHandler(d.Users, d.Logger)
	remove := &users.DeleteHandler{Store: d.Users, Logger: d.Logger}
	api.Handle("/usuarios", secured(d.Guard.RequirePermissions(users.PermissionView)(list))).Methods(http.MethodGet)
	api.Handle("/usuarios/{id}", secured(d.Guard.RequirePermissions(users.PermissionEdit)(update))).Methods(http.MethodPut)
	api.Handle("/usuarios/{id}", secured(d.Guard.RequirePermissions(users.PermissionDelete)(remove))).Methods(http.MethodDelete)

	return withCORS(r, d.CORSOrigin)
}
