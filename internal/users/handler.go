package users

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"salonadmin/internal/auth"
	"salonadmin/internal/respond"
)

// Permissions guarding the user administration routes.
const (
	PermissionView   = "CanViewUser"
	PermissionEdit   = "CanEditUser"
	PermissionDelete = "CanDeleteUser"
)

const (
	msgNotFound    = "Usuario no encontrado"
	msgInvalidRole = "El rol especificado no es válido"
	msgEmptyName   = "El nombre no puede estar vacío"
	msgBadBody     = "Cuerpo de la petición inválido"
)

type Store interface {
	ListUsers(ctx context.Context) ([]auth.User, error)
	UpdateUser(ctx context.Context, id string, name, roleID *string) (*auth.User, error)
	DeleteUser(ctx context.Context, id string) (*auth.User, error)
	GetRoleByID(ctx context.Context, id string) (*auth.Role, error)
}

type roleView struct {
	ID     string `json:"id"`
	Nombre string `json:"nombreRol"`
}

// userView never carries the password hash.
type userView struct {
	ID     string    `json:"id"`
	Nombre string    `json:"nombre"`
	Email  string    `json:"email"`
	Rol    *roleView `json:"rol"`
	Estado bool      `json:"estado"`
}

func toView(u *auth.User) userView {
	v := userView{ID: u.ID, Nombre: u.Name, Email: u.Email, Estado: u.Active}
	if u.Role != nil {
		v.Rol = &roleView{ID: u.Role.ID, Nombre: u.Role.Name}
	}
	return v
}

type ListHandler struct {
	Store  Store
	Logger *slog.Logger
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.Logger.Error("list users", "err", err)
		respond.Msg(w, http.StatusInternalServerError, "Error al obtener usuarios")
		return
	}
	views := make([]userView, 0, len(list))
	for i := range list {
		views = append(views, toView(&list[i]))
	}
	respond.JSON(w, http.StatusOK, map[string]any{"usuarios": views})
}

type updateRequest struct {
	Nombre *string `json:"nombre" validate:"omitempty,min=1"`
	Rol    *string `json:"rol" validate:"omitempty,uuid"`
}

type UpdateHandler struct {
	Store    Store
	Logger   *slog.Logger
	validate *validator.Validate
}

func NewUpdateHandler(store Store, logger *slog.Logger) *UpdateHandler {
	return &UpdateHandler{Store: store, Logger: logger, validate: validator.New()}
}

// validationMessage reports every rejected field, in struct order.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return msgBadBody
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "Nombre":
			msgs = append(msgs, msgEmptyName)
		case "Rol":
			msgs = append(msgs, msgInvalidRole)
		default:
			msgs = append(msgs, msgBadBody)
		}
	}
	return strings.Join(msgs, ". ")
}

func (h *UpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Msg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respond.Msg(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Rol != nil {
		if _, err := h.Store.GetRoleByID(r.Context(), *req.Rol); err != nil {
			if errors.Is(err, auth.ErrRoleNotFound) {
				respond.Msg(w, http.StatusBadRequest, msgInvalidRole)
				return
			}
			h.Logger.Error("update user: get role", "err", err)
			respond.Msg(w, http.StatusInternalServerError, "Error al modificar usuario")
			return
		}
	}
	u, err := h.Store.UpdateUser(r.Context(), id, req.Nombre, req.Rol)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			respond.Msg(w, http.StatusNotFound, msgNotFound)
			return
		}
		h.Logger.Error("update user", "user_id", id, "err", err)
		respond.Msg(w, http.StatusInternalServerError, "Error al modificar usuario")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"msg":     "Usuario modificado correctamente",
		"usuario": toView(u),
	})
}

type DeleteHandler struct {
	Store  Store
	Logger *slog.Logger
}

func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, err := h.Store.DeleteUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			respond.Msg(w, http.StatusNotFound, msgNotFound)
			return
		}
		h.Logger.Error("delete user", "user_id", id, "err", err)
		respond.Msg(w, http.StatusInternalServerError, "Error al eliminar usuario")
		return
	}
	if actor, ok := auth.UserIDFromContext(r.Context()); ok {
		h.Logger.Info("user deleted", "user_id", u.ID, "by", actor)
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"msg":     "Usuario eliminado",
		"usuario": toView(u),
	})
}
