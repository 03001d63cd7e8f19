package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"salonadmin/internal/auth"
	"salonadmin/internal/respond"
)

const (
	msgInvalidCredentials = "Credenciales inválidas"
	msgServerError        = "Error en el servidor"
	msgMissingFields      = "Faltan campos obligatorios (nombre, email, password, confirmPassword)"
	msgPasswordMismatch   = "Las contraseñas no coinciden"
	msgUserExists         = "El usuario ya existe"
	msgInvalidRole        = "El rol especificado no es válido"
	msgBadBody            = "Cuerpo de la petición inválido"
	msgPasswordTooLong    = "La contraseña no puede superar los 72 bytes"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func loginHandler(svc *auth.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Msg(w, http.StatusBadRequest, msgBadBody)
			return
		}
		sess, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				respond.Message(w, http.StatusBadRequest, msgInvalidCredentials)
				return
			}
			logger.Error("login", "err", err)
			respond.Message(w, http.StatusInternalServerError, msgServerError)
			return
		}
		logger.Info("login", "user_id", sess.User.ID, "role", sess.Role)
		respond.JSON(w, http.StatusOK, sess)
	}
}

type registerRequest struct {
	Nombre          string `json:"nombre"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Rol             string `json:"rol"`
	Estado          *bool  `json:"estado"`
}

func registerHandler(svc *auth.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Msg(w, http.StatusBadRequest, msgBadBody)
			return
		}
		sess, err := svc.Register(r.Context(), auth.RegisterInput{
			Name:            req.Nombre,
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
			RoleID:          req.Rol,
			Active:          req.Estado,
		})
		switch {
		case err == nil:
			logger.Info("user registered", "user_id", sess.User.ID, "role", sess.Role)
			respond.JSON(w, http.StatusOK, sess)
		case errors.Is(err, auth.ErrMissingFields):
			respond.Msg(w, http.StatusBadRequest, msgMissingFields)
		case errors.Is(err, auth.ErrPasswordMismatch):
			respond.Msg(w, http.StatusBadRequest, msgPasswordMismatch)
		case errors.Is(err, auth.ErrPasswordTooLong):
			respond.Msg(w, http.StatusBadRequest, msgPasswordTooLong)
		case errors.Is(err, auth.ErrDuplicateUser):
			respond.Message(w, http.StatusBadRequest, msgUserExists)
		case errors.Is(err, auth.ErrInvalidRole):
			respond.Msg(w, http.StatusBadRequest, msgInvalidRole)
		default:
			logger.Error("register", "err", err)
			respond.Message(w, http.StatusInternalServerError, msgServerError)
		}
	}
}
