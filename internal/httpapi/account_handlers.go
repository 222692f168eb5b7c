package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"cuentas.dev/internal/account"
	"cuentas.dev/internal/audit"
)

// Outward messages mirror the deployed API contract.
const (
	msgDuplicateEmail  = "El correo ya está registrado"
	msgDuplicateName   = "El nombre ya está registrado"
	msgUpdateDuplicate = "El email que intenta ingresar ya existe"
	msgBadCredentials  = "Usuario o contraseña incorrectos"
	msgMissingToken    = "Token no proporcionado"
	msgInvalidToken    = "Token inválido o expirado"
	msgForbidden       = "Acceso no autorizado"
	msgNotFound        = "Usuario no encontrado"
	msgRegistered      = "Usuario registrado y autenticado correctamente"
	msgAuthenticated   = "Usuario autenticado correctamente"
	msgUpdated         = "Usuario modificado correctamente"
	msgDeactivated     = "Usuario desactivado correctamente"
	msgReactivated     = "Usuario reactivado correctamente"
)

type registerRequest struct {
	Nombre   string              `json:"nombre"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Roles    []string            `json:"roles"`
	Permisos account.Permissions `json:"permisos"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateRequest struct {
	Nombre   string              `json:"nombre"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Roles    []string            `json:"roles"`
	Permisos account.Permissions `json:"permisos"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.accounts.Register(r.Context(), account.RegisterInput{
		Nombre:   req.Nombre,
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
		Permisos: req.Permisos,
	})
	if err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateEmail):
			writeError(w, r, http.StatusBadRequest, msgDuplicateEmail)
		case errors.Is(err, account.ErrDuplicateName):
			writeError(w, r, http.StatusBadRequest, msgDuplicateName)
		case errors.Is(err, account.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			a.writeInternal(w, r, "Error al registrar usuario", err)
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "account.register", map[string]any{
		"account_id": session.AccountID,
		"email":      req.Email,
		"roles":      req.Roles,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		Message:   msgRegistered,
		ExpiresAt: session.ExpiresAt,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, msgBadCredentials)
			return
		}
		a.writeInternal(w, r, "Error al autenticar usuario", err)
		return
	}

	_ = audit.LogEvent(r.Context(), "account.login", map[string]any{
		"account_id": session.AccountID,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		Message:   msgAuthenticated,
		ExpiresAt: session.ExpiresAt,
	})
}

// handleAccounts is the role-gated read: administrators receive the active
// account listing, plain users their own profile.
func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, err := a.authenticate(r)
	if err != nil {
		if errors.Is(err, errMissingToken) {
			writeError(w, r, http.StatusUnauthorized, msgMissingToken)
			return
		}
		writeError(w, r, http.StatusUnauthorized, msgInvalidToken)
		return
	}
	ctx := account.ContextWithPrincipal(r.Context(), principal)

	view, err := a.accounts.Accounts(ctx, principal.AccountID, principal.Roles)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrForbidden):
			writeError(w, r, http.StatusForbidden, msgForbidden)
		case errors.Is(err, account.ErrNotFound):
			writeError(w, r, http.StatusNotFound, msgNotFound)
		default:
			a.writeInternal(w, r, "Error interno del servidor", err)
		}
		return
	}

	if view.Profile != nil {
		writeJSON(w, http.StatusOK, view.Profile)
		return
	}
	writeJSON(w, http.StatusOK, view.Listing)
}

// handleAccountResource dispatches /v1/accounts/{id} and
// /v1/accounts/{id}/deactivate|reactivate.
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleUpdate(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "deactivate":
		a.handleSetActive(w, r, parts[0], false)
	case len(parts) == 2 && parts[1] == "reactivate":
		a.handleSetActive(w, r, parts[0], true)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.accounts.Update(r.Context(), account.UpdateInput{
		ID:       id,
		Nombre:   req.Nombre,
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
		Permisos: req.Permisos,
	})
	if err != nil {
		switch {
		case errors.Is(err, account.ErrDuplicateEmail):
			writeError(w, r, http.StatusBadRequest, msgUpdateDuplicate)
		case errors.Is(err, account.ErrNotFound):
			writeError(w, r, http.StatusNotFound, msgNotFound)
		case errors.Is(err, account.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			a.writeInternal(w, r, "Error al modificar usuario", err)
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "account.update", map[string]any{
		"account_id": id,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: msgUpdated})
}

// handleSetActive is the shared Admin gate for deactivation and
// reactivation: missing token 401, invalid token 401, non-Admin 403.
func (a *API) handleSetActive(w http.ResponseWriter, r *http.Request, id string, active bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, err := a.authenticate(r)
	if err != nil {
		if errors.Is(err, errMissingToken) {
			writeError(w, r, http.StatusUnauthorized, msgMissingToken)
			return
		}
		writeError(w, r, http.StatusUnauthorized, msgInvalidToken)
		return
	}
	if !account.HasRole(principal.Roles, account.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, msgForbidden)
		return
	}
	ctx := account.ContextWithPrincipal(r.Context(), principal)

	if err := a.accounts.SetActive(ctx, id, active); err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			writeError(w, r, http.StatusNotFound, msgNotFound)
		case errors.Is(err, account.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			a.writeInternal(w, r, "Error al actualizar usuario", err)
		}
		return
	}

	event, msg := "account.deactivate", msgDeactivated
	if active {
		event, msg = "account.reactivate", msgReactivated
	}
	_ = audit.LogEvent(ctx, event, map[string]any{
		"target_id": id,
		"active":    active,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}
