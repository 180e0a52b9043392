package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/auth"
	"github.com/sakif/flat-swap/internal/model"
	"github.com/sakif/flat-swap/internal/service"
)

// UserHandler manages the user listing and self-service profile endpoints.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// HandleList returns users with skip/limit pagination.
//
// HTTP: GET /api/v1/users?skip=0&limit=20
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.users.List(r.Context(), limit, skip)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// HandleGet returns a single user by internal ID.
//
// HTTP: GET /api/v1/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate applies a partial profile update. Self-only.
//
// HTTP: PUT /api/v1/users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var upd model.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.logger.Warn("invalid user update JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.users.Update(r.Context(), actor.ID, r.PathValue("id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleDelete removes a user account. Self-only.
//
// HTTP: DELETE /api/v1/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	if err := h.users.Delete(r.Context(), actor.ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pagination parses the skip/limit query parameters shared by the list
// endpoints. Malformed values are a 400, not silently defaulted.
func pagination(r *http.Request) (skip, limit int, err error) {
	limit = service.DefaultListLimit

	if v := r.URL.Query().Get("skip"); v != "" {
		skip, err = strconv.Atoi(v)
		if err != nil || skip < 0 {
			return 0, 0, apperror.ValidationFailed("skip", "skip must be a non-negative integer")
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, apperror.ValidationFailed("limit", "limit must be a non-negative integer")
		}
	}

	return skip, limit, nil
}
