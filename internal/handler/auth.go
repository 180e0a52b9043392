package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/flat-swap/internal/auth"
)

// AuthHandler serves the authenticated-caller endpoints. Both routes sit
// behind auth.Require, so by the time they run the middleware has already
// verified the token and resolved (or registered) the user — all that is
// left is returning the profile.
type AuthHandler struct {
	logger *slog.Logger
}

func NewAuthHandler(logger *slog.Logger) *AuthHandler {
	return &AuthHandler{logger: logger}
}

// HandleMe returns the resolved caller's profile.
//
// HTTP: GET /api/v1/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		// Route is registered behind the middleware; missing user means a
		// wiring bug, not a client error.
		h.logger.Error("authenticated route reached without user in context",
			slog.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleVerify confirms the bearer token is valid and returns the profile.
// Same behavior as HandleMe under a different name: clients use it as a
// cheap token health check.
//
// HTTP: GET /api/v1/auth/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.HandleMe(w, r)
}
