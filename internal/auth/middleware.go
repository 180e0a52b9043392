package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/model"
)

// IDTokenHeader is the side channel for the identity token, needed only
// when the caller has no local account yet.
const IDTokenHeader = "X-ID-Token"

// IdentityResolver maps a verified subject or set of ID-token claims to a
// local user record. Implemented by service.IdentityService.
type IdentityResolver interface {
	// ResolveSubject looks up the local user for a subject.
	// Returns an error matching apperror.ErrNotFound when none exists.
	ResolveSubject(ctx context.Context, subject string) (*model.User, error)
	// Reconcile creates or updates the local user from ID-token claims.
	Reconcile(ctx context.Context, claims *Claims) (*model.User, error)
}

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the authenticated user value.
type contextKey string

const userKey contextKey = "user"

// WithUser returns a context carrying the resolved user.
// Exposed for handler tests; the middleware is the production caller.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext retrieves the authenticated user set by Require.
// Returns (nil, false) on routes that did not pass through the middleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// Require enforces authentication and resolves the caller to a local user.
//
// The request walks a small state machine:
//
//	no bearer credential                  → 401
//	strict verification fails             → 401 with the classified cause
//	key set unreachable                   → 503
//	access token has no subject           → 401
//	local user found by subject           → resolved
//	no local user, no X-ID-Token          → 400 "identity token required"
//	ID token subject != access subject    → 400
//	ID token verifies                     → reconcile → resolved
//	resolved user is inactive             → 400
//
// The two-token handshake exists because the access token carries no
// profile claims; email/name/picture arrive only on the ID token, which is
// required only for first-time registration.
func Require(verifier *Verifier, identity IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required")
				return
			}

			claims, err := verifier.VerifyAccessToken(ctx, raw)
			if err != nil {
				writeVerifyError(w, logger, err)
				return
			}

			subject := claims.Subject
			if subject == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "access token missing subject claim")
				return
			}

			user, err := identity.ResolveSubject(ctx, subject)
			switch {
			case err == nil:
				// Returning user: resolved directly, no ID token needed.

			case errors.Is(err, apperror.ErrNotFound):
				user, err = registerFromIDToken(ctx, verifier, identity, r, subject)
				if err != nil {
					writeRegistrationError(w, logger, err)
					return
				}

			default:
				logger.Error("resolving user failed",
					slog.String("subject", subject),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				return
			}

			if !user.IsActive {
				writeAuthError(w, http.StatusBadRequest, "inactive_user", "Inactive user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
		})
	}
}

// registerFromIDToken handles the first-registration leg: verify the ID
// token in relaxed mode, require the subjects to match, then reconcile.
func registerFromIDToken(ctx context.Context, verifier *Verifier, identity IdentityResolver, r *http.Request, subject string) (*model.User, error) {
	idToken := r.Header.Get(IDTokenHeader)
	if idToken == "" {
		return nil, apperror.ValidationFailed("id_token",
			"ID token required for new user registration. Send X-ID-Token header.")
	}

	idClaims, err := verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	if idClaims.Subject != subject {
		return nil, apperror.ValidationFailed("id_token",
			"ID token sub does not match access token sub")
	}

	return identity.Reconcile(ctx, idClaims)
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// writeVerifyError maps an access-token verification failure to HTTP.
// Token failures are the caller's problem (401); an unreachable key set is
// ours (503).
func writeVerifyError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		logger.Error("identity provider key set unreachable", slog.String("error", err.Error()))
		writeAuthError(w, http.StatusServiceUnavailable, "provider_unavailable",
			"identity provider unavailable, try again later")
		return
	}

	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		writeAuthError(w, http.StatusUnauthorized, "unauthorized",
			"Token verification failed: "+tokenErr.Message)
		return
	}

	writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Token verification failed")
}

// writeRegistrationError maps a first-registration failure to HTTP:
// validation problems (missing ID token, subject mismatch) are 400, ID
// token verification failures are 401, reconciliation failures are 500.
func writeRegistrationError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && errors.Is(err, apperror.ErrValidation) {
		writeAuthError(w, http.StatusBadRequest, "bad_request", appErr.Message)
		return
	}

	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		writeAuthError(w, http.StatusUnauthorized, "unauthorized",
			"ID token verification failed: "+tokenErr.Message)
		return
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		writeAuthError(w, http.StatusServiceUnavailable, "provider_unavailable",
			"identity provider unavailable, try again later")
		return
	}

	logger.Error("user registration failed", slog.String("error", err.Error()))
	writeAuthError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
}

// writeAuthError writes the same JSON error shape the handlers use.
// Duplicated here rather than importing the handler package, which sits
// above this one in the dependency chain.
func writeAuthError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errType,
		"message": message,
	})
}
