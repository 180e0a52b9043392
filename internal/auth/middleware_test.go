package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/model"
)

// fakeIdentity is an in-memory IdentityResolver keyed by subject.
type fakeIdentity struct {
	users map[string]*model.User

	reconciled   *Claims // last claims passed to Reconcile
	resolveErr   error   // overrides ResolveSubject when set
	reconcileErr error   // overrides Reconcile when set
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{users: make(map[string]*model.User)}
}

func (f *fakeIdentity) ResolveSubject(ctx context.Context, subject string) (*model.User, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	u, ok := f.users[subject]
	if !ok {
		return nil, apperror.NotFound("user", subject)
	}
	return u, nil
}

func (f *fakeIdentity) Reconcile(ctx context.Context, claims *Claims) (*model.User, error) {
	if f.reconcileErr != nil {
		return nil, f.reconcileErr
	}
	f.reconciled = claims
	u := &model.User{ID: "registered-id", Subject: claims.Subject, IsActive: true}
	f.users[claims.Subject] = u
	return u, nil
}

// runMiddleware sends req through Require and reports what came out the
// other side: the recorder plus the user the inner handler saw (nil if the
// middleware short-circuited).
func runMiddleware(t *testing.T, identity IdentityResolver, req *http.Request) (*httptest.ResponseRecorder, *model.User) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := Require(newTestVerifier(), identity, logger)

	var seen *model.User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	mw(inner).ServeHTTP(rr, req)
	return rr, seen
}

func authedRequest(t *testing.T, subject string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	raw := signTestToken(t, testKey, testKid, accessClaims(subject))
	req.Header.Set("Authorization", "Bearer "+raw)
	return req
}

func bodyMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body["message"]
}

func TestRequire_NoToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rr, seen := runMiddleware(t, newFakeIdentity(), req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Error("401 response missing WWW-Authenticate: Bearer header")
	}
	if seen != nil {
		t.Error("inner handler should not run without credentials")
	}
}

func TestRequire_GarbageToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")

	rr, _ := runMiddleware(t, newFakeIdentity(), req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if msg := bodyMessage(t, rr); !strings.Contains(msg, "Token verification failed") {
		t.Errorf("message = %q, want verification failure detail", msg)
	}
}

func TestRequire_ReturningUser(t *testing.T) {
	identity := newFakeIdentity()
	identity.users["auth0|abc123"] = &model.User{ID: "u-1", Subject: "auth0|abc123", IsActive: true}

	// No X-ID-Token header: a returning user resolves from the access token alone.
	rr, seen := runMiddleware(t, identity, authedRequest(t, "auth0|abc123"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	if seen == nil || seen.ID != "u-1" {
		t.Errorf("context user = %+v, want u-1", seen)
	}
	if identity.reconciled != nil {
		t.Error("Reconcile should not run for a returning user")
	}
}

func TestRequire_InactiveUser(t *testing.T) {
	identity := newFakeIdentity()
	identity.users["auth0|abc123"] = &model.User{ID: "u-1", Subject: "auth0|abc123", IsActive: false}

	rr, seen := runMiddleware(t, identity, authedRequest(t, "auth0|abc123"))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if msg := bodyMessage(t, rr); msg != "Inactive user" {
		t.Errorf("message = %q, want %q", msg, "Inactive user")
	}
	if seen != nil {
		t.Error("inner handler should not run for an inactive user")
	}
}

func TestRequire_NewUserWithoutIDToken(t *testing.T) {
	rr, _ := runMiddleware(t, newFakeIdentity(), authedRequest(t, "auth0|new"))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if msg := bodyMessage(t, rr); !strings.Contains(msg, "ID token required") {
		t.Errorf("message = %q, want registration hint", msg)
	}
}

func TestRequire_NewUserRegistration(t *testing.T) {
	identity := newFakeIdentity()

	req := authedRequest(t, "auth0|new")
	idClaims := accessClaims("auth0|new")
	idClaims.Audience = jwt.ClaimStrings{"spa-client-id"}
	idClaims.Email = "jane@example.com"
	idClaims.Name = "Jane Doe"
	req.Header.Set(IDTokenHeader, signTestToken(t, testKey, testKid, idClaims))

	rr, seen := runMiddleware(t, identity, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	if seen == nil || seen.ID != "registered-id" {
		t.Errorf("context user = %+v, want the registered user", seen)
	}
	if identity.reconciled == nil {
		t.Fatal("Reconcile was not called")
	}
	if identity.reconciled.Email != "jane@example.com" {
		t.Errorf("reconciled email = %q, want %q", identity.reconciled.Email, "jane@example.com")
	}
}

func TestRequire_IDTokenSubjectMismatch(t *testing.T) {
	req := authedRequest(t, "auth0|new")
	idClaims := accessClaims("auth0|someone-else")
	req.Header.Set(IDTokenHeader, signTestToken(t, testKey, testKid, idClaims))

	rr, _ := runMiddleware(t, newFakeIdentity(), req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if msg := bodyMessage(t, rr); !strings.Contains(msg, "does not match") {
		t.Errorf("message = %q, want subject mismatch detail", msg)
	}
}

func TestRequire_ExpiredIDToken(t *testing.T) {
	req := authedRequest(t, "auth0|new")
	idClaims := accessClaims("auth0|new")
	idClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	req.Header.Set(IDTokenHeader, signTestToken(t, testKey, testKid, idClaims))

	rr, _ := runMiddleware(t, newFakeIdentity(), req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if msg := bodyMessage(t, rr); !strings.Contains(msg, "ID token verification failed") {
		t.Errorf("message = %q, want ID token failure detail", msg)
	}
}

func TestRequire_ProviderUnreachable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := NewVerifier(failingKeys{}, testDomain, testAudience)
	mw := Require(verifier, newFakeIdentity(), logger)

	req := authedRequest(t, "auth0|abc123")
	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not run")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when the key set is unreachable", rr.Code)
	}
}

func TestRequire_ResolveFailure(t *testing.T) {
	identity := newFakeIdentity()
	identity.resolveErr = errors.New("database on fire")

	rr, _ := runMiddleware(t, identity, authedRequest(t, "auth0|abc123"))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("UserFromContext() on a bare context should report absent")
	}
}
