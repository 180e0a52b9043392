package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/flat-swap/internal/apperror"
	"github.com/sakif/flat-swap/internal/auth"
	"github.com/sakif/flat-swap/internal/model"
	"github.com/sakif/flat-swap/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. A fake rather
// than a mock framework: you can read exactly what it does.
type fakeUserRepo struct {
	users     map[string]*model.User // by internal ID
	bySubject map[string]*model.User
	nextID    int

	createCalls int
	updateCalls int

	// raceWinner simulates losing a concurrent first registration: when
	// set, Create fails with a conflict and the winner's row appears under
	// the subject, so the retry lookup finds it.
	raceWinner *model.User

	updateErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:     make(map[string]*model.User),
		bySubject: make(map[string]*model.User),
		nextID:    1,
	}
}

func (f *fakeUserRepo) add(u *model.User) *model.User {
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", f.nextID)
		f.nextID++
	}
	f.users[u.ID] = u
	f.bySubject[u.Subject] = u
	return u
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.createCalls++
	if f.raceWinner != nil {
		f.add(f.raceWinner)
		return apperror.Conflict("user already exists for subject " + user.Subject)
	}
	if _, exists := f.bySubject[user.Subject]; exists {
		return apperror.Conflict("user already exists for subject " + user.Subject)
	}
	user.CreatedAt = time.Now().UTC()
	f.add(user)
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetBySubject(ctx context.Context, subject string) (*model.User, error) {
	u, ok := f.bySubject[subject]
	if !ok {
		return nil, apperror.NotFound("user", subject)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	users := []model.User{}
	for _, u := range f.users {
		users = append(users, *u)
	}
	return users, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	now := time.Now().UTC()
	user.UpdatedAt = &now
	copied := *user
	f.users[user.ID] = &copied
	f.bySubject[user.Subject] = &copied
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id string) error {
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.bySubject, u.Subject)
	delete(f.users, id)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func idClaims(subject, email, name string) *auth.Claims {
	return &auth.Claims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
		},
	}
}

// =========================================================================
// RECONCILE — NEW USER
// =========================================================================

func TestReconcile_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	user, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "jane@example.com", "Jane Doe"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if user.Subject != "auth0|abc123" {
		t.Errorf("Subject = %q, want %q", user.Subject, "auth0|abc123")
	}
	if user.Email == nil || *user.Email != "jane@example.com" {
		t.Errorf("Email = %v, want jane@example.com", user.Email)
	}
	if user.FirstName == nil || *user.FirstName != "Jane" {
		t.Errorf("FirstName = %v, want Jane", user.FirstName)
	}
	if user.LastName == nil || *user.LastName != "Doe" {
		t.Errorf("LastName = %v, want Doe", user.LastName)
	}
	if !user.ProfileComplete {
		t.Error("ProfileComplete = false, want true (email and name present)")
	}
	if !user.IsActive {
		t.Error("new users must be created active")
	}
	if user.IsSuperuser {
		t.Error("new users must not be superusers")
	}
}

func TestReconcile_NewUserSingleWordName(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	user, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "cher@example.com", "Cher"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if user.FirstName == nil || *user.FirstName != "Cher" {
		t.Errorf("FirstName = %v, want Cher", user.FirstName)
	}
	if user.LastName != nil {
		t.Errorf("LastName = %q, want nil for a single-word name", *user.LastName)
	}
}

func TestReconcile_NewUserMultiWordName(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	user, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "x@example.com", "Ana Maria da Silva"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if user.FirstName == nil || *user.FirstName != "Ana" {
		t.Errorf("FirstName = %v, want Ana", user.FirstName)
	}
	if user.LastName == nil || *user.LastName != "Maria da Silva" {
		t.Errorf("LastName = %v, want %q", user.LastName, "Maria da Silva")
	}
}

func TestReconcile_NewUserWithoutEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	user, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "", "Jane Doe"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if user.Email != nil {
		t.Errorf("Email = %q, want nil for an absent claim", *user.Email)
	}
	if user.ProfileComplete {
		t.Error("ProfileComplete = true, want false without an email claim")
	}
}

func TestReconcile_NicknameFallback(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	claims := idClaims("auth0|abc123", "x@example.com", "")
	claims.Nickname = "janed"

	user, err := svc.Reconcile(context.Background(), claims)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if user.FirstName == nil || *user.FirstName != "janed" {
		t.Errorf("FirstName = %v, want nickname fallback janed", user.FirstName)
	}
}

// =========================================================================
// RECONCILE — EXISTING USER
// =========================================================================

func TestReconcile_Idempotent(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())
	claims := idClaims("auth0|abc123", "jane@example.com", "Jane Doe")

	if _, err := svc.Reconcile(context.Background(), claims); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	updatesBefore := repo.updateCalls

	// Same claims again: nothing changed, nothing should be persisted.
	if _, err := svc.Reconcile(context.Background(), claims); err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if repo.updateCalls != updatesBefore {
		t.Errorf("second pass persisted %d update(s), want 0", repo.updateCalls-updatesBefore)
	}
}

func TestReconcile_UpdatesChangedEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	if _, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "old@example.com", "Jane Doe")); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	user, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "new@example.com", "Jane Doe"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if user.Email == nil || *user.Email != "new@example.com" {
		t.Errorf("Email = %v, want new@example.com", user.Email)
	}
}

func TestReconcile_EmptyClaimDoesNotErase(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	if _, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "jane@example.com", "Jane Doe")); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	// The provider may omit claims on later tokens; absence is not erasure.
	user, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "", ""))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if user.Email == nil || *user.Email != "jane@example.com" {
		t.Errorf("Email = %v, want the stored value kept", user.Email)
	}
	if user.FirstName == nil || *user.FirstName != "Jane" {
		t.Errorf("FirstName = %v, want the stored value kept", user.FirstName)
	}
}

func TestReconcile_RegistrationRace(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewIdentityService(repo, testLogger())

	// The winner's row lands between our lookup and our insert.
	winner := &model.User{
		ID:       "winner-id",
		Subject:  "auth0|abc123",
		IsActive: true,
	}
	repo.raceWinner = winner

	user, err := svc.Reconcile(context.Background(),
		idClaims("auth0|abc123", "jane@example.com", "Jane Doe"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v, want the race resolved by retry", err)
	}
	if user.ID != "winner-id" {
		t.Errorf("ID = %q, want the winner's row %q", user.ID, "winner-id")
	}
	// The loser's claims still get applied as a profile update.
	if user.Email == nil || *user.Email != "jane@example.com" {
		t.Errorf("Email = %v, want jane@example.com after retry", user.Email)
	}
}

func TestReconcile_MissingSubject(t *testing.T) {
	svc := NewIdentityService(newFakeUserRepo(), testLogger())

	_, err := svc.Reconcile(context.Background(), idClaims("", "x@example.com", "X"))
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}

	_, err = svc.Reconcile(context.Background(), nil)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for nil claims", err)
	}
}

// =========================================================================
// RESOLVE SUBJECT
// =========================================================================

func TestResolveSubject(t *testing.T) {
	repo := newFakeUserRepo()
	repo.add(&model.User{ID: "u-1", Subject: "auth0|abc123", IsActive: true})
	svc := NewIdentityService(repo, testLogger())

	user, err := svc.ResolveSubject(context.Background(), "auth0|abc123")
	if err != nil {
		t.Fatalf("ResolveSubject() error = %v", err)
	}
	if user.ID != "u-1" {
		t.Errorf("ID = %q, want u-1", user.ID)
	}

	_, err = svc.ResolveSubject(context.Background(), "auth0|unknown")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
