package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/taskleaf/taskleaf/internal/platform/auth"
)

type fakeRepo struct {
	users         map[string]User
	refreshByHash map[string]RefreshToken

	createErr error
	findErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         map[string]User{},
		refreshByHash: map[string]RefreshToken{},
	}
}

func (f *fakeRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeRepo) CreateUser(ctx context.Context, user User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return errors.New("duplicate email")
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeRepo) FindUserByEmail(ctx context.Context, email string) (User, error) {
	if f.findErr != nil {
		return User{}, f.findErr
	}
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (f *fakeRepo) FindUserByID(ctx context.Context, userID string) (User, error) {
	u, ok := f.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) FindUserByGoogleID(ctx context.Context, googleID string) (User, error) {
	for _, u := range f.users {
		if u.GoogleID != "" && u.GoogleID == googleID {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (f *fakeRepo) UpdateGoogleLink(ctx context.Context, userID, googleID, picture, refreshToken string) error {
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.GoogleID = googleID
	if picture != "" {
		u.ProfilePicture = picture
	}
	if refreshToken != "" {
		u.GoogleRefreshToken = refreshToken
	}
	f.users[userID] = u
	return nil
}

func (f *fakeRepo) ClearGoogleLink(ctx context.Context, userID string) error {
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.GoogleRefreshToken = ""
	f.users[userID] = u
	return nil
}

func (f *fakeRepo) ListGoogleConnectedUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for id, u := range f.users {
		if u.GoogleRefreshToken != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRepo) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	f.refreshByHash[token.TokenHash] = token
	return nil
}

func (f *fakeRepo) FindRefreshTokenByHash(ctx context.Context, tokenHash string) (RefreshToken, error) {
	rt, ok := f.refreshByHash[tokenHash]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	if rt.RevokedAt != nil || rt.ExpiresAt.Before(time.Now().UTC()) {
		return RefreshToken{}, ErrNotFound
	}
	return rt, nil
}

func (f *fakeRepo) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	now := time.Now().UTC()
	for hash, rt := range f.refreshByHash {
		if rt.TokenID == tokenID {
			rt.RevokedAt = &now
			f.refreshByHash[hash] = rt
		}
	}
	return nil
}

func testTokenManager() auth.Manager {
	m := auth.NewManager("secret", time.Hour)
	m.Now = func() time.Time { return time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC) }
	return m
}

func newTestService(repo *fakeRepo) *Service {
	svc := NewService(repo, testTokenManager())
	next := 0
	svc.NewID = func() string {
		next++
		return fmt.Sprintf("id-%d", next)
	}
	return svc
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	reg, err := svc.Register(context.Background(), "Alice@Example.com", "Alice Smith", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if reg.AccessToken == "" || reg.RefreshToken == "" || reg.User.ID == "" {
		t.Fatalf("unexpected register response: %+v", reg)
	}
	if reg.User.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", reg.User.Email)
	}

	login, err := svc.Login(context.Background(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh did not rotate the token")
	}

	// The old token is revoked by rotation.
	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for rotated token, got %v", err)
	}

	if err := svc.Logout(context.Background(), refreshed.RefreshToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), refreshed.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after logout, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(newFakeRepo())

	if _, err := svc.Register(context.Background(), "not-an-email", "", "password123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob@example.com", "", "short"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	if _, err := svc.Register(context.Background(), "bob@example.com", "Bob", "password123"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := svc.Login(context.Background(), "bob@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLoginGoogleOnlyAccount(t *testing.T) {
	repo := newFakeRepo()
	repo.users["u1"] = User{ID: "u1", Email: "carol@example.com", GoogleID: "g-sub-1"}
	svc := newTestService(repo)

	if _, err := svc.Login(context.Background(), "carol@example.com", "password123"); !errors.Is(err, ErrGoogleOnlyAccount) {
		t.Fatalf("expected ErrGoogleOnlyAccount, got %v", err)
	}
}

func TestLoginWithGoogleCreatesAccount(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	resp, err := svc.LoginWithGoogle(context.Background(), GoogleProfile{
		GoogleID:     "g-sub-9",
		Email:        "Dana@Example.com",
		FullName:     "Dana",
		RefreshToken: "grant-1",
	})
	if err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}
	if !resp.User.GoogleConnected {
		t.Fatal("expected google_connected after sign-in with a grant")
	}

	u, err := repo.FindUserByGoogleID(context.Background(), "g-sub-9")
	if err != nil {
		t.Fatalf("FindUserByGoogleID error: %v", err)
	}
	if u.Email != "dana@example.com" || u.GoogleRefreshToken != "grant-1" {
		t.Fatalf("unexpected stored user: %+v", u)
	}
}

func TestLoginWithGoogleLinksByEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	if _, err := svc.Register(context.Background(), "erin@example.com", "Erin", "password123"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := svc.LoginWithGoogle(context.Background(), GoogleProfile{
		GoogleID:     "g-sub-2",
		Email:        "erin@example.com",
		RefreshToken: "grant-2",
	}); err != nil {
		t.Fatalf("LoginWithGoogle error: %v", err)
	}

	if len(repo.users) != 1 {
		t.Fatalf("expected link to existing account, have %d users", len(repo.users))
	}
	u, err := repo.FindUserByEmail(context.Background(), "erin@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail error: %v", err)
	}
	if u.GoogleID != "g-sub-2" || u.PasswordHash == "" {
		t.Fatalf("link lost account data: %+v", u)
	}
}

func TestDisconnectGoogleKeepsAccount(t *testing.T) {
	repo := newFakeRepo()
	repo.users["u1"] = User{ID: "u1", Email: "frank@example.com", GoogleID: "g-sub-3", GoogleRefreshToken: "grant-3"}
	svc := newTestService(repo)

	if err := svc.DisconnectGoogle(context.Background(), "u1"); err != nil {
		t.Fatalf("DisconnectGoogle error: %v", err)
	}
	u := repo.users["u1"]
	if u.GoogleRefreshToken != "" {
		t.Fatal("grant not cleared")
	}
	if u.GoogleID == "" {
		t.Fatal("disconnect should keep the identity link")
	}
}
