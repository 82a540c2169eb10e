package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/taskleaf/taskleaf/internal/platform/auth"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidEmail        = errors.New("a valid email is required")
	ErrInvalidPassword     = errors.New("password must be at least 6 characters")
	ErrInvalidCredentials  = errors.New("incorrect email or password")
	ErrGoogleOnlyAccount   = errors.New("this account uses Google sign-in")
	ErrRefreshTokenMissing = errors.New("refresh_token is required")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrMissingGoogleFields = errors.New("google profile is missing email or subject")
)

type UserResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FullName        string    `json:"full_name,omitempty"`
	ProfilePicture  string    `json:"profile_picture,omitempty"`
	GoogleConnected bool      `json:"google_connected"`
	CreatedAt       time.Time `json:"created_at"`
}

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	User         UserResponse `json:"user"`
}

// GoogleProfile is what the OAuth callback learned about the user.
type GoogleProfile struct {
	GoogleID       string
	Email          string
	FullName       string
	ProfilePicture string
	RefreshToken   string
}

type Service struct {
	Repo       Repository
	AuthToken  auth.Manager
	NewID      func() string
	RefreshTTL time.Duration
	Now        func() time.Time
}

func NewService(repo Repository, tokenManager auth.Manager) *Service {
	return &Service{
		Repo:       repo,
		AuthToken:  tokenManager,
		NewID:      nuid.Next,
		RefreshTTL: 30 * 24 * time.Hour,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	if len(strings.TrimSpace(password)) < 6 {
		return ErrInvalidPassword
	}
	return nil
}

func (s *Service) Register(ctx context.Context, email, fullName, password string) (AuthResponse, error) {
	if err := validateCredentials(email, password); err != nil {
		return AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, err
	}

	u := User{
		ID:           s.NewID(),
		Email:        normalizeEmail(email),
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
		CreatedAt:    s.Now(),
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		return AuthResponse{}, err
	}
	return s.issueSession(ctx, u)
}

func (s *Service) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return AuthResponse{}, ErrInvalidCredentials
	}

	u, err := s.Repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResponse{}, ErrInvalidCredentials
		}
		return AuthResponse{}, err
	}
	if u.PasswordHash == "" {
		if u.GoogleID != "" {
			return AuthResponse{}, ErrGoogleOnlyAccount
		}
		return AuthResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return AuthResponse{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, u)
}

// LoginWithGoogle creates or links an account from an OAuth callback and
// issues a session. Matching prefers google_id, then email. A missing
// refresh token in the profile leaves any stored grant in place.
func (s *Service) LoginWithGoogle(ctx context.Context, profile GoogleProfile) (AuthResponse, error) {
	if profile.GoogleID == "" || normalizeEmail(profile.Email) == "" {
		return AuthResponse{}, ErrMissingGoogleFields
	}

	u, err := s.Repo.FindUserByGoogleID(ctx, profile.GoogleID)
	if errors.Is(err, ErrNotFound) {
		u, err = s.Repo.FindUserByEmail(ctx, normalizeEmail(profile.Email))
	}
	switch {
	case err == nil:
		if linkErr := s.Repo.UpdateGoogleLink(ctx, u.ID, profile.GoogleID, profile.ProfilePicture, profile.RefreshToken); linkErr != nil {
			return AuthResponse{}, linkErr
		}
		u.GoogleID = profile.GoogleID
		if profile.ProfilePicture != "" {
			u.ProfilePicture = profile.ProfilePicture
		}
		if profile.RefreshToken != "" {
			u.GoogleRefreshToken = profile.RefreshToken
		}
	case errors.Is(err, ErrNotFound):
		u = User{
			ID:                 s.NewID(),
			Email:              normalizeEmail(profile.Email),
			FullName:           strings.TrimSpace(profile.FullName),
			GoogleID:           profile.GoogleID,
			ProfilePicture:     profile.ProfilePicture,
			GoogleRefreshToken: profile.RefreshToken,
			CreatedAt:          s.Now(),
		}
		if err := s.Repo.CreateUser(ctx, u); err != nil {
			return AuthResponse{}, err
		}
	default:
		return AuthResponse{}, err
	}
	return s.issueSession(ctx, u)
}

// DisconnectGoogle drops the stored calendar grant; the account itself stays.
func (s *Service) DisconnectGoogle(ctx context.Context, userID string) error {
	return s.Repo.ClearGoogleLink(ctx, userID)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return AuthResponse{}, ErrRefreshTokenMissing
	}

	session, err := s.Repo.FindRefreshTokenByHash(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResponse{}, ErrInvalidRefreshToken
		}
		return AuthResponse{}, err
	}
	if err := s.Repo.RevokeRefreshToken(ctx, session.TokenID); err != nil {
		return AuthResponse{}, err
	}

	u, err := s.Repo.FindUserByID(ctx, session.UserID)
	if err != nil {
		return AuthResponse{}, err
	}
	return s.issueSession(ctx, u)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrRefreshTokenMissing
	}
	session, err := s.Repo.FindRefreshTokenByHash(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Repo.RevokeRefreshToken(ctx, session.TokenID)
}

func (s *Service) Me(ctx context.Context, userID string) (UserResponse, error) {
	u, err := s.Repo.FindUserByID(ctx, userID)
	if err != nil {
		return UserResponse{}, err
	}
	return userResponse(u), nil
}

func (s *Service) issueSession(ctx context.Context, user User) (AuthResponse, error) {
	accessToken, err := s.AuthToken.Sign(user.ID, user.Email)
	if err != nil {
		return AuthResponse{}, err
	}

	refreshToken := s.NewID() + "." + s.NewID()
	session := RefreshToken{
		TokenID:   s.NewID(),
		UserID:    user.ID,
		TokenHash: hashRefreshToken(refreshToken),
		ExpiresAt: s.Now().Add(s.RefreshTTL),
	}
	if err := s.Repo.CreateRefreshToken(ctx, session); err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User:         userResponse(user),
	}, nil
}

func userResponse(u User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		FullName:        u.FullName,
		ProfilePicture:  u.ProfilePicture,
		GoogleConnected: u.GoogleConnected(),
		CreatedAt:       u.CreatedAt,
	}
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func NewTokenManager(secret string) auth.Manager {
	return auth.NewManager(secret, 15*time.Minute)
}
