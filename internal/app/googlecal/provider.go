package googlecal

import (
	"context"
	"sync"
	"time"

	"github.com/taskleaf/taskleaf/internal/app/identity"
	"github.com/taskleaf/taskleaf/internal/calendar"
)

// Provider exposes per-user calendar operations. The user is identified by
// the application account id; token plumbing stays behind the interface.
type Provider interface {
	Connected(ctx context.Context, userID string) (bool, error)
	ListEvents(ctx context.Context, userID string, from, to calendar.Date) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, userID string, in EventInput) (string, error)
	UpdateEvent(ctx context.Context, userID, remoteID string, in EventInput) error
	DeleteEvent(ctx context.Context, userID, remoteID string) error
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Service resolves a user's stored grant to an access token and calls the
// calendar API with it. Access tokens are memoized until shortly before
// expiry.
type Service struct {
	Users  identity.Repository
	OAuth  *OAuth
	Client *Client
	Now    func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken
}

func NewService(users identity.Repository, oauth *OAuth) *Service {
	return &Service{
		Users:  users,
		OAuth:  oauth,
		Client: NewClient(),
		Now:    func() time.Time { return time.Now().UTC() },
		tokens: map[string]cachedToken{},
	}
}

func (s *Service) Connected(ctx context.Context, userID string) (bool, error) {
	u, err := s.Users.FindUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.GoogleConnected(), nil
}

func (s *Service) accessToken(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	cached, ok := s.tokens[userID]
	s.mu.Unlock()
	if ok && s.Now().Before(cached.expiresAt) {
		return cached.accessToken, nil
	}

	u, err := s.Users.FindUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !u.GoogleConnected() {
		return "", ErrNotConnected
	}

	tok, err := s.OAuth.RefreshAccessToken(ctx, u.GoogleRefreshToken)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	s.mu.Lock()
	s.tokens[userID] = cachedToken{accessToken: tok.AccessToken, expiresAt: s.Now().Add(ttl)}
	s.mu.Unlock()
	return tok.AccessToken, nil
}

func (s *Service) invalidate(userID string) {
	s.mu.Lock()
	delete(s.tokens, userID)
	s.mu.Unlock()
}

func (s *Service) ListEvents(ctx context.Context, userID string, from, to calendar.Date) ([]calendar.Event, error) {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, err := s.Client.ListEvents(ctx, token, from, to)
	if err != nil {
		s.invalidate(userID)
		return nil, err
	}
	return events, nil
}

func (s *Service) CreateEvent(ctx context.Context, userID string, in EventInput) (string, error) {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return "", err
	}
	remoteID, err := s.Client.CreateEvent(ctx, token, in)
	if err != nil {
		s.invalidate(userID)
		return "", err
	}
	return remoteID, nil
}

func (s *Service) UpdateEvent(ctx context.Context, userID, remoteID string, in EventInput) error {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.Client.UpdateEvent(ctx, token, remoteID, in); err != nil {
		s.invalidate(userID)
		return err
	}
	return nil
}

func (s *Service) DeleteEvent(ctx context.Context, userID, remoteID string) error {
	token, err := s.accessToken(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.Client.DeleteEvent(ctx, token, remoteID); err != nil {
		s.invalidate(userID)
		return err
	}
	return nil
}
