package googlecal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	tokenEndpoint    = "https://oauth2.googleapis.com/token"
	authEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	userinfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"

	oauthScopes = "openid email profile https://www.googleapis.com/auth/calendar.events"
)

var (
	ErrNotConnected = errors.New("google calendar is not connected")
	ErrTokenRevoked = errors.New("google token was revoked")
)

// OAuth drives the authorization-code flow against Google's endpoints.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

func NewOAuth(clientID, clientSecret, redirectURL string) *OAuth {
	return &OAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OAuth) Configured() bool {
	return o != nil && o.ClientID != "" && o.ClientSecret != ""
}

// AuthURL builds the consent URL. access_type=offline with consent prompt
// makes Google reissue a refresh token.
func (o *OAuth) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", o.ClientID)
	q.Set("redirect_uri", o.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", oauthScopes)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("state", state)
	return authEndpoint + "?" + q.Encode()
}

type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type Userinfo struct {
	Sub     string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ExchangeCode trades an authorization code for tokens.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("redirect_uri", o.RedirectURL)
	return o.tokenRequest(ctx, form)
}

// RefreshAccessToken trades a stored refresh token for a fresh access token.
func (o *OAuth) RefreshAccessToken(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, ErrNotConnected
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	return o.tokenRequest(ctx, form)
}

func (o *OAuth) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return Token{}, fmt.Errorf("%w: %s", ErrTokenRevoked, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode >= 400 {
		return Token{}, fmt.Errorf("token endpoint error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return Token{}, fmt.Errorf("unmarshal token response: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, errors.New("token endpoint returned no access token")
	}
	return tok, nil
}

// FetchUserinfo resolves the signed-in user's profile.
func (o *OAuth) FetchUserinfo(ctx context.Context, accessToken string) (Userinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoEndpoint, nil)
	if err != nil {
		return Userinfo{}, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return Userinfo{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Userinfo{}, fmt.Errorf("read userinfo response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Userinfo{}, fmt.Errorf("userinfo error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info Userinfo
	if err := json.Unmarshal(body, &info); err != nil {
		return Userinfo{}, fmt.Errorf("unmarshal userinfo: %w", err)
	}
	return info, nil
}
