// Package hosted is the HTTP client for the hosted auth provider. Sessions
// are obtained with password and refresh-token grants against the
// provider's token endpoint; the refresh token is persisted through a
// TokenStore so a restarted gateway can recover its session, mirroring how
// the provider's own browser SDK recovers from storage.
package hosted

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/openlettings/auth-gateway/internal/autherr"
	"github.com/openlettings/auth-gateway/session"
)

const (
	tokenPath  = "/auth/v1/token"
	logoutPath = "/auth/v1/logout"

	defaultTimeout = 10 * time.Second
)

var _ session.Backend = (*Client)(nil)

// Client talks to the hosted provider's session API and fans provider
// events (delivered over its webhook) out to subscribers.
type Client struct {
	baseURL    string
	oauthCfg   oauth2.Config
	httpClient *http.Client
	tokens     TokenStore
	verifier   idTokenVerifier
	log        zerolog.Logger

	mu   sync.Mutex
	subs map[string]func(event string, s *session.Session)
}

// ClientOption modifies a Client instance.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for all provider calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenStore sets where the refresh token is persisted between runs.
func WithTokenStore(ts TokenStore) ClientOption {
	return func(c *Client) { c.tokens = ts }
}

// WithClientLogger sets the client's logger.
func WithClientLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a provider client. apiKey is sent on every request as
// the provider's project key header.
func NewClient(baseURL, apiKey string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[hosted.NewClient] baseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "[hosted.NewClient] invalid baseURL")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  NewMemoryTokenStore(),
		log:     zerolog.Nop(),
		subs:    make(map[string]func(string, *session.Session)),
	}
	c.oauthCfg = oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	c.httpClient = &http.Client{
		Timeout: defaultTimeout,
		Transport: &apiKeyTransport{
			apiKey: apiKey,
			base: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// CurrentSession recovers a session from the persisted refresh token, or
// returns (nil, nil) when none is stored.
func (c *Client) CurrentSession(ctx context.Context) (*session.Session, error) {
	refreshToken, err := c.tokens.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[hosted.CurrentSession] tokens.Load")
	}
	if refreshToken == "" {
		return nil, nil
	}
	recovered, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		if autherr.Is(err, autherr.ErrInvalidSession) {
			// stored token was revoked upstream; forget it
			if clearErr := c.tokens.Clear(ctx); clearErr != nil {
				c.log.Warn().Err(clearErr).Msg("clearing stale refresh token failed")
			}
			return nil, nil
		}
		return nil, err
	}
	return recovered, nil
}

func (c *Client) SignIn(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	tok, err := c.oauthCfg.PasswordCredentialsToken(c.oauthContext(ctx), creds.Email, creds.Password)
	if err != nil {
		return nil, classify(err, "[hosted.SignIn]")
	}
	s, err := c.sessionFromToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	s.RememberMe = creds.RememberMe
	return s, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	src := c.oauthCfg.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify(err, "[hosted.Refresh]")
	}
	return c.sessionFromToken(ctx, tok)
}

func (c *Client) SignOut(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+logoutPath, nil)
	if err != nil {
		return errors.Wrap(err, "[hosted.SignOut] NewRequest")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	if clearErr := c.tokens.Clear(ctx); clearErr != nil {
		c.log.Warn().Err(clearErr).Msg("clearing refresh token failed")
	}

	// 401 means the session was already invalid upstream; sign-out stays
	// idempotent
	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusUnauthorized {
		return nil
	}
	if resp.StatusCode >= 500 {
		return errors.Wrap(autherr.ErrNetwork, fmt.Sprintf("[hosted.SignOut] provider returned %d", resp.StatusCode))
	}
	return errors.Wrap(autherr.ErrUnknown, fmt.Sprintf("[hosted.SignOut] provider returned %d", resp.StatusCode))
}

// Subscribe registers a raw event handler fed by the provider webhook and
// returns its unsubscribe handle. Satisfies the authstream source contract.
func (c *Client) Subscribe(fn func(event string, s *session.Session)) (unsubscribe func()) {
	id := uuid.New().String()
	c.mu.Lock()
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// sessionFromToken maps a token response onto a Session. The user ID and,
// when the response omits an expiry, the expiry come from the access
// token's claims. When ID-token verification is enabled, the ID token is
// verified before the session is accepted.
func (c *Client) sessionFromToken(ctx context.Context, tok *oauth2.Token) (*session.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return nil, errors.Wrap(autherr.ErrUnknown, "[hosted.sessionFromToken] access token is not a parseable JWT")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.Wrap(autherr.ErrUnknown, "[hosted.sessionFromToken] access token has no subject")
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		if exp, ok := claims["exp"].(float64); ok {
			expiresAt = time.Unix(int64(exp), 0)
		}
	}

	if c.verifier != nil {
		if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
			if _, err := c.verifier.Verify(ctx, rawIDToken); err != nil {
				return nil, errors.Wrap(autherr.ErrInvalidSession, "[hosted.sessionFromToken] id token verification failed: "+err.Error())
			}
		}
	}

	if tok.RefreshToken != "" {
		if err := c.tokens.Save(ctx, tok.RefreshToken); err != nil {
			c.log.Warn().Err(err).Msg("persisting refresh token failed")
		}
	}

	var issuedAt time.Time
	if iat, ok := claims["iat"].(float64); ok {
		issuedAt = time.Unix(int64(iat), 0)
	}

	return &session.Session{
		UserID:       sub,
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
	}, nil
}

// oauthContext routes the oauth2 library's HTTP calls through the client's
// transport so the provider key header rides along.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) emit(event string, s *session.Session) {
	c.mu.Lock()
	fns := make([]func(string, *session.Session), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(event, s)
	}
}

// classify maps transport and provider failures onto the shared taxonomy.
func classify(err error, prefix string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.Response.StatusCode
		switch {
		case code >= 500:
			return errors.Wrap(autherr.ErrNetwork, fmt.Sprintf("%s provider returned %d", prefix, code))
		case code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden:
			return errors.Wrap(autherr.ErrInvalidSession, fmt.Sprintf("%s provider returned %d", prefix, code))
		default:
			return errors.Wrap(autherr.ErrUnknown, fmt.Sprintf("%s provider returned %d", prefix, code))
		}
	}
	return errors.Wrap(autherr.ErrNetwork, prefix+" "+err.Error())
}

// apiKeyTransport adds the provider's project key header to every request.
type apiKeyTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("apikey", t.apiKey)
	return t.base.RoundTrip(cloned)
}
