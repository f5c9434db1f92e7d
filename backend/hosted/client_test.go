package hosted_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/openlettings/auth-gateway/backend/hosted"
	"github.com/openlettings/auth-gateway/internal/autherr"
	"github.com/openlettings/auth-gateway/session"
)

const (
	testAPIKey   = "anon-key"
	testUserID   = "user-1"
	testEmail    = "john.doe@example.com"
	testPassword = "password123"
)

// fakeProvider is an httptest server speaking the provider's token and
// logout endpoints.
type fakeProvider struct {
	t      *testing.T
	server *httptest.Server

	tokenRequests  int
	logoutRequests int
	lastAPIKey     string
	lastGrantType  string
	failWithStatus int
	refreshToken   string
	includeIDToken bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{t: t, refreshToken: "refresh-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", p.handleToken)
	mux.HandleFunc("POST /auth/v1/logout", p.handleLogout)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	p.tokenRequests++
	p.lastAPIKey = r.Header.Get("apikey")

	require.NoError(p.t, r.ParseForm())
	p.lastGrantType = r.Form.Get("grant_type")

	if p.failWithStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.failWithStatus)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	switch p.lastGrantType {
	case "password":
		if r.Form.Get("username") != testEmail || r.Form.Get("password") != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	case "refresh_token":
		if r.Form.Get("refresh_token") != p.refreshToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		p.refreshToken = "refresh-" + time.Now().Format("150405.000000000")
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{
		"access_token":  mintAccessToken(p.t),
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": p.refreshToken,
	}
	if p.includeIDToken {
		body["id_token"] = "id-token-raw"
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (p *fakeProvider) handleLogout(w http.ResponseWriter, r *http.Request) {
	p.logoutRequests++
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mintAccessToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   testUserID,
		"email": testEmail,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("provider-secret"))
	require.NoError(t, err)
	return tok
}

func newClient(t *testing.T, p *fakeProvider, options ...hosted.ClientOption) *hosted.Client {
	t.Helper()
	c, err := hosted.NewClient(p.server.URL, testAPIKey, options...)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := hosted.NewClient("", testAPIKey)
	require.Error(t, err)
}

func TestSignInExchangesPasswordGrant(t *testing.T) {
	p := newFakeProvider(t)
	c := newClient(t, p)

	s, err := c.SignIn(context.Background(), session.Credentials{
		Email:      testEmail,
		Password:   testPassword,
		RememberMe: true,
	})
	require.NoError(t, err)
	require.Equal(t, testUserID, s.UserID)
	require.NotEmpty(t, s.Token)
	require.NotEmpty(t, s.RefreshToken)
	require.True(t, s.RememberMe)
	require.True(t, s.ExpiresAt.After(time.Now()))

	require.Equal(t, "password", p.lastGrantType)
	require.Equal(t, testAPIKey, p.lastAPIKey, "the project key header rides on every provider call")
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	p := newFakeProvider(t)
	c := newClient(t, p)

	_, err := c.SignIn(context.Background(), session.Credentials{Email: testEmail, Password: "wrong"})
	require.Error(t, err)
	require.True(t, autherr.Is(err, autherr.ErrInvalidSession))
}

func TestSignInClassifiesProviderOutage(t *testing.T) {
	p := newFakeProvider(t)
	p.failWithStatus = http.StatusBadGateway
	c := newClient(t, p)

	_, err := c.SignIn(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.Error(t, err)
	require.True(t, autherr.Is(err, autherr.ErrNetwork))
}

func TestSignInClassifiesUnreachableProvider(t *testing.T) {
	c, err := hosted.NewClient("http://127.0.0.1:1", testAPIKey)
	require.NoError(t, err)

	_, err = c.SignIn(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.Error(t, err)
	require.True(t, autherr.Is(err, autherr.ErrNetwork))
}

func TestRefreshUsesRefreshGrant(t *testing.T) {
	p := newFakeProvider(t)
	c := newClient(t, p)

	s, err := c.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, testUserID, s.UserID)
	require.Equal(t, "refresh_token", p.lastGrantType)
	require.NotEqual(t, "refresh-1", s.RefreshToken, "the provider rotates refresh tokens")
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	p := newFakeProvider(t)
	c := newClient(t, p)

	_, err := c.Refresh(context.Background(), "revoked")
	require.Error(t, err)
	require.True(t, autherr.Is(err, autherr.ErrInvalidSession))
}

func TestCurrentSessionRecoversFromStoredToken(t *testing.T) {
	p := newFakeProvider(t)
	tokens := hosted.NewMemoryTokenStore()
	require.NoError(t, tokens.Save(context.Background(), "refresh-1"))
	c := newClient(t, p, hosted.WithTokenStore(tokens))

	s, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, testUserID, s.UserID)

	stored, err := tokens.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, s.RefreshToken, stored, "the rotated refresh token replaces the stored one")
}

func TestCurrentSessionWithNoStoredToken(t *testing.T) {
	p := newFakeProvider(t)
	c := newClient(t, p)

	s, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)
	require.Zero(t, p.tokenRequests)
}

func TestCurrentSessionForgetsRevokedToken(t *testing.T) {
	p := newFakeProvider(t)
	tokens := hosted.NewMemoryTokenStore()
	require.NoError(t, tokens.Save(context.Background(), "revoked-upstream"))
	c := newClient(t, p, hosted.WithTokenStore(tokens))

	s, err := c.CurrentSession(context.Background())
	require.NoError(t, err, "a revoked stored token recovers to signed out, not an error")
	require.Nil(t, s)

	stored, err := tokens.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestSignOutRevokesAndClears(t *testing.T) {
	p := newFakeProvider(t)
	tokens := hosted.NewMemoryTokenStore()
	require.NoError(t, tokens.Save(context.Background(), "refresh-1"))
	c := newClient(t, p, hosted.WithTokenStore(tokens))

	require.NoError(t, c.SignOut(context.Background(), "access-token"))
	require.Equal(t, 1, p.logoutRequests)

	stored, err := tokens.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestSignOutIsIdempotentOn401(t *testing.T) {
	// The provider rejects the bearer token; sign-out still succeeds.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	c, err := hosted.NewClient(server.URL, testAPIKey)
	require.NoError(t, err)
	require.NoError(t, c.SignOut(context.Background(), "stale-token"))
}

type fakeVerifier struct {
	err      error
	verified int
	lastRaw  string
}

func (v *fakeVerifier) Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	v.verified++
	v.lastRaw = rawIDToken
	if v.err != nil {
		return nil, v.err
	}
	return &oidc.IDToken{}, nil
}

func TestSignInVerifiesIDTokenWhenEnabled(t *testing.T) {
	p := newFakeProvider(t)
	p.includeIDToken = true
	c := newClient(t, p)

	verifier := &fakeVerifier{}
	c.SetIDTokenVerifier(verifier)

	_, err := c.SignIn(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, 1, verifier.verified)
	require.Equal(t, "id-token-raw", verifier.lastRaw)
}

func TestSignInRejectsUnverifiableIDToken(t *testing.T) {
	p := newFakeProvider(t)
	p.includeIDToken = true
	c := newClient(t, p)

	c.SetIDTokenVerifier(&fakeVerifier{err: errors.New("signature mismatch")})

	_, err := c.SignIn(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.Error(t, err)
	require.True(t, autherr.Is(err, autherr.ErrInvalidSession))
}

func TestWebhookFansEventsOut(t *testing.T) {
	p := newFakeProvider(t)
	c := newClient(t, p)

	type raw struct {
		event string
		sess  *session.Session
	}
	var events []raw
	unsubscribe := c.Subscribe(func(event string, s *session.Session) {
		events = append(events, raw{event, s})
	})
	defer unsubscribe()

	handler := c.WebhookHandler()

	body := `{"event":"TOKEN_REFRESHED","session":{"access_token":"at","refresh_token":"rt","user_id":"user-1","issued_at":1750000000,"expires_at":1750003600}}`
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/internal/auth/events", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, events, 1)
	require.Equal(t, "TOKEN_REFRESHED", events[0].event)
	require.NotNil(t, events[0].sess)
	require.Equal(t, "user-1", events[0].sess.UserID)
	require.Equal(t, "at", events[0].sess.Token)
	require.Equal(t, time.Unix(1750003600, 0), events[0].sess.ExpiresAt)
}

func TestWebhookRejectsMalformedPayloads(t *testing.T) {
	p := newFakeProvider(t)
	c := newClient(t, p)
	handler := c.WebhookHandler()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/internal/auth/events", strings.NewReader("not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/internal/auth/events", strings.NewReader(`{"session":{}}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code, "an event without a name is rejected")
}

func TestMemoryTokenStoreRoundTrip(t *testing.T) {
	store := hosted.NewMemoryTokenStore()
	ctx := context.Background()

	v, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, v)

	require.NoError(t, store.Save(ctx, "refresh-1"))
	v, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "refresh-1", v)

	require.NoError(t, store.Clear(ctx))
	v, err = store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, v)
}
