package hosted

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openlettings/auth-gateway/session"
)

// webhookPayload is the provider's auth-event webhook body.
type webhookPayload struct {
	Event   string `json:"event"`
	Session *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		UserID       string `json:"user_id"`
		IssuedAt     int64  `json:"issued_at"`
		ExpiresAt    int64  `json:"expires_at"` // epoch seconds
	} `json:"session"`
}

// WebhookHandler accepts the provider's auth-event webhook and fans the
// events out to subscribers. Mount it on an internal route.
func (c *Client) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}

		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, `{"error":"malformed event payload"}`, http.StatusBadRequest)
			return
		}
		if payload.Event == "" {
			http.Error(w, `{"error":"missing event name"}`, http.StatusBadRequest)
			return
		}

		var s *session.Session
		if payload.Session != nil {
			s = &session.Session{
				UserID:       payload.Session.UserID,
				Token:        payload.Session.AccessToken,
				RefreshToken: payload.Session.RefreshToken,
				IssuedAt:     time.Unix(payload.Session.IssuedAt, 0),
				ExpiresAt:    time.Unix(payload.Session.ExpiresAt, 0),
			}
		}

		c.log.Debug().Str("event", payload.Event).Msg("provider auth event received")
		c.emit(payload.Event, s)
		w.WriteHeader(http.StatusAccepted)
	}
}
