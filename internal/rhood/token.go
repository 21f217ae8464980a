package rhood

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// OAuthToken holds the bearer credential material returned by the token
// endpoint. The upstream does not report creation time natively; it is
// stamped in at refresh time so expiry can be computed later.
type OAuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type,omitempty"`
	CreatedAtRaw int64  `json:"created_at,omitempty"`

	createdAt time.Time
}

// ParseToken decodes a token JSON document. createdAt is used when the
// document itself carries no created_at stamp.
func ParseToken(raw []byte, createdAt time.Time) (*OAuthToken, error) {
	var tok OAuthToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse OAuth token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("parse OAuth token: required key access_token missing")
	}
	if tok.ExpiresIn == 0 {
		return nil, fmt.Errorf("parse OAuth token: required key expires_in missing")
	}
	if tok.Scope == "" {
		return nil, fmt.Errorf("parse OAuth token: required key scope missing")
	}
	if tok.CreatedAtRaw != 0 {
		tok.createdAt = time.Unix(tok.CreatedAtRaw, 0)
	} else {
		tok.createdAt = createdAt
	}
	return &tok, nil
}

// CreatedAt reports when the token was issued; zero when unknown.
func (t *OAuthToken) CreatedAt() time.Time { return t.createdAt }

// Expiration reports when the access token lapses. A token with no known
// creation time is treated as already expired, which forces a refresh on
// first use.
func (t *OAuthToken) Expiration() time.Time {
	if t.createdAt.IsZero() {
		return time.Now()
	}
	return t.createdAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

func (t *OAuthToken) UntilExpiry() time.Duration {
	return time.Until(t.Expiration())
}

// WriteFile persists the token, stamping created_at so a later load
// computes the same expiry.
func (t *OAuthToken) WriteFile(path string) error {
	t.CreatedAtRaw = t.createdAt.Unix()
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
