package anthropic

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// oauthBeta is the header value that switches the Messages API from an
// x-api-key to a bearer-token Claude subscription credential.
const oauthBeta = "oauth-2025-04-20"

// OAuthCredential wraps an oauth2.TokenSource with the read/refresh split
// the driver's OAuthRefresher seam expects: Send reads the current access
// token on every request; Refresh is called exactly once by the driver when
// a response reports an expired token, and blocks until a new one lands.
type OAuthCredential struct {
	mu     sync.RWMutex
	source oauth2.TokenSource
	token  *oauth2.Token
}

// NewOAuthCredential builds a credential from an oauth2.Config and the token
// last persisted to the OAuth config directory (spec config layer). cfg's
// TokenSource lazily refreshes using token.RefreshToken when the access
// token has expired.
func NewOAuthCredential(cfg oauth2.Config, token *oauth2.Token) *OAuthCredential {
	return &OAuthCredential{
		source: cfg.TokenSource(context.Background(), token),
		token:  token,
	}
}

// AccessToken returns the current bearer token, refreshing lazily via the
// wrapped TokenSource if it has expired.
func (c *OAuthCredential) AccessToken() (string, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok.Valid() {
		return tok.AccessToken, nil
	}
	return c.refreshLocked()
}

// Refresh forces a token refresh, implementing service.OAuthRefresher.
func (c *OAuthCredential) Refresh(ctx context.Context) error {
	_, err := c.refreshLocked()
	return err
}

func (c *OAuthCredential) refreshLocked() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("oauth token refresh: %w", err)
	}
	c.token = tok
	return tok.AccessToken, nil
}
