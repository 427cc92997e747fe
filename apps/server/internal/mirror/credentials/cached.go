// Package credentials provides mirror.CredentialProvider implementations for
// the source repository access token.
package credentials

import (
	"context"
	"errors"
	"sync"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time check: *Cached implements mirror.CredentialProvider.
var _ mirror.CredentialProvider = (*Cached)(nil)

// Cached resolves a token from an underlying provider once per process and
// reuses it. Failed resolutions are not cached; the next call tries again.
type Cached struct {
	provider mirror.CredentialProvider

	mu    sync.Mutex
	token string
}

// NewCached wraps provider.
func NewCached(provider mirror.CredentialProvider) *Cached {
	return &Cached{provider: provider}
}

// Token implements mirror.CredentialProvider.
func (c *Cached) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}
	token, err := c.provider.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("credential provider returned an empty token")
	}
	c.token = token
	return token, nil
}

// Static is a token supplied directly through configuration.
type Static string

// Token implements mirror.CredentialProvider.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no github token configured")
	}
	return string(s), nil
}
