package credentials

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

type tokenSource struct {
	ctx      context.Context
	provider mirror.CredentialProvider
}

// TokenSource adapts provider to an oauth2.TokenSource so HTTP clients
// authenticate with the same token the service checks before a run.
func TokenSource(ctx context.Context, provider mirror.CredentialProvider) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, provider: provider}
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	token, err := t.provider.Token(t.ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve github token: %w", err)
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
