package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var (
	ErrInvalidGoogleAudience = errors.New("invalid google audience")
	ErrGoogleEmailUnverified = errors.New("google email not verified")
)

// GoogleConfig configures [GoogleVerifier].
type GoogleConfig struct {
	// ClientID is the OAuth client the ID token must be issued to.
	ClientID   string
	HTTPClient *http.Client
	// Endpoint overrides the Google API base URL.
	Endpoint string
}

// GoogleVerifier validates Google ID tokens with the tokeninfo endpoint.
type GoogleVerifier struct {
	clientID string
	service  *oauth2.Service
}

// NewGoogleVerifier builds the tokeninfo client.
func NewGoogleVerifier(ctx context.Context, cfg GoogleConfig) (*GoogleVerifier, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errors.New("google client id required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := oauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google oauth2 service: %w", err)
	}

	return &GoogleVerifier{clientID: clientID, service: service}, nil
}

// Verify implements [TokenVerifier]. The token must be issued to the
// configured client and carry a verified email when it carries one at all.
func (g *GoogleVerifier) Verify(ctx context.Context, rawToken string) (*goIdentity.ProviderAssertion, error) {
	tokenInfoCall := g.service.Tokeninfo()
	tokenInfoCall.IdToken(rawToken)
	tokenInfo, err := tokenInfoCall.Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	if tokenInfo.Audience != g.clientID {
		return nil, ErrInvalidGoogleAudience
	}
	if tokenInfo.UserId == "" {
		return nil, errors.New("google token has no subject")
	}
	if tokenInfo.Email != "" && !tokenInfo.VerifiedEmail {
		return nil, ErrGoogleEmailUnverified
	}

	return &goIdentity.ProviderAssertion{
		Kind:      goIdentity.ProviderOAuthA,
		SubjectID: tokenInfo.UserId,
		Email:     tokenInfo.Email,
	}, nil
}
