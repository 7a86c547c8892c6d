package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "github.com/target/mammoth/internal/errors"
)

// AuthConfig selects how the bearer credential is obtained.
// A static APIKey is used unless an OIDC issuer is configured, in which case a
// client-credentials token is requested from the issuer's discovered token endpoint.
type AuthConfig struct {
	APIKey string

	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string
}

func (a AuthConfig) usesOIDC() bool {
	return strings.TrimSpace(a.OIDCIssuer) != ""
}

// TransportOptions configures the authenticated HTTP client.
type TransportOptions struct {
	Auth        AuthConfig
	Timeout     time.Duration
	EnableHTTP2 bool
	Logger      *slog.Logger
}

// NewHTTPClient builds an *http.Client whose requests carry "Authorization: Bearer <token>".
// The returned client is read-only after construction and may be shared by all workers.
func NewHTTPClient(ctx context.Context, opts TransportOptions) (*http.Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := newBaseTransport()
	if opts.EnableHTTP2 {
		if err := http2.ConfigureTransport(base); err != nil {
			// The stdlib transport still negotiates HTTP/1.1, so this is not fatal.
			logger.WarnContext(ctx, "http2 transport configuration failed", "error", err)
		}
	}

	// Plain client used for discovery and token requests (no bearer header).
	bootstrapClient := &http.Client{Transport: base, Timeout: opts.Timeout}

	src, err := newTokenSource(ctx, bootstrapClient, opts.Auth)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: src,
			Base:   base,
		},
		Timeout: opts.Timeout,
	}, nil
}

func newBaseTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

//nolint:ireturn // oauth2.TokenSource is the library's abstraction for both token flavours.
func newTokenSource(ctx context.Context, hc *http.Client, auth AuthConfig) (oauth2.TokenSource, error) {
	if !auth.usesOIDC() {
		key := strings.TrimSpace(auth.APIKey)
		if key == "" {
			return nil, apperrors.ValidationField("DISPATCHER_API_KEY", "dispatcher bearer credential is required")
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}), nil
	}

	if auth.OIDCClientID == "" || auth.OIDCClientSecret == "" {
		return nil, apperrors.Validation("oidc client id and secret are required when an issuer is configured")
	}

	clientCtx := gooidc.ClientContext(ctx, hc)
	issuer := strings.TrimSuffix(strings.TrimSpace(auth.OIDCIssuer), "/")
	provider, err := gooidc.NewProvider(clientCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer %s: %w", issuer, err)
	}

	cc := clientcredentials.Config{
		ClientID:     auth.OIDCClientID,
		ClientSecret: auth.OIDCClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
		Scopes:       auth.OIDCScopes,
	}
	// Token refreshes outlive ctx, so they use a background context bound to the plain client.
	return cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, hc)), nil
}
