package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// DispatcherConfig describes how to reach the remote job dispatcher.
type DispatcherConfig struct {
	URL     string        `env:"URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	HTTP2   bool          `env:"HTTP2"   envDefault:"true"`

	// FetchRate limits next-pending requests per second across the whole process; 0 disables it.
	FetchRate  float64 `env:"FETCH_RATE"  envDefault:"0"`
	FetchBurst int     `env:"FETCH_BURST" envDefault:"1"`

	// OIDC client credentials replace the static API key when OIDCIssuer is set.
	OIDCIssuer       string   `env:"OIDC_ISSUER"`
	OIDCClientID     string   `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string   `env:"OIDC_CLIENT_SECRET"`
	OIDCScopes       []string `env:"OIDC_SCOPES"        envSeparator:","`
}

// Sanitize trims values and enforces safe defaults.
func (c *DispatcherConfig) Sanitize() {
	c.URL = strings.TrimSuffix(strings.TrimSpace(c.URL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.OIDCIssuer = strings.TrimSpace(c.OIDCIssuer)
	c.OIDCClientID = strings.TrimSpace(c.OIDCClientID)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.FetchRate < 0 {
		c.FetchRate = 0
	}
	if c.FetchBurst < 1 {
		c.FetchBurst = 1
	}

	// Copies of the config share the slice.
	scopes := slices.Clone(c.OIDCScopes)
	for i, s := range scopes {
		scopes[i] = strings.TrimSpace(s)
	}
	c.OIDCScopes = slices.DeleteFunc(scopes, func(s string) bool { return s == "" })
}

// UsesOIDC reports whether client-credential auth is configured.
func (c *DispatcherConfig) UsesOIDC() bool {
	return c.OIDCIssuer != ""
}

// Validate reports missing or malformed dispatcher settings.
func (c *DispatcherConfig) Validate() error {
	var errs []error
	if err := requireField("DISPATCHER_URL", c.URL); err != nil {
		errs = append(errs, err)
	} else if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("DISPATCHER_URL %q is not an absolute URL", c.URL))
	}

	if c.UsesOIDC() {
		if c.OIDCClientID == "" || c.OIDCClientSecret == "" {
			errs = append(errs, errors.New("DISPATCHER_OIDC_CLIENT_ID and DISPATCHER_OIDC_CLIENT_SECRET are required with DISPATCHER_OIDC_ISSUER"))
		}
	} else if err := requireField("DISPATCHER_API_KEY", c.APIKey); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
