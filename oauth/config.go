// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	sdkHttp "github.com/hashicorp/igauth/sdk/http"
	"golang.org/x/oauth2"
)

const (
	// DefaultProviderURL is the base URL of the provider's legacy OAuth
	// endpoints.
	DefaultProviderURL = "https://api.instagram.com"

	// AuthorizePath is the path of the provider's hosted authorization page.
	AuthorizePath = "/oauth/authorize/"

	// AccessTokenPath is the path of the provider's access token endpoint.
	AccessTokenPath = "/oauth/access_token/"

	// DefaultTimeout is applied to both the authorize page request and the
	// access token request.
	DefaultTimeout = 10 * time.Second
)

type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// NavigationErrorPolicy decides what a Flow does when its Surface reports a
// failed navigation.
type NavigationErrorPolicy int

const (
	// NavigationErrorLog only logs navigation failures.  Transient renderer
	// errors (a failed sub-resource, for example) don't abort the flow.
	NavigationErrorLog NavigationErrorPolicy = iota

	// NavigationErrorFail terminates the flow with an ErrNavigation failure,
	// unless a code exchange is already in flight.
	NavigationErrorFail
)

func (p NavigationErrorPolicy) String() string {
	switch p {
	case NavigationErrorLog:
		return "log"
	case NavigationErrorFail:
		return "fail"
	default:
		return fmt.Sprintf("NavigationErrorPolicy(%d)", int(p))
	}
}

// UnmarshalText parses "log" or "fail".
func (p *NavigationErrorPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "log", "":
		*p = NavigationErrorLog
	case "fail":
		*p = NavigationErrorFail
	default:
		return fmt.Errorf("unknown navigation error policy %q: %w", text, ErrInvalidParameter)
	}
	return nil
}

// RedirectMatch selects how a Flow recognizes the provider's redirect back to
// the redirect URI.
type RedirectMatch int

const (
	// RedirectMatchURI parses every navigation URL and compares its scheme,
	// host and path with the redirect URI.  Any query parameters of the
	// redirect URI must be present with the same value.  The code is read
	// from the "code" query parameter.
	RedirectMatchURI RedirectMatch = iota

	// RedirectMatchLiteral matches when the navigation URL contains
	// RedirectURI + "?code=" and takes everything after the first
	// occurrence of that marker as the code, without decoding it.
	RedirectMatchLiteral
)

func (m RedirectMatch) String() string {
	switch m {
	case RedirectMatchURI:
		return "uri"
	case RedirectMatchLiteral:
		return "literal"
	default:
		return fmt.Sprintf("RedirectMatch(%d)", int(m))
	}
}

// Config represents the configuration for one authorization code flow against
// the provider.
type Config struct {
	// ClientID is the registered client id
	ClientID string

	// ClientSecret is the registered client secret
	ClientSecret ClientSecret

	// RedirectURI is the registered redirect URI.  The provider echoes it
	// back literally when it redirects with the authorization code.
	RedirectURI string

	// ProviderURL is the base URL of the provider's endpoints.  It defaults
	// to DefaultProviderURL and only needs to change for testing.
	ProviderURL string

	// Scopes is an optional list of scopes to request.  No scope parameter is
	// sent when it's empty.
	Scopes []string

	// ProviderCA is an optional CA cert to use when sending requests to the provider.
	ProviderCA string

	// Timeout is applied to the authorize page request and the access token
	// request.  Zero means DefaultTimeout.
	Timeout time.Duration

	// NavigationErrorPolicy decides whether navigation failures reported by
	// the Surface terminate the flow.
	NavigationErrorPolicy NavigationErrorPolicy

	// RedirectMatch selects how the redirect carrying the code is recognized.
	RedirectMatch RedirectMatch
}

// NewConfig composes a new config for the provider.
// Supported options:
//   - WithProviderURL
//   - WithScopes
//   - WithProviderCA
//   - WithTimeout
//   - WithNavigationErrorPolicy
//   - WithRedirectMatch
func NewConfig(clientID string, clientSecret ClientSecret, redirectURI string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		RedirectURI:           redirectURI,
		ProviderURL:           opts.withProviderURL,
		Scopes:                opts.withScopes,
		ProviderCA:            opts.withProviderCA,
		Timeout:               opts.withTimeout,
		NavigationErrorPolicy: opts.withNavigationErrorPolicy,
		RedirectMatch:         opts.withRedirectMatch,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the configuration.  Every problem found is reported, not just the
// first one.  It doesn't make any requests to the provider.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var retErr *multierror.Error
	if c.ClientID == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter))
	}
	switch {
	case c.RedirectURI == "":
		retErr = multierror.Append(retErr, fmt.Errorf("%s: redirect URI is empty: %w", op, ErrInvalidParameter))
	default:
		u, err := url.Parse(c.RedirectURI)
		switch {
		case err != nil:
			retErr = multierror.Append(retErr, fmt.Errorf("%s: redirect URI %q is invalid: %w: %w", op, c.RedirectURI, ErrInvalidParameter, err))
		case u.Scheme == "" || u.Host == "":
			retErr = multierror.Append(retErr, fmt.Errorf("%s: redirect URI %q is not absolute: %w", op, c.RedirectURI, ErrInvalidParameter))
		case u.Fragment != "":
			retErr = multierror.Append(retErr, fmt.Errorf("%s: redirect URI %q has a fragment: %w", op, c.RedirectURI, ErrInvalidParameter))
		}
	}
	if c.ProviderURL != "" {
		u, err := url.Parse(c.ProviderURL)
		switch {
		case err != nil:
			retErr = multierror.Append(retErr, fmt.Errorf("%s: provider URL %q is invalid: %w: %w", op, c.ProviderURL, ErrInvalidParameter, err))
		case u.Scheme != "https" && u.Scheme != "http":
			retErr = multierror.Append(retErr, fmt.Errorf("%s: provider URL %q scheme is not http or https: %w", op, c.ProviderURL, ErrInvalidParameter))
		case u.Host == "":
			retErr = multierror.Append(retErr, fmt.Errorf("%s: provider URL %q has no host: %w", op, c.ProviderURL, ErrInvalidParameter))
		}
	}
	if c.Timeout < 0 {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: timeout %s is negative: %w", op, c.Timeout, ErrInvalidParameter))
	}
	switch c.NavigationErrorPolicy {
	case NavigationErrorLog, NavigationErrorFail:
	default:
		retErr = multierror.Append(retErr, fmt.Errorf("%s: unsupported %s: %w", op, c.NavigationErrorPolicy, ErrInvalidParameter))
	}
	switch c.RedirectMatch {
	case RedirectMatchURI, RedirectMatchLiteral:
	default:
		retErr = multierror.Append(retErr, fmt.Errorf("%s: unsupported %s: %w", op, c.RedirectMatch, ErrInvalidParameter))
	}
	return retErr.ErrorOrNil()
}

// AuthorizeURL returns the URL of the provider's hosted authorization page,
// carrying client_id, redirect_uri and response_type=code (and scope, when
// scopes are configured).
func (c *Config) AuthorizeURL() string {
	return c.oauth2Config().AuthCodeURL("")
}

// AccessTokenURL returns the URL of the provider's access token endpoint.
func (c *Config) AccessTokenURL() string {
	return c.providerURL() + AccessTokenPath
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured.  The client's timeout is the config's timeout.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA, sdkHttp.WithTimeout(c.timeout()))
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

func (c *Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: string(c.ClientSecret),
		RedirectURL:  c.RedirectURI,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.providerURL() + AuthorizePath,
			TokenURL:  c.AccessTokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Config) providerURL() string {
	if c.ProviderURL == "" {
		return DefaultProviderURL
	}
	return strings.TrimSuffix(c.ProviderURL, "/")
}

func (c *Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// configOptions is the set of available options
type configOptions struct {
	withProviderURL           string
	withScopes                []string
	withProviderCA            string
	withTimeout               time.Duration
	withNavigationErrorPolicy NavigationErrorPolicy
	withRedirectMatch         RedirectMatch
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withProviderURL: DefaultProviderURL,
		withTimeout:     DefaultTimeout,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithProviderURL provides an optional base URL for the provider's endpoints
func WithProviderURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderURL = u
		}
	}
}

// WithScopes provides an optional list of scopes for the provider's config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithTimeout provides an optional timeout for requests to the provider
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTimeout = d
		}
	}
}

// WithNavigationErrorPolicy provides an optional NavigationErrorPolicy
func WithNavigationErrorPolicy(p NavigationErrorPolicy) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withNavigationErrorPolicy = p
		}
	}
}

// WithRedirectMatch provides an optional RedirectMatch
func WithRedirectMatch(m RedirectMatch) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRedirectMatch = m
		}
	}
}
