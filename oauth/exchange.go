// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// maxTokenResponseSize bounds how much of the token response is read.
const maxTokenResponseSize = 1 << 20

// TokenExchanger exchanges an authorization code for a token.  Client is the
// implementation used by a Flow unless WithExchanger overrides it.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*Token, error)
}

// Client exchanges authorization codes with the provider's access token
// endpoint.  It holds no state beyond its config and http client, so it's
// safe for concurrent use.
type Client struct {
	config *Config
	client *http.Client
	logger hclog.Logger
}

var _ TokenExchanger = (*Client)(nil)

// NewClient creates a Client for the config.
//
// Supported options:
//   - WithHTTPClient
//   - WithLogger
func NewClient(c *Config, opt ...Option) (*Client, error) {
	const op = "NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getClientOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = c.HTTPClient(); err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}
	logger := opts.withLogger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		config: c,
		client: client,
		logger: logger.Named("token-exchange"),
	}, nil
}

// Exchange POSTs the code to the access token endpoint and returns the
// resulting token.  The request is bound by the config's timeout as well as
// ctx.  The response body is parsed as json whatever its Content-Type; only
// access_token and user are read.
//
// Errors returned match:
//   - ErrInvalidParameter when the code is empty.  Nothing is sent.
//   - ErrTransport when the request or reading the response fails, or the
//     provider responds with a non-2xx status or an error payload.  The
//     latter is a *ProviderError.
//   - ErrMalformedResponse when the body isn't a json object or has no
//     string access_token.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	const op = "Client.Exchange"
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()

	form := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {string(c.config.ClientSecret)},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.config.RedirectURI},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.AccessTokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create token request: %w: %w", op, ErrInvalidParameter, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("exchanging authorization code", "token_url", c.config.AccessTokenURL())
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("token request failed", "error", err)
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		c.logger.Debug("unable to read token response", "error", err)
		return nil, fmt.Errorf("%s: unable to read token response: %w: %w", op, ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := newProviderError(resp.StatusCode, body)
		c.logger.Debug("authorization code exchange failed", "error", pe)
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, pe)
	}
	tk, err := newToken(resp.StatusCode, body)
	if err != nil {
		c.logger.Debug("authorization code exchange failed", "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("authorization code exchanged", "has_user", tk.User != nil)
	return tk, nil
}

// ExchangeAsync runs Exchange on its own goroutine.  See the package func
// ExchangeAsync.
func (c *Client) ExchangeAsync(ctx context.Context, code string) <-chan TokenResult {
	return ExchangeAsync(ctx, c, code)
}

// ExchangeAsync runs e.Exchange on its own goroutine and returns a channel that
// receives exactly one TokenResult.  The channel is buffered so the goroutine
// never blocks, even if nothing ever reads the result.
func ExchangeAsync(ctx context.Context, e TokenExchanger, code string) <-chan TokenResult {
	ch := make(chan TokenResult, 1)
	go func() {
		defer close(ch)
		ch <- exchange(ctx, e, code)
	}()
	return ch
}

// exchange calls e and normalizes the result so exactly one of Token and Err is
// set.
func exchange(ctx context.Context, e TokenExchanger, code string) TokenResult {
	const op = "exchange"
	if e == nil {
		return TokenResult{Err: fmt.Errorf("%s: token exchanger is nil: %w", op, ErrNilParameter)}
	}
	t, err := e.Exchange(ctx, code)
	switch {
	case err != nil:
		return TokenResult{Err: err}
	case t == nil:
		return TokenResult{Err: fmt.Errorf("%s: exchanger returned no token: %w", op, ErrMalformedResponse)}
	default:
		return TokenResult{Token: t}
	}
}

// newProviderError builds a ProviderError from the token endpoint's response.
// The error fields are read from the body when it's json.
func newProviderError(statusCode int, body []byte) *ProviderError {
	pe := &ProviderError{StatusCode: statusCode, Body: body}
	var payload struct {
		ErrorType        string `json:"error_type"`
		ErrorMessage     string `json:"error_message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return pe
	}
	pe.ErrorType = payload.ErrorType
	if pe.ErrorType == "" {
		pe.ErrorType = payload.Error
	}
	pe.Message = payload.ErrorMessage
	if pe.Message == "" {
		pe.Message = payload.ErrorDescription
	}
	return pe
}

// clientOptions is the set of available options for Client functions
type clientOptions struct {
	withHTTPClient *http.Client
	withLogger     hclog.Logger
}

// clientDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func clientDefaults() clientOptions {
	return clientOptions{}
}

// getClientOpts gets the client defaults and applies the opt overrides passed
// in
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithHTTPClient provides an optional http client for the Client.  It takes
// precedence over the config's ProviderCA and Timeout, although the timeout
// still bounds the exchange's context.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withHTTPClient = c
		}
	}
}
