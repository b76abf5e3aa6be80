// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Decision is a NavigationHandler's answer to a navigation attempt.
type Decision int

const (
	// Allow lets the surface perform the navigation.
	Allow Decision = iota

	// Intercept cancels the navigation.  The surface must not load the URL.
	Intercept
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Intercept:
		return "intercept"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// CachePolicy tells a Surface whether it may answer a load from a cache.
type CachePolicy int

const (
	CacheDefault CachePolicy = iota

	// CacheBypass requires the surface to ignore any cached response and
	// fetch from the network.
	CacheBypass
)

// LoadRequest is a request a Flow asks its Surface to load.
type LoadRequest struct {
	Method      string
	URL         string
	Header      http.Header
	Body        []byte
	CachePolicy CachePolicy

	// Timeout bounds the request.  Zero means no timeout beyond the
	// surface's own.
	Timeout time.Duration
}

// NewHTTPRequest returns an *http.Request for the LoadRequest.  The caller is
// responsible for applying r.Timeout to ctx.
func (r *LoadRequest) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	const op = "LoadRequest.NewHTTPRequest"
	if r == nil {
		return nil, fmt.Errorf("%s: load request is nil: %w", op, ErrNilParameter)
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w: %w", op, ErrInvalidParameter, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// NavigationHandler receives a Surface's navigation events.  A Surface
// delivers them one at a time.  Flow implements it.
type NavigationHandler interface {
	// OnNavigationAttempt is called before every navigation, including the
	// initial load, with the URL about to be loaded.
	OnNavigationAttempt(rawURL string) Decision

	// OnPageFinishedLoading is called when a page finished loading.
	OnPageFinishedLoading()

	// OnNavigationFailed is called when a navigation failed.
	OnNavigationFailed(err error)
}

// Surface is the browsing surface hosting the provider's authorization page.
// Every Flow needs its own Surface: the session a Surface keeps must not be
// shared with anything else in the process.
type Surface interface {
	// ClearSession drops every cached response and every cookie of the
	// surface's session.
	ClearSession(ctx context.Context) error

	// Load starts loading r and reports navigation events to h.  It may
	// return before the page finished loading.
	Load(ctx context.Context, r *LoadRequest, h NavigationHandler) error

	// Release detaches the surface from its handler and frees its
	// resources.  It's safe to call more than once.
	Release() error
}

// Indicator is a host UI element showing network activity.
type Indicator interface {
	Start()
	Stop()
}

type noopIndicator struct{}

func (noopIndicator) Start() {}
func (noopIndicator) Stop()  {}

// ResultFunc receives a Flow's outcome.  Exactly one of t and err is non-nil.
type ResultFunc func(t *Token, err error)

// TerminateFunc asks the host to close the flow's UI.
type TerminateFunc func()
