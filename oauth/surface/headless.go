// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/igauth/oauth"
	sdkHttp "github.com/hashicorp/igauth/sdk/http"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
)

const (
	// maxRedirects is the number of redirects a single navigation follows.
	maxRedirects = 10

	// maxPageSize bounds the body of a page kept by Headless.
	maxPageSize = 1 << 20
)

// ErrReleased is returned when a released surface is asked to load a page.
var ErrReleased = errors.New("surface released")

// Page is the page a Headless surface currently shows.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Headless is an HTTP only oauth.Surface.  It has its own cookie jar, so its
// session is never shared with other surfaces or http.DefaultClient.  Every
// URL it's about to load, redirects included, is reported to the
// NavigationHandler first.  The current page is its only response cache.
type Headless struct {
	logger  hclog.Logger
	caPEM   string
	timeout time.Duration

	mu       sync.Mutex
	client   *http.Client
	handler  oauth.NavigationHandler
	page     *Page
	released bool
}

var _ oauth.Surface = (*Headless)(nil)

// NewHeadless creates a Headless surface with an empty session.
//
// Supported options:
//   - WithLogger
//   - WithProviderCA
//   - WithTimeout
func NewHeadless(opt ...oauth.Option) (*Headless, error) {
	const op = "NewHeadless"
	opts := getSurfaceOpts(opt...)
	h := &Headless{
		logger:  opts.withLogger,
		caPEM:   opts.withProviderCA,
		timeout: opts.withTimeout,
	}
	if h.logger == nil {
		h.logger = hclog.NewNullLogger()
	}
	h.logger = h.logger.Named("headless")
	client, err := h.newClient()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	h.client = client
	return h, nil
}

func (h *Headless) newClient() (*http.Client, error) {
	const op = "Headless.newClient"
	jar, err := sdkHttp.NewCookieJar()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create cookie jar: %w", op, err)
	}
	client, err := sdkHttp.NewClient(h.caPEM, sdkHttp.WithCookieJar(jar))
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, oauth.ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	return client, nil
}

// ClearSession drops every cookie and the current page.  The old cookie jar is
// replaced rather than emptied.
func (h *Headless) ClearSession(_ context.Context) error {
	const op = "Headless.ClearSession"
	client, err := h.newClient()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	h.mu.Lock()
	old := h.client
	h.client = client
	h.page = nil
	h.mu.Unlock()
	old.CloseIdleConnections()
	h.logger.Trace("session cleared")
	return nil
}

// Load loads r, reporting navigation events to nh.  It returns once the page
// finished loading or the navigation was intercepted or failed.  Failures to
// reach a page are reported to nh.OnNavigationFailed rather than returned.
func (h *Headless) Load(ctx context.Context, r *oauth.LoadRequest, nh oauth.NavigationHandler) error {
	const op = "Headless.Load"
	switch {
	case r == nil:
		return fmt.Errorf("%s: load request is nil: %w", op, oauth.ErrNilParameter)
	case nh == nil:
		return fmt.Errorf("%s: navigation handler is nil: %w", op, oauth.ErrNilParameter)
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrReleased)
	}
	h.handler = nh
	if r.CachePolicy == oauth.CacheBypass {
		h.page = nil
	}
	h.mu.Unlock()
	return h.navigate(ctx, r)
}

// Navigate loads rawURL, resolved against the current page, the way a click on
// a link would.
func (h *Headless) Navigate(ctx context.Context, rawURL string) error {
	const op = "Headless.Navigate"
	target, err := h.resolve(rawURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return h.navigate(ctx, &oauth.LoadRequest{Method: http.MethodGet, URL: target})
}

// FollowLink navigates to the href of the current page's element with the id.
func (h *Headless) FollowLink(ctx context.Context, elementID string) error {
	const op = "Headless.FollowLink"
	page := h.Page()
	if page == nil {
		return fmt.Errorf("%s: no page loaded: %w", op, oauth.ErrInvalidParameter)
	}
	root, err := html.Parse(strings.NewReader(string(page.Body)))
	if err != nil {
		return fmt.Errorf("%s: unable to parse page: %w", op, err)
	}
	n, ok := scrape.Find(root, scrape.ById(elementID))
	if !ok {
		return fmt.Errorf("%s: element %q not found on %s: %w", op, elementID, page.URL, oauth.ErrInvalidParameter)
	}
	href := scrape.Attr(n, "href")
	if href == "" {
		return fmt.Errorf("%s: element %q has no href: %w", op, elementID, oauth.ErrInvalidParameter)
	}
	return h.Navigate(ctx, href)
}

// Page returns a copy of the current page, or nil when no page is loaded.
func (h *Headless) Page() *Page {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.page == nil {
		return nil
	}
	p := *h.page
	p.Body = append([]byte(nil), h.page.Body...)
	return &p
}

// Release detaches the handler and drops the session.  Loads in progress are
// not reported to the handler anymore.
func (h *Headless) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	h.handler = nil
	h.page = nil
	h.client.CloseIdleConnections()
	return nil
}

func (h *Headless) resolve(rawURL string) (string, error) {
	const op = "Headless.resolve"
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%s: invalid url %q: %w", op, rawURL, oauth.ErrInvalidParameter)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ref.IsAbs() || h.page == nil {
		return ref.String(), nil
	}
	base, err := url.Parse(h.page.URL)
	if err != nil {
		return "", fmt.Errorf("%s: invalid page url %q: %w", op, h.page.URL, oauth.ErrInvalidParameter)
	}
	return base.ResolveReference(ref).String(), nil
}

// currentHandler returns the attached handler, or nil once released.
func (h *Headless) currentHandler() oauth.NavigationHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler
}

func (h *Headless) navigate(ctx context.Context, r *oauth.LoadRequest) error {
	const op = "Headless.navigate"
	nh := h.currentHandler()
	if nh == nil {
		return fmt.Errorf("%s: %w", op, ErrReleased)
	}
	timeout := r.Timeout
	if timeout == 0 {
		timeout = h.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := r.NewHTTPRequest(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if nh.OnNavigationAttempt(req.URL.String()) == oauth.Intercept {
		h.logger.Trace("navigation intercepted", "url", req.URL.Redacted())
		return nil
	}

	h.mu.Lock()
	client := *h.client
	h.mu.Unlock()
	intercepted := false
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		nh := h.currentHandler()
		if nh == nil || nh.OnNavigationAttempt(next.URL.String()) == oauth.Intercept {
			intercepted = true
			return http.ErrUseLastResponse
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		h.failed(fmt.Errorf("%s: %w: %w", op, oauth.ErrNavigation, err))
		return nil
	}
	defer resp.Body.Close()
	if intercepted {
		h.logger.Trace("redirect intercepted", "url", resp.Request.URL.Redacted())
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		h.failed(fmt.Errorf("%s: unable to read page: %w: %w", op, oauth.ErrNavigation, err))
		return nil
	}

	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.page = &Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}
	h.mu.Unlock()
	h.logger.Trace("page loaded", "url", resp.Request.URL.Redacted(), "status", resp.StatusCode)
	if nh := h.currentHandler(); nh != nil {
		nh.OnPageFinishedLoading()
	}
	return nil
}

func (h *Headless) failed(err error) {
	h.logger.Debug("navigation failed", "error", err)
	if nh := h.currentHandler(); nh != nil {
		nh.OnNavigationFailed(err)
	}
}
