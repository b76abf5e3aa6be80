// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package surface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cli/browser"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/igauth/oauth"
)

const closeWindowHTML = `<!DOCTYPE html>
<html>
<head><title>Authorization complete</title></head>
<body><p>Authorization complete. You may close this window.</p></body>
</html>
`

// System is an oauth.Surface backed by the system's default browser.  It opens
// the authorization page in the browser and listens on the redirect URI's
// loopback address; every request the browser makes to it is reported as a
// navigation attempt.
//
// The browser's cookies are out of reach, so ClearSession only logs.  Use
// Headless when the session must be isolated.
type System struct {
	redirectURL *url.URL
	openURL     func(string) error
	logger      hclog.Logger

	mu       sync.Mutex
	handler  oauth.NavigationHandler
	server   *http.Server
	addr     string
	released bool

	// navMu serializes the callbacks of concurrent browser requests.
	navMu sync.Mutex
}

var _ oauth.Surface = (*System)(nil)

// NewSystem creates a System surface for the redirect URI, which must be an
// http URI with a host and port the surface can listen on, like
// http://127.0.0.1:8080/callback.
//
// Supported options:
//   - WithLogger
//   - WithOpenURL
func NewSystem(redirectURI string, opt ...oauth.Option) (*System, error) {
	const op = "NewSystem"
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%s: redirect URI %q is invalid: %w: %w", op, redirectURI, oauth.ErrInvalidParameter, err)
	}
	if u.Scheme != "http" || u.Port() == "" {
		return nil, fmt.Errorf("%s: redirect URI %q must be http with an explicit port: %w", op, redirectURI, oauth.ErrInvalidParameter)
	}
	opts := getSurfaceOpts(opt...)
	s := &System{
		redirectURL: u,
		openURL:     opts.withOpenURL,
		logger:      opts.withLogger,
	}
	if s.openURL == nil {
		s.openURL = browser.OpenURL
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	s.logger = s.logger.Named("system")
	return s, nil
}

// ClearSession can't clear the browser's cookies or cache, it logs a warning.
func (s *System) ClearSession(_ context.Context) error {
	s.logger.Warn("the system browser's session can't be cleared, the provider may remember a previous login")
	return nil
}

// Load starts the loopback listener and opens r in the browser.  Only GET
// requests can be handed to a browser.
func (s *System) Load(_ context.Context, r *oauth.LoadRequest, nh oauth.NavigationHandler) error {
	const op = "System.Load"
	switch {
	case r == nil:
		return fmt.Errorf("%s: load request is nil: %w", op, oauth.ErrNilParameter)
	case nh == nil:
		return fmt.Errorf("%s: navigation handler is nil: %w", op, oauth.ErrNilParameter)
	case r.Method != "" && r.Method != http.MethodGet:
		return fmt.Errorf("%s: method %s can't be opened in a browser: %w", op, r.Method, oauth.ErrInvalidParameter)
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrReleased)
	}
	s.handler = nh
	if err := s.listen(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Unlock()

	s.navMu.Lock()
	decision := nh.OnNavigationAttempt(r.URL)
	s.navMu.Unlock()
	if decision == oauth.Intercept {
		return nil
	}
	if err := s.openURL(r.URL); err != nil {
		return fmt.Errorf("%s: unable to open browser: %w: %w", op, oauth.ErrNavigation, err)
	}
	// The page now belongs to the browser.
	s.navMu.Lock()
	nh.OnPageFinishedLoading()
	s.navMu.Unlock()
	return nil
}

// Addr returns the address the loopback listener is bound to, or "" before the
// first Load.
func (s *System) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Release stops the loopback listener.
func (s *System) Release() error {
	const op = "System.Release"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.handler = nil
	if s.server == nil {
		return nil
	}
	if err := s.server.Close(); err != nil {
		return fmt.Errorf("%s: unable to stop listener: %w", op, err)
	}
	return nil
}

// listen starts the loopback server once.  It must be called with mu held.
func (s *System) listen() error {
	const op = "System.listen"
	if s.server != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.redirectURL.Host)
	if err != nil {
		return fmt.Errorf("%s: unable to listen on %s: %w", op, s.redirectURL.Host, err)
	}
	s.addr = l.Addr().String()
	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("loopback listener stopped", "error", err)
		}
	}()
	s.logger.Debug("listening for redirect", "addr", s.addr)
	return nil
}

// ServeHTTP reports the browser's request to the handler.  Intercepted
// requests get a page telling the user to close the window.
func (s *System) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	nh := s.handler
	s.mu.Unlock()
	if nh == nil {
		w.WriteHeader(http.StatusGone)
		return
	}
	u := *s.redirectURL
	u.Path = req.URL.Path
	u.RawPath = req.URL.RawPath
	u.RawQuery = req.URL.RawQuery
	u.Fragment = ""

	s.navMu.Lock()
	decision := nh.OnNavigationAttempt(u.String())
	s.navMu.Unlock()
	if decision != oauth.Intercept {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(closeWindowHTML))
}
