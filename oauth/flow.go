// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/igauth/sdk/id"
)

// FlowState is the state of a Flow.
type FlowState int

const (
	StateIdle FlowState = iota
	StateLoadingAuthorizePage
	StateAwaitingRedirect
	StateExchangingCode

	// StateSucceeded is terminal.  The token was delivered and the host UI
	// was asked to close.
	StateSucceeded

	// StateFailed is terminal.  The error was delivered and the host UI was
	// left open.
	StateFailed

	// StateDismissed is terminal.  The host UI was dismissed before a result
	// was delivered, and nothing will be delivered.
	StateDismissed
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingAuthorizePage:
		return "loading-authorize-page"
	case StateAwaitingRedirect:
		return "awaiting-redirect"
	case StateExchangingCode:
		return "exchanging-code"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateDismissed:
		return "dismissed"
	default:
		return fmt.Sprintf("FlowState(%d)", int(s))
	}
}

func (s FlowState) terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateDismissed
}

// Flow drives one authorization code flow through a Surface: it loads the
// provider's authorization page, intercepts the redirect carrying the code,
// exchanges the code for a token and delivers exactly one result to its
// ResultFunc.
//
// A Flow is the NavigationHandler of its Surface.  It's safe for concurrent
// use, and a Flow must not be reused once it reached a terminal state.
type Flow struct {
	id        string
	config    *Config
	surface   Surface
	resultFn  ResultFunc
	exchanger TokenExchanger
	indicator Indicator
	terminate TerminateFunc
	logger    hclog.Logger

	mu    sync.Mutex
	state FlowState
	// ctx is the Start context without its cancellation.  An exchange
	// outlives a dismissal, so only the config's timeout bounds it.
	ctx      context.Context
	inFlight bool
	resolved bool
	released bool
}

var _ NavigationHandler = (*Flow)(nil)

// NewFlow creates a new Flow for the config, hosted by the surface s.  The
// result of the flow is delivered to fn exactly once, unless the flow is
// dismissed first.
//
// Supported options:
//   - WithExchanger
//   - WithIndicator
//   - WithTerminateFunc
//   - WithLogger
func NewFlow(c *Config, s Surface, fn ResultFunc, opt ...Option) (*Flow, error) {
	const op = "NewFlow"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	case s == nil:
		return nil, fmt.Errorf("%s: surface is nil: %w", op, ErrNilParameter)
	case fn == nil:
		return nil, fmt.Errorf("%s: result func is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getFlowOpts(opt...)

	flowID, err := id.New("flow")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate flow id: %w", op, err)
	}
	logger := opts.withLogger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("flow").With("flow_id", flowID)

	f := &Flow{
		id:        flowID,
		config:    c,
		surface:   s,
		resultFn:  fn,
		exchanger: opts.withExchanger,
		indicator: opts.withIndicator,
		terminate: opts.withTerminateFunc,
		logger:    logger,
		state:     StateIdle,
		ctx:       context.Background(),
	}
	if f.exchanger == nil {
		if f.exchanger, err = NewClient(c, WithLogger(logger)); err != nil {
			return nil, fmt.Errorf("%s: unable to create token exchange client: %w", op, err)
		}
	}
	if f.indicator == nil {
		f.indicator = noopIndicator{}
	}
	if f.terminate == nil {
		f.terminate = func() {}
	}
	return f, nil
}

// ID returns the flow's unique id.
func (f *Flow) ID() string { return f.id }

// State returns the flow's current state.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start clears the surface's session and loads the provider's authorization
// page.  Calling Start again before a code was intercepted restarts the flow:
// the session is cleared again before the page is reloaded.  Once a code
// exchange is in flight, or the flow reached a terminal state, Start returns
// ErrInvalidState.
func (f *Flow) Start(ctx context.Context) error {
	const op = "Flow.Start"
	f.mu.Lock()
	prev := f.state
	switch prev {
	case StateIdle:
	case StateLoadingAuthorizePage, StateAwaitingRedirect:
		f.logger.Debug("restarting flow", "state", prev)
	default:
		f.mu.Unlock()
		return fmt.Errorf("%s: unable to start flow in state %s: %w", op, prev, ErrInvalidState)
	}
	f.state = StateLoadingAuthorizePage
	f.ctx = context.WithoutCancel(ctx)
	f.mu.Unlock()

	if err := f.surface.ClearSession(ctx); err != nil {
		f.restoreState(prev)
		return fmt.Errorf("%s: unable to clear session: %w", op, err)
	}
	req := f.authorizeRequest()
	f.logger.Debug("loading authorize page", "url", req.URL)
	f.indicator.Start()
	if err := f.surface.Load(ctx, req, f); err != nil {
		f.indicator.Stop()
		f.restoreState(prev)
		return fmt.Errorf("%s: unable to load authorize page: %w", op, err)
	}
	return nil
}

// restoreState undoes a failed Start, unless a navigation event already moved
// the flow on.
func (f *Flow) restoreState(prev FlowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateLoadingAuthorizePage {
		f.state = prev
	}
}

func (f *Flow) authorizeRequest() *LoadRequest {
	h := http.Header{}
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	return &LoadRequest{
		Method:      http.MethodGet,
		URL:         f.config.AuthorizeURL(),
		Header:      h,
		CachePolicy: CacheBypass,
		Timeout:     f.config.timeout(),
	}
}

// OnNavigationAttempt decides whether the surface may navigate to rawURL.
// The provider's redirect back to the redirect URI is intercepted: a code
// starts the exchange and a denial fails the flow.  Every other URL is
// allowed.
func (f *Flow) OnNavigationAttempt(rawURL string) Decision {
	const op = "Flow.OnNavigationAttempt"
	f.mu.Lock()
	if f.state == StateDismissed {
		f.mu.Unlock()
		return Intercept
	}
	r, ok := matchRedirect(f.config.RedirectMatch, f.config.RedirectURI, rawURL)
	if !ok {
		f.mu.Unlock()
		return Allow
	}
	if f.inFlight || f.resolved {
		state := f.state
		f.mu.Unlock()
		f.logger.Error("redirect intercepted after the code was already handled", "state", state)
		return Intercept
	}

	if r.authErr != nil {
		f.resolved = true
		f.state = StateFailed
		f.mu.Unlock()
		f.logger.Debug("provider denied authorization", "error", r.authErr.Code, "reason", r.authErr.Reason)
		f.indicator.Stop()
		f.deliver(TokenResult{Err: fmt.Errorf("%s: %w", op, r.authErr)})
		return Intercept
	}

	f.inFlight = true
	f.state = StateExchangingCode
	ctx := f.ctx
	f.mu.Unlock()

	f.logger.Debug("redirect intercepted, exchanging code")
	ch := ExchangeAsync(ctx, f.exchanger, r.code)
	go func() {
		if err := f.OnExchangeComplete(<-ch); err != nil {
			f.logger.Error("unable to complete exchange", "error", err)
		}
	}()
	return Intercept
}

// OnPageFinishedLoading stops the indicator.
func (f *Flow) OnPageFinishedLoading() {
	f.indicator.Stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateLoadingAuthorizePage {
		f.state = StateAwaitingRedirect
	}
}

// OnNavigationFailed stops the indicator and applies the config's
// NavigationErrorPolicy.  A failure never affects a flow with an exchange in
// flight.
func (f *Flow) OnNavigationFailed(err error) {
	const op = "Flow.OnNavigationFailed"
	f.indicator.Stop()
	f.mu.Lock()
	if f.config.NavigationErrorPolicy != NavigationErrorFail || f.inFlight || f.resolved || f.state.terminal() {
		state := f.state
		f.mu.Unlock()
		f.logger.Warn("navigation failed", "state", state, "error", err)
		return
	}
	f.resolved = true
	f.state = StateFailed
	f.mu.Unlock()
	f.logger.Debug("navigation failed, failing flow", "error", err)
	f.deliver(TokenResult{Err: fmt.Errorf("%s: %w: %w", op, ErrNavigation, err)})
}

// OnExchangeComplete is the flow's terminal transition.  It delivers r to the
// ResultFunc; on success it then calls the TerminateFunc and releases the
// surface.  A failure leaves the host UI open.  The result of a dismissed
// flow is discarded.
//
// Calling it after the flow already resolved is a bug in the caller and
// returns ErrAlreadyTerminated.
func (f *Flow) OnExchangeComplete(r TokenResult) error {
	const op = "Flow.OnExchangeComplete"
	f.mu.Lock()
	if f.resolved {
		state := f.state
		f.mu.Unlock()
		f.logger.Error("exchange completed after the flow terminated", "state", state)
		return fmt.Errorf("%s: flow is %s: %w", op, state, ErrAlreadyTerminated)
	}
	f.resolved = true
	f.inFlight = false
	if f.state == StateDismissed {
		f.mu.Unlock()
		f.logger.Debug("discarding exchange result of dismissed flow", "success", r.Success())
		return nil
	}
	r = normalizeResult(r)
	if r.Success() {
		f.state = StateSucceeded
	} else {
		f.state = StateFailed
	}
	f.mu.Unlock()
	f.deliver(r)
	return nil
}

// Dismiss is called when the host UI was dismissed.  The surface is released.
// A flow without a result becomes StateDismissed: an exchange in flight
// finishes but its result is discarded.  Dismiss is idempotent.
func (f *Flow) Dismiss() error {
	f.mu.Lock()
	if !f.state.terminal() {
		f.logger.Debug("flow dismissed", "state", f.state, "exchange_in_flight", f.inFlight)
		f.state = StateDismissed
	}
	f.mu.Unlock()
	return f.release()
}

// deliver hands r to the ResultFunc.  It must be called without holding mu.
func (f *Flow) deliver(r TokenResult) {
	f.resultFn(r.Token, r.Err)
	if !r.Success() {
		return
	}
	f.terminate()
	if err := f.release(); err != nil {
		f.logger.Warn("unable to release surface", "error", err)
	}
}

func (f *Flow) release() error {
	const op = "Flow.release"
	f.mu.Lock()
	if f.released {
		f.mu.Unlock()
		return nil
	}
	f.released = true
	f.mu.Unlock()
	if err := f.surface.Release(); err != nil {
		return fmt.Errorf("%s: unable to release surface: %w", op, err)
	}
	return nil
}

// normalizeResult makes sure exactly one of Token and Err is set.
func normalizeResult(r TokenResult) TokenResult {
	const op = "normalizeResult"
	switch {
	case r.Err != nil:
		return TokenResult{Err: r.Err}
	case r.Token == nil:
		return TokenResult{Err: fmt.Errorf("%s: result has neither token nor error: %w", op, ErrMalformedResponse)}
	default:
		return r
	}
}

// flowOptions is the set of available options for Flow functions
type flowOptions struct {
	withExchanger     TokenExchanger
	withIndicator     Indicator
	withTerminateFunc TerminateFunc
	withLogger        hclog.Logger
}

// flowDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func flowDefaults() flowOptions {
	return flowOptions{}
}

// getFlowOpts gets the flow defaults and applies the opt overrides passed in
func getFlowOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithExchanger provides an optional TokenExchanger for a Flow.  By default a
// Flow uses a Client built from its config.
func WithExchanger(e TokenExchanger) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withExchanger = e
		}
	}
}

// WithIndicator provides an optional network activity Indicator for a Flow.
func WithIndicator(i Indicator) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withIndicator = i
		}
	}
}

// WithTerminateFunc provides an optional func a Flow calls to close the host
// UI after it delivered a token.
func WithTerminateFunc(fn TerminateFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withTerminateFunc = fn
		}
	}
}
