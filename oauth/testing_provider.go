// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"

	sdkHttp "github.com/hashicorp/igauth/sdk/http"
	"github.com/hashicorp/igauth/sdk/id"
	"github.com/stretchr/testify/require"
)

const (
	// TestSessionCookie is the name of the session cookie the TestProvider
	// sets on its authorization page.
	TestSessionCookie = "sessionid"

	// TestAllowPath is the path of the consent page's allow link.
	TestAllowPath = AuthorizePath + "allow/"

	// TestDenyPath is the path of the consent page's deny link.
	TestDenyPath = AuthorizePath + "deny/"
)

// TestProvider is a local server playing the provider's legacy OAuth
// endpoints, which makes writing tests much easier.
//
// Its authorization page remembers the user with a session cookie.  With the
// consent page enabled, a request without the cookie gets an HTML page whose
// "allow" link redirects back with the code, while a request carrying the
// cookie is redirected right away, the way the provider skips the login of a
// user it remembers.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	t          TestingT

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	expectedAuthCode    string
	codeUsed            bool
	allowedRedirectURIs []string
	accessToken         string
	user                *User
	consentPage         bool
	denyAuthorization   bool
	tokenStatus         int
	tokenBody           string
	sessionCookieSeen   []bool
	exchangeRequests    int
}

// StartTestProvider creates a disposable TestProvider listening on a random
// loopback port with TLS.  When t supports Cleanup, the provider is stopped
// when the test ends.  When t supports Infof, the provider's address is
// reported through it.
func StartTestProvider(t TestingT) *TestProvider {
	if v, ok := interface{}(t).(HelperT); ok {
		v.Helper()
	}
	require := require.New(t)

	p := &TestProvider{
		t:                   t,
		clientID:            "test-client-id",
		clientSecret:        "test-client-secret",
		expectedAuthCode:    "test-auth-code",
		allowedRedirectURIs: []string{"https://example.com/callback"},
		accessToken:         "test-access-token",
		user: &User{
			ID:             "1574083",
			Username:       "snoopdogg",
			FullName:       "Snoop Dogg",
			ProfilePicture: "https://example.com/snoopdogg.jpg",
		},
	}
	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	if v, ok := interface{}(t).(CleanupT); ok {
		v.Cleanup(p.httpServer.Close)
	}
	if v, ok := interface{}(t).(InfofT); ok {
		v.Infof("test provider listening on %s", p.httpServer.URL)
	}

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver.
// Use it as the config's ProviderURL.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client that trusts the test provider's CA.
func (p *TestProvider) HTTPClient() *http.Client {
	c, err := sdkHttp.NewClient(p.caCert)
	require.NoError(p.t, err)
	return c
}

// SetClientCreds configures the client id and secret the provider accepts.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the code the authorization page redirects
// with and the code the access token endpoint accepts.  Codes are single use;
// setting one makes it usable again.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
	p.codeUsed = false
}

// SetAllowedRedirectURIs configures the registered redirect URIs.  If not
// configured "https://example.com/callback" is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetAccessToken configures the access token the token endpoint returns.
func (p *TestProvider) SetAccessToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken = token
}

// SetUser configures the user object returned next to the access token.  A nil
// user is omitted from the response.
func (p *TestProvider) SetUser(u *User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// SetConsentPage enables the consent page for requests without a session
// cookie.
func (p *TestProvider) SetConsentPage(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consentPage = enabled
}

// SetDenyAuthorization makes the authorization page redirect with an
// access_denied error instead of a code.
func (p *TestProvider) SetDenyAuthorization(deny bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyAuthorization = deny
}

// SetTokenResponse overrides the access token endpoint's response with the
// status code and raw body.  A zero status code removes the override.
func (p *TestProvider) SetTokenResponse(statusCode int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = statusCode
	p.tokenBody = body
}

// SessionCookieSeen reports, for every request made to the authorization
// page, whether it carried the session cookie.
func (p *TestProvider) SessionCookieSeen() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.sessionCookieSeen)
}

// AuthorizeRequests returns the number of requests made to the authorization
// page.
func (p *TestProvider) AuthorizeRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessionCookieSeen)
}

// ExchangeRequests returns the number of requests made to the access token
// endpoint.
func (p *TestProvider) ExchangeRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeRequests
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case AuthorizePath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, err := req.Cookie(TestSessionCookie)
		seen := err == nil
		p.sessionCookieSeen = append(p.sessionCookieSeen, seen)
		if !p.validAuthorizeRequest(w, req) {
			return
		}
		if !seen {
			sessionID, err := id.New("")
			if err != nil {
				p.t.Errorf("unable to generate session id: %s", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: TestSessionCookie, Value: sessionID, Path: "/", HttpOnly: true, Secure: true})
		}
		if p.consentPage && !seen {
			p.writeConsentPage(w, req)
			return
		}
		p.writeAuthRedirect(w, req, p.denyAuthorization)

	case TestAllowPath, TestDenyPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.validAuthorizeRequest(w, req) {
			return
		}
		p.writeAuthRedirect(w, req, p.denyAuthorization || req.URL.Path == TestDenyPath)

	case AccessTokenPath:
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.exchangeRequests++
		w.Header().Set("Content-Type", "application/json")
		if p.tokenStatus != 0 {
			w.WriteHeader(p.tokenStatus)
			_, _ = w.Write([]byte(p.tokenBody))
			return
		}
		switch {
		case req.FormValue("client_id") != p.clientID:
			p.writeOAuthException(w, http.StatusBadRequest, "Invalid Client ID")
			return
		case req.FormValue("client_secret") != p.clientSecret:
			p.writeOAuthException(w, http.StatusBadRequest, "Invalid Client Secret")
			return
		case req.FormValue("grant_type") != "authorization_code":
			p.writeOAuthException(w, http.StatusBadRequest, "Invalid grant_type")
			return
		case !slices.Contains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			p.writeOAuthException(w, http.StatusBadRequest, "Redirect URI does not match registered redirect URI")
			return
		case p.codeUsed || req.FormValue("code") != p.expectedAuthCode:
			p.writeOAuthException(w, http.StatusBadRequest, "Matching code was not found or was already used.")
			return
		}
		p.codeUsed = true
		reply := struct {
			AccessToken string `json:"access_token"`
			User        *User  `json:"user,omitempty"`
		}{
			AccessToken: p.accessToken,
			User:        p.user,
		}
		_ = json.NewEncoder(w).Encode(&reply)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// validAuthorizeRequest checks the authorization request's parameters and
// writes the provider's error when they're invalid.
func (p *TestProvider) validAuthorizeRequest(w http.ResponseWriter, req *http.Request) bool {
	qv := req.URL.Query()
	switch {
	case qv.Get("client_id") != p.clientID:
		p.writeOAuthException(w, http.StatusBadRequest, "Invalid Client ID")
		return false
	case !slices.Contains(p.allowedRedirectURIs, qv.Get("redirect_uri")):
		p.writeOAuthException(w, http.StatusBadRequest, "Redirect URI does not match registered redirect URI")
		return false
	case qv.Get("response_type") != "code":
		p.writeOAuthException(w, http.StatusBadRequest, "Invalid response_type")
		return false
	}
	return true
}

func (p *TestProvider) writeAuthRedirect(w http.ResponseWriter, req *http.Request, deny bool) {
	redirectURI := req.URL.Query().Get("redirect_uri")
	if deny {
		redirectURI += "?error=access_denied" +
			"&error_reason=user_denied" +
			"&error_description=" + url.QueryEscape("The user denied your request.")
	} else {
		redirectURI += codeMarker + url.QueryEscape(p.expectedAuthCode)
	}
	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeOAuthException(w http.ResponseWriter, statusCode int, msg string) {
	body := struct {
		ErrorType    string `json:"error_type"`
		Code         int    `json:"code"`
		ErrorMessage string `json:"error_message"`
	}{
		ErrorType:    "OAuthException",
		Code:         statusCode,
		ErrorMessage: msg,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(&body)
}

var consentTmpl = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization Request</title></head>
<body>
<p>{{.ClientID}} is requesting to access your account.</p>
<a id="allow" href="{{.Allow}}">Authorize</a>
<a id="deny" href="{{.Deny}}">Cancel</a>
</body>
</html>
`))

func (p *TestProvider) writeConsentPage(w http.ResponseWriter, req *http.Request) {
	data := struct {
		ClientID    string
		Allow, Deny string
	}{
		ClientID: p.clientID,
		Allow:    TestAllowPath + "?" + req.URL.RawQuery,
		Deny:     TestDenyPath + "?" + req.URL.RawQuery,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consentTmpl.Execute(w, data); err != nil {
		p.t.Errorf("unable to render consent page: %s", err)
	}
}
