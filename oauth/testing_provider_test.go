// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	sdkHttp "github.com/hashicorp/igauth/sdk/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBrowser returns a client with a cookie jar which doesn't follow
// redirects.
func testBrowser(t *testing.T, tp *TestProvider) *http.Client {
	t.Helper()
	jar, err := sdkHttp.NewCookieJar()
	require.NoError(t, err)
	c, err := sdkHttp.NewClient(tp.CACert(), sdkHttp.WithCookieJar(jar))
	require.NoError(t, err)
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return c
}

func TestTestProvider_authorize(t *testing.T) {
	t.Parallel()

	authorizeURL := func(t *testing.T, tp *TestProvider) string {
		c := testConfig(t, tp)
		return c.AuthorizeURL()
	}

	t.Run("redirects-with-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetExpectedAuthCode("a code/with+chars")
		resp, err := testBrowser(t, tp).Get(authorizeURL(t, tp))
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(http.StatusFound, resp.StatusCode)
		loc := resp.Header.Get("Location")
		assert.Equal(testRedirectURI+"?code=a+code%2Fwith%2Bchars", loc)

		r, ok := matchRedirect(RedirectMatchURI, testRedirectURI, loc)
		require.True(ok)
		assert.Equal("a code/with+chars", r.code)
		assert.Equal([]bool{false}, tp.SessionCookieSeen())
	})
	t.Run("remembers-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetConsentPage(true)
		b := testBrowser(t, tp)

		resp, err := b.Get(authorizeURL(t, tp))
		require.NoError(err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(err)
		assert.Equal(http.StatusOK, resp.StatusCode)
		assert.Contains(string(body), `id="allow"`)

		// a remembered user skips the consent page
		resp, err = b.Get(authorizeURL(t, tp))
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusFound, resp.StatusCode)
		assert.Equal([]bool{false, true}, tp.SessionCookieSeen())
		assert.Equal(2, tp.AuthorizeRequests())
	})
	t.Run("consent-links", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		b := testBrowser(t, tp)
		q := strings.SplitN(authorizeURL(t, tp), "?", 2)[1]

		resp, err := b.Get(tp.Addr() + TestAllowPath + "?" + q)
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(testRedirectURI+"?code=test-auth-code", resp.Header.Get("Location"))

		resp, err = b.Get(tp.Addr() + TestDenyPath + "?" + q)
		require.NoError(err)
		resp.Body.Close()
		r, ok := matchRedirect(RedirectMatchURI, testRedirectURI, resp.Header.Get("Location"))
		require.True(ok)
		require.NotNil(r.authErr)
		assert.Equal("access_denied", r.authErr.Code)
		assert.Equal("user_denied", r.authErr.Reason)
	})
	t.Run("deny", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetDenyAuthorization(true)
		resp, err := testBrowser(t, tp).Get(authorizeURL(t, tp))
		require.NoError(err)
		resp.Body.Close()
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(err)
		assert.Equal("access_denied", loc.Query().Get("error"))
		assert.False(loc.Query().Has("code"))
	})
	t.Run("invalid-requests", func(t *testing.T) {
		tp := StartTestProvider(t)
		b := testBrowser(t, tp)
		good, err := url.Parse(authorizeURL(t, tp))
		require.NoError(t, err)
		tests := []struct {
			name  string
			param string
			value string
		}{
			{name: "client-id", param: "client_id", value: "other"},
			{name: "redirect-uri", param: "redirect_uri", value: "https://evil.example.com/"},
			{name: "response-type", param: "response_type", value: "token"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				u := *good
				q := u.Query()
				q.Set(tt.param, tt.value)
				u.RawQuery = q.Encode()
				resp, err := b.Get(u.String())
				require.NoError(err)
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				assert.Equal(http.StatusBadRequest, resp.StatusCode)
				assert.Contains(string(body), "OAuthException")
			})
		}
	})
	t.Run("wrong-methods-and-paths", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		b := testBrowser(t, tp)
		resp, err := b.Post(tp.Addr()+AuthorizePath, "text/plain", nil)
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusMethodNotAllowed, resp.StatusCode)

		resp, err = b.Get(tp.Addr() + AccessTokenPath)
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusMethodNotAllowed, resp.StatusCode)

		resp, err = b.Get(tp.Addr() + "/v1/users/self/")
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusNotFound, resp.StatusCode)
	})
}

func TestTestProvider_tokenOverride(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	client, err := NewClient(testConfig(t, tp))
	require.NoError(err)

	tp.SetTokenResponse(http.StatusInternalServerError, "oops")
	_, err = client.Exchange(context.Background(), "test-auth-code")
	assert.ErrorIs(err, ErrTransport)

	// removing the override restores the real endpoint, and the code was
	// never consumed
	tp.SetTokenResponse(0, "")
	tk, err := client.Exchange(context.Background(), "test-auth-code")
	require.NoError(err)
	assert.Equal(AccessToken("test-access-token"), tk.AccessToken)
	assert.Equal(2, tp.ExchangeRequests())
}

func TestNewTestingLogger(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	l, err := NewTestingLogger(nil)
	assert.ErrorIs(err, ErrNilParameter)
	assert.Nil(l)

	l, err = NewTestingLogger(hclog.NewNullLogger())
	require.NoError(err)
	l.Errorf("an error: %s", "test")
	l.Infof("some info: %d", 1)
	l.Log("a", "log")
	assert.Panics(l.FailNow)

	// a TestingLogger is enough to run a TestProvider
	tp := StartTestProvider(l)
	defer tp.Stop()
	assert.NotEmpty(tp.Addr())
	assert.NotEmpty(tp.CACert())
	assert.NotNil(tp.HTTPClient())
}

// infofRecorder is a TestingT which records Infof calls.
type infofRecorder struct {
	*testing.T
	mu    sync.Mutex
	infos []string
}

func (r *infofRecorder) Infof(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, fmt.Sprintf(format, args...))
}

func TestStartTestProvider_reportsAddr(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	rec := &infofRecorder{T: t}
	tp := StartTestProvider(rec)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal([]string{"test provider listening on " + tp.Addr()}, rec.infos)
}
