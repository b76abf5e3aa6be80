// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// unreserved are the characters which never need escaping in a query value.
const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

func randomCode(r *rand.Rand, alphabet string) string {
	b := make([]byte, r.Intn(40))
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

func Test_matchLiteral(t *testing.T) {
	t.Parallel()
	const redirectURI = "https://example.com/callback"
	tests := []struct {
		name        string
		redirectURI string
		url         string
		wantMatch   bool
		wantCode    string
	}{
		{name: "simple", url: redirectURI + "?code=abc123", wantMatch: true, wantCode: "abc123"},
		{name: "empty-code", url: redirectURI + "?code=", wantMatch: true, wantCode: ""},
		{name: "code-is-taken-verbatim", url: redirectURI + "?code=a%20b&state=x#_", wantMatch: true, wantCode: "a%20b&state=x#_"},
		{
			name:      "first-marker-wins",
			url:       redirectURI + "?code=first" + redirectURI + "?code=second",
			wantMatch: true,
			wantCode:  "first" + redirectURI + "?code=second",
		},
		{name: "marker-anywhere", url: "https://proxy.example.org/?next=" + redirectURI + "?code=xyz", wantMatch: true, wantCode: "xyz"},
		{
			name:        "redirect-with-its-own-query",
			redirectURI: redirectURI + "?app=1",
			url:         redirectURI + "?app=1?code=xyz",
			wantMatch:   true,
			wantCode:    "xyz",
		},
		{name: "no-code", url: redirectURI, wantMatch: false},
		{name: "other-param-first", url: redirectURI + "?state=x&code=abc", wantMatch: false},
		{
			name:      "authorize-page",
			url:       "https://api.instagram.com/oauth/authorize/?client_id=id&redirect_uri=https%3A%2F%2Fexample.com%2Fcallback&response_type=code",
			wantMatch: false,
		},
		{name: "denial", url: redirectURI + "?error=access_denied", wantMatch: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			ru := redirectURI
			if tt.redirectURI != "" {
				ru = tt.redirectURI
			}
			got, ok := matchRedirect(RedirectMatchLiteral, ru, tt.url)
			assert.Equal(tt.wantMatch, ok)
			if !tt.wantMatch {
				assert.Nil(got)
				return
			}
			assert.Equal(tt.wantCode, got.code)
			assert.Nil(got.authErr)
		})
	}
}

func Test_matchLiteral_anyCode(t *testing.T) {
	t.Parallel()
	const redirectURI = "https://example.com/callback"
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		// every printable ascii char, markers and delimiters included
		var alphabet []byte
		for c := byte(0x20); c < 0x7f; c++ {
			alphabet = append(alphabet, c)
		}
		code := randomCode(r, string(alphabet))
		got, ok := matchRedirect(RedirectMatchLiteral, redirectURI, redirectURI+"?code="+code)
		if assert.True(t, ok, "code %q", code) {
			assert.Equal(t, code, got.code)
		}
	}
}

func Test_matchURI(t *testing.T) {
	t.Parallel()
	const redirectURI = "https://example.com/callback"
	tests := []struct {
		name        string
		redirectURI string
		url         string
		wantMatch   bool
		wantCode    string
		wantAuthErr *AuthorizationError
	}{
		{name: "simple", url: redirectURI + "?code=abc123", wantMatch: true, wantCode: "abc123"},
		{name: "empty-code", url: redirectURI + "?code=", wantMatch: true, wantCode: ""},
		{name: "decoded", url: redirectURI + "?code=a%20b%3Fcode%3Dc", wantMatch: true, wantCode: "a b?code=c"},
		{name: "fragment-ignored", url: redirectURI + "?code=abc#_", wantMatch: true, wantCode: "abc"},
		{name: "extra-params", url: redirectURI + "?state=x&code=abc", wantMatch: true, wantCode: "abc"},
		{name: "case-insensitive-scheme-and-host", url: "HTTPS://EXAMPLE.com/callback?code=abc", wantMatch: true, wantCode: "abc"},
		{name: "empty-path-is-root", redirectURI: "https://example.com", url: "https://example.com/?code=abc", wantMatch: true, wantCode: "abc"},
		{
			name:        "redirect-query-must-be-present",
			redirectURI: redirectURI + "?app=1",
			url:         redirectURI + "?app=1&code=abc",
			wantMatch:   true,
			wantCode:    "abc",
		},
		{
			name:        "redirect-query-missing",
			redirectURI: redirectURI + "?app=1",
			url:         redirectURI + "?code=abc",
			wantMatch:   false,
		},
		{
			name:        "redirect-query-different",
			redirectURI: redirectURI + "?app=1",
			url:         redirectURI + "?app=2&code=abc",
			wantMatch:   false,
		},
		{
			name:      "denial",
			url:       redirectURI + "?error=access_denied&error_reason=user_denied&error_description=The+user+denied+your+request.",
			wantMatch: true,
			wantAuthErr: &AuthorizationError{
				Code:        "access_denied",
				Reason:      "user_denied",
				Description: "The user denied your request.",
			},
		},
		{name: "path-case-sensitive", url: "https://example.com/Callback?code=abc", wantMatch: false},
		{name: "longer-path", url: redirectURI + "/more?code=abc", wantMatch: false},
		{name: "other-scheme", url: "http://example.com/callback?code=abc", wantMatch: false},
		{name: "other-port", url: "https://example.com:8443/callback?code=abc", wantMatch: false},
		{name: "other-host", url: "https://evil.example.com/callback?code=abc", wantMatch: false},
		{name: "marker-in-other-url", url: "https://proxy.example.org/?next=" + redirectURI + "?code=xyz", wantMatch: false},
		{name: "no-code", url: redirectURI + "?state=x", wantMatch: false},
		{name: "unparsable", url: "https://example.com/callback?code=abc\x7f", wantMatch: false},
		{
			name:      "authorize-page",
			url:       "https://api.instagram.com/oauth/authorize/?client_id=id&redirect_uri=https%3A%2F%2Fexample.com%2Fcallback&response_type=code",
			wantMatch: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			ru := redirectURI
			if tt.redirectURI != "" {
				ru = tt.redirectURI
			}
			got, ok := matchRedirect(RedirectMatchURI, ru, tt.url)
			assert.Equal(tt.wantMatch, ok)
			if !tt.wantMatch {
				assert.Nil(got)
				return
			}
			assert.Equal(tt.wantCode, got.code)
			assert.Equal(tt.wantAuthErr, got.authErr)
		})
	}
}

func Test_matchURI_anyURLSafeCode(t *testing.T) {
	t.Parallel()
	const redirectURI = "https://example.com/callback"
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		code := randomCode(r, unreserved)
		got, ok := matchRedirect(RedirectMatchURI, redirectURI, redirectURI+"?code="+code)
		if assert.True(t, ok, "code %q", code) {
			assert.Equal(t, code, got.code)
		}
	}
}

func Test_matchRedirect_allowsEverythingElse(t *testing.T) {
	t.Parallel()
	const redirectURI = "https://example.com/callback"
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		u := "https://api.instagram.com/" + randomCode(r, unreserved+"/?&=")
		for _, m := range []RedirectMatch{RedirectMatchLiteral, RedirectMatchURI} {
			got, ok := matchRedirect(m, redirectURI, u)
			assert.False(t, ok, "%s matched %q", m, u)
			assert.Nil(t, got)
		}
	}
}
