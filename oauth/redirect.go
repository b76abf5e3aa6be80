// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"net/url"
	"slices"
	"strings"
)

// codeMarker is appended to the redirect URI to build the substring a
// RedirectMatchLiteral matcher looks for.
const codeMarker = "?code="

// redirect is a navigation recognized as the provider's redirect back to the
// redirect URI.  Exactly one of code and authErr is meaningful: authErr is set
// when the provider denied the authorization.
type redirect struct {
	code    string
	authErr *AuthorizationError
}

// matchRedirect reports whether rawURL is the provider's redirect back to
// redirectURI, using the matcher m.
func matchRedirect(m RedirectMatch, redirectURI, rawURL string) (*redirect, bool) {
	switch m {
	case RedirectMatchLiteral:
		return matchLiteral(redirectURI, rawURL)
	default:
		return matchURI(redirectURI, rawURL)
	}
}

// matchLiteral matches when rawURL contains redirectURI + "?code=".  The code
// is everything after the first occurrence of the marker, verbatim.
func matchLiteral(redirectURI, rawURL string) (*redirect, bool) {
	marker := redirectURI + codeMarker
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return nil, false
	}
	return &redirect{code: rawURL[idx+len(marker):]}, true
}

// matchURI matches when rawURL has the scheme, host and path of redirectURI
// and carries every query parameter of redirectURI.  The code is the decoded
// "code" query parameter.  A redirect carrying an "error" parameter instead is
// a denial.
func matchURI(redirectURI, rawURL string) (*redirect, bool) {
	want, err := url.Parse(redirectURI)
	if err != nil {
		return nil, false
	}
	got, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	if !strings.EqualFold(want.Scheme, got.Scheme) || !strings.EqualFold(want.Host, got.Host) {
		return nil, false
	}
	if normalizePath(want.Path) != normalizePath(got.Path) {
		return nil, false
	}
	q := got.Query()
	for k, vs := range want.Query() {
		for _, v := range vs {
			if !slices.Contains(q[k], v) {
				return nil, false
			}
		}
	}
	switch {
	case q.Has("code"):
		return &redirect{code: q.Get("code")}, true
	case q.Has("error"):
		return &redirect{
			authErr: &AuthorizationError{
				Code:        q.Get("error"),
				Reason:      q.Get("error_reason"),
				Description: q.Get("error_description"),
			},
		}, true
	default:
		return nil, false
	}
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
