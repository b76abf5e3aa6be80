// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// User is the optional user object the legacy access token endpoint returns
// next to the access token.
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Website        string `json:"website,omitempty"`
}

// Token is the result of a successful code exchange.
type Token struct {
	AccessToken AccessToken `json:"access_token"`

	// User is nil when the provider didn't return a user object.
	User *User `json:"user,omitempty"`
}

// TokenResult is the single outcome of a flow.  Exactly one of Token and Err
// is set.
type TokenResult struct {
	Token *Token
	Err   error
}

// Success reports whether the result carries a token.
func (r TokenResult) Success() bool {
	return r.Err == nil && r.Token != nil
}

// newToken parses a 2xx token response.  The body must be a json object with
// a non-empty string access_token; every other field is ignored, except that
// an error payload without an access_token is a *ProviderError.  The user
// object is decoded when it's well formed and dropped otherwise.
func newToken(statusCode int, body []byte) (*Token, error) {
	const op = "newToken"
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%s: response is not a json object: %w: %w", op, ErrMalformedResponse, err)
	}
	raw, ok := fields["access_token"]
	if !ok {
		if _, ok := fields["error"]; ok {
			return nil, fmt.Errorf("%s: %w", op, newProviderError(statusCode, body))
		}
		if _, ok := fields["error_type"]; ok {
			return nil, fmt.Errorf("%s: %w", op, newProviderError(statusCode, body))
		}
		return nil, fmt.Errorf("%s: access_token is missing: %w", op, ErrMalformedResponse)
	}
	var accessToken string
	if err := json.Unmarshal(raw, &accessToken); err != nil {
		return nil, fmt.Errorf("%s: access_token is not a string: %w: %w", op, ErrMalformedResponse, err)
	}
	if accessToken == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrMalformedResponse)
	}
	return &Token{
		AccessToken: AccessToken(accessToken),
		User:        parseUser(fields["user"]),
	}, nil
}

// parseUser returns nil unless raw is a json object.
func parseUser(raw json.RawMessage) *User {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.TrimSpace(raw)[0] != '{' {
		return nil
	}
	var u userJSON
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil
	}
	return u.user()
}

// userID accepts the id as either a json string or number.
type userID string

func (id *userID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = userID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = userID(n.String())
	return nil
}

type userJSON struct {
	ID             userID `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	ProfilePicture string `json:"profile_picture"`
	Bio            string `json:"bio"`
	Website        string `json:"website"`
}

func (u userJSON) user() *User {
	return &User{
		ID:             string(u.ID),
		Username:       u.Username,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		Website:        u.Website,
	}
}
