// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrNilParameter        = errors.New("nil parameter")
	ErrInvalidCACert       = errors.New("invalid CA certificate")
	ErrTransport           = errors.New("transport error")
	ErrMalformedResponse   = errors.New("malformed token response")
	ErrNavigation          = errors.New("navigation failed")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrInvalidState        = errors.New("invalid flow state")
	ErrAlreadyTerminated   = errors.New("flow already terminated")
)

// ProviderError is returned when the access token endpoint answers with a
// non-2xx status or with an error payload.  It matches ErrTransport.
//
// The legacy endpoint reports errors as:
//
//	{"error_type": "OAuthException", "code": 400, "error_message": "..."}
//
// while RFC 6749 style payloads use "error" and "error_description".  Both are
// recognized.
type ProviderError struct {
	StatusCode int
	ErrorType  string
	Message    string
	Body       []byte
}

func (e *ProviderError) Error() string {
	switch {
	case e.ErrorType != "" && e.Message != "":
		return fmt.Sprintf("provider responded %d: %s: %s", e.StatusCode, e.ErrorType, e.Message)
	case e.ErrorType != "":
		return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.ErrorType)
	default:
		return fmt.Sprintf("provider responded %d", e.StatusCode)
	}
}

// Unwrap allows errors.Is(err, ErrTransport).
func (e *ProviderError) Unwrap() error { return ErrTransport }

// AuthorizationError represents the error parameters the provider appends to
// the redirect URI when the user does not grant access.  It matches
// ErrAuthorizationDenied.
type AuthorizationError struct {
	Code        string // error, ex: access_denied
	Reason      string // error_reason, ex: user_denied
	Description string // error_description
}

func (e *AuthorizationError) Error() string {
	msg := e.Code
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	return msg
}

// Unwrap allows errors.Is(err, ErrAuthorizationDenied).
func (e *AuthorizationError) Unwrap() error { return ErrAuthorizationDenied }
