// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     *ProviderError
		wantMsg string
	}{
		{
			name:    "type-and-message",
			err:     &ProviderError{StatusCode: 400, ErrorType: "OAuthException", Message: "Matching code was not found or was already used."},
			wantMsg: "provider responded 400: OAuthException: Matching code was not found or was already used.",
		},
		{
			name:    "type-only",
			err:     &ProviderError{StatusCode: 400, ErrorType: "invalid_grant"},
			wantMsg: "provider responded 400: invalid_grant",
		},
		{
			name:    "status-only",
			err:     &ProviderError{StatusCode: 502, Body: []byte("<html>bad gateway</html>")},
			wantMsg: "provider responded 502",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.wantMsg, tt.err.Error())

			wrapped := fmt.Errorf("exchange: %w", tt.err)
			assert.ErrorIs(wrapped, ErrTransport)
			assert.NotErrorIs(wrapped, ErrMalformedResponse)
			var pe *ProviderError
			assert.ErrorAs(wrapped, &pe)
			assert.Equal(tt.err.StatusCode, pe.StatusCode)
		})
	}
}

func TestAuthorizationError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		err     *AuthorizationError
		wantMsg string
	}{
		{
			name:    "all",
			err:     &AuthorizationError{Code: "access_denied", Reason: "user_denied", Description: "The user denied your request."},
			wantMsg: "access_denied (user_denied): The user denied your request.",
		},
		{
			name:    "code-only",
			err:     &AuthorizationError{Code: "access_denied"},
			wantMsg: "access_denied",
		},
		{
			name:    "code-and-description",
			err:     &AuthorizationError{Code: "invalid_scope", Description: "unknown scope"},
			wantMsg: "invalid_scope: unknown scope",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.wantMsg, tt.err.Error())
			assert.True(errors.Is(tt.err, ErrAuthorizationDenied))
			assert.False(errors.Is(tt.err, ErrTransport))
		})
	}
}
