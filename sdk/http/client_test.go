// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	caPEM := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}))

	tests := []struct {
		name        string
		caPEM       string
		opt         []ClientOption
		wantErr     bool
		wantIsErr   error
		wantTimeout time.Duration
	}{
		{
			name:  "with-ca",
			caPEM: caPEM,
		},
		{
			name:        "with-timeout",
			caPEM:       caPEM,
			opt:         []ClientOption{WithTimeout(10 * time.Second)},
			wantTimeout: 10 * time.Second,
		},
		{
			name:      "bad-ca",
			caPEM:     "not a pem",
			wantErr:   true,
			wantIsErr: ErrInvalidCertificatePem,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c, err := NewClient(tt.caPEM, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantTimeout, c.Timeout)
			resp, err := c.Get(srv.URL)
			require.NoError(err)
			defer resp.Body.Close()
			assert.Equal(http.StatusNoContent, resp.StatusCode)
		})
	}
	t.Run("system-ca-rejects-test-server", func(t *testing.T) {
		require := require.New(t)
		c, err := NewClient("")
		require.NoError(err)
		_, err = c.Get(srv.URL)
		require.Error(err)
	})
}

func TestNewCookieJar(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	jar, err := NewCookieJar()
	require.NoError(err)

	u, err := url.Parse("https://www.example.com/")
	require.NoError(err)
	jar.SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: "alice"}})
	assert.Len(jar.Cookies(u), 1)

	fresh, err := NewCookieJar()
	require.NoError(err)
	assert.Empty(fresh.Cookies(u))
}
