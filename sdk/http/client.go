// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/net/publicsuffix"
)

var ErrInvalidCertificatePem = errors.New("invalid certificate PEM")

// ClientOption defines an optional setting for NewClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	withTimeout time.Duration
	withJar     http.CookieJar
}

// WithTimeout sets the overall request timeout of the client.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.withTimeout = d
	}
}

// WithCookieJar sets the cookie jar of the client.  Without one, the client
// neither stores nor sends cookies.
func WithCookieJar(jar http.CookieJar) ClientOption {
	return func(o *clientOptions) {
		o.withJar = jar
	}
}

// NewClient creates a new http client which will use the optional CA
// certificate PEM if provided, otherwise it will use the installed system CA
// chain.  Every client gets its own pooled transport, so clients never share
// connections with each other or with http.DefaultClient.
func NewClient(caPEM string, opt ...ClientOption) (*http.Client, error) {
	var opts clientOptions
	for _, o := range opt {
		o(&opts)
	}
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, ErrInvalidCertificatePem
		}

		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   opts.withTimeout,
		Jar:       opts.withJar,
	}, nil
}

// NewCookieJar returns an empty, in-memory cookie jar which uses the public
// suffix list to scope cookies to their registrable domain.
func NewCookieJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}
