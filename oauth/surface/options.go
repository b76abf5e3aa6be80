// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package surface

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/igauth/oauth"
)

// surfaceOptions is the set of available options for Headless and System.
type surfaceOptions struct {
	withLogger     hclog.Logger
	withProviderCA string
	withTimeout    time.Duration
	withOpenURL    func(string) error
}

// surfaceDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func surfaceDefaults() surfaceOptions {
	return surfaceOptions{
		withTimeout: oauth.DefaultTimeout,
	}
}

// getSurfaceOpts gets the defaults and applies the opt overrides passed in.
func getSurfaceOpts(opt ...oauth.Option) surfaceOptions {
	opts := surfaceDefaults()
	oauth.ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for: Headless, System
func WithLogger(l hclog.Logger) oauth.Option {
	return func(o interface{}) {
		if o, ok := o.(*surfaceOptions); ok {
			o.withLogger = l
		}
	}
}

// WithProviderCA provides an optional CA cert the Headless surface trusts
// when loading pages.
func WithProviderCA(cert string) oauth.Option {
	return func(o interface{}) {
		if o, ok := o.(*surfaceOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithTimeout provides an optional timeout for each page the Headless surface
// loads.  A LoadRequest's own timeout takes precedence.
func WithTimeout(d time.Duration) oauth.Option {
	return func(o interface{}) {
		if o, ok := o.(*surfaceOptions); ok {
			o.withTimeout = d
		}
	}
}

// WithOpenURL provides an optional func the System surface uses to open a URL
// in the browser.  It defaults to opening the system's default browser.
func WithOpenURL(fn func(string) error) oauth.Option {
	return func(o interface{}) {
		if o, ok := o.(*surfaceOptions); ok {
			o.withOpenURL = fn
		}
	}
}
