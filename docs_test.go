// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package igauth_test

import (
	"context"
	"fmt"

	"github.com/hashicorp/igauth/oauth"
	"github.com/hashicorp/igauth/oauth/surface"
)

func Example_oauth() {
	ctx := context.Background()

	// Create a new Config
	c, err := oauth.NewConfig(
		"your_client_id",
		"your_client_secret",
		"http://127.0.0.1:8080/callback",
	)
	if err != nil {
		// handle error
	}

	// Create a surface which opens the authorization page in the system
	// browser and listens for the redirect on the redirect URI.
	s, err := surface.NewSystem(c.RedirectURI)
	if err != nil {
		// handle error
	}

	resultCh := make(chan oauth.TokenResult, 1)
	f, err := oauth.NewFlow(c, s, func(t *oauth.Token, err error) {
		resultCh <- oauth.TokenResult{Token: t, Err: err}
	})
	if err != nil {
		// handle error
	}
	defer f.Dismiss()

	if err := f.Start(ctx); err != nil {
		// handle error
	}

	r := <-resultCh
	if r.Err != nil {
		// handle error
	}
	fmt.Println(r.Token.AccessToken)
}
