// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/igauth/oauth"
	"github.com/hashicorp/igauth/oauth/surface"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

// envPrefix is the prefix of every configuration environment variable, e.g.
// IG_CLIENT_ID.
const envPrefix = "IG"

type envConfig struct {
	ClientID              string                      `envconfig:"CLIENT_ID"`
	ClientSecret          string                      `envconfig:"CLIENT_SECRET"`
	RedirectURI           string                      `envconfig:"REDIRECT_URI" default:"http://127.0.0.1:8080/callback"`
	ProviderURL           string                      `envconfig:"PROVIDER_URL" default:"https://api.instagram.com"`
	Timeout               time.Duration               `envconfig:"TIMEOUT" default:"10s"`
	NavigationErrorPolicy oauth.NavigationErrorPolicy `envconfig:"NAVIGATION_ERROR_POLICY" default:"log"`
	AttemptExp            time.Duration               `envconfig:"ATTEMPT_EXP" default:"2m"`
	LogLevel              string                      `envconfig:"LOG_LEVEL" default:"info"`
}

type cliFlags struct {
	useTestProvider bool
	headless        bool
	literalMatch    bool
	scopes          []string
}

func main() {
	var flags cliFlags
	cmd := &cobra.Command{
		Use:   "igauth",
		Short: "Log in with the provider's authorization code flow",
		Long: `igauth runs the authorization code flow and prints the resulting access token.

Configuration is read from IG_* environment variables, see envConfig.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}
	cmd.Flags().BoolVar(&flags.useTestProvider, "use-test-provider", false, "use a local test provider instead of the real one")
	cmd.Flags().BoolVar(&flags.headless, "headless", false, "drive the authorization page over HTTP instead of opening a browser")
	cmd.Flags().BoolVar(&flags.literalMatch, "literal-redirect-match", false, "recognize the redirect by substring, like legacy clients do")
	cmd.Flags().StringSliceVar(&flags.scopes, "scopes", nil, "comma separated list of scopes to request")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, flags cliFlags) error {
	const op = "run"
	var env envConfig
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("%s: unable to read configuration: %w", op, err)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "igauth",
		Level: hclog.LevelFromString(env.LogLevel),
	})

	var providerCA string
	if flags.useTestProvider {
		tl, err := oauth.NewTestingLogger(logger.Named("test-provider"))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		tp := oauth.StartTestProvider(tl)
		defer tp.Stop()
		env.ClientID, env.ClientSecret = "test-client-id", "test-client-secret"
		tp.SetClientCreds(env.ClientID, env.ClientSecret)
		tp.SetAllowedRedirectURIs([]string{env.RedirectURI})
		tp.SetConsentPage(true)
		env.ProviderURL = tp.Addr()
		providerCA = tp.CACert()
	}

	redirectMatch := oauth.RedirectMatchURI
	if flags.literalMatch {
		redirectMatch = oauth.RedirectMatchLiteral
	}
	c, err := oauth.NewConfig(
		env.ClientID,
		oauth.ClientSecret(env.ClientSecret),
		env.RedirectURI,
		oauth.WithProviderURL(env.ProviderURL),
		oauth.WithScopes(flags.scopes...),
		oauth.WithProviderCA(providerCA),
		oauth.WithTimeout(env.Timeout),
		oauth.WithNavigationErrorPolicy(env.NavigationErrorPolicy),
		oauth.WithRedirectMatch(redirectMatch),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var s oauth.Surface
	var headless *surface.Headless
	if flags.headless {
		headless, err = surface.NewHeadless(
			surface.WithLogger(logger),
			surface.WithProviderCA(providerCA),
			surface.WithTimeout(env.Timeout),
		)
		s = headless
	} else {
		s, err = surface.NewSystem(env.RedirectURI, surface.WithLogger(logger))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resultCh := make(chan oauth.TokenResult, 1)
	flow, err := oauth.NewFlow(c, s,
		func(t *oauth.Token, err error) {
			resultCh <- oauth.TokenResult{Token: t, Err: err}
		},
		oauth.WithLogger(logger),
		oauth.WithTerminateFunc(func() { logger.Debug("flow asked to close") }),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := flow.Dismiss(); err != nil {
			logger.Warn("unable to dismiss flow", "error", err)
		}
	}()

	// handle ctrl-c while waiting for the result
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stderr, "Complete the login via the provider:\n\n    %s\n\n", c.AuthorizeURL())
	if err := flow.Start(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if headless != nil && flow.State() == oauth.StateAwaitingRedirect {
		// The test provider's consent page has an allow link. Anything else
		// needs a real browser.
		if err := headless.FollowLink(ctx, "allow"); err != nil {
			return fmt.Errorf("%s: unable to grant access headlessly: %w", op, err)
		}
	}

	select {
	case r := <-resultCh:
		if r.Err != nil {
			return fmt.Errorf("%s: login failed: %w", op, r.Err)
		}
		printToken(r.Token)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: interrupted", op)
	case <-time.After(env.AttemptExp):
		return fmt.Errorf("%s: timed out waiting for response from provider", op)
	}
}

type respToken struct {
	AccessToken string      `json:"access_token"`
	User        *oauth.User `json:"user,omitempty"`
}

func printToken(t *oauth.Token) {
	const op = "printToken"
	tk := respToken{
		AccessToken: string(t.AccessToken),
		User:        t.User,
	}
	tokenData, err := json.MarshalIndent(tk, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stdout, "%s\n", tokenData)
}
