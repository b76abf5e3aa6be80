// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oauth is a package for logging in with Instagram's legacy OAuth 2.0
authorization code flow.

# Primary types provided by the package

* Config: provides the configuration of the flow (client id/secret, the
registered redirect URI, and optional scopes, provider CA, timeout,
navigation error policy and redirect matching).

* Flow: drives one login.  It clears the session of its Surface, loads the
provider's authorization page, intercepts the redirect carrying the
authorization code, exchanges the code and delivers exactly one result.

* Client: exchanges an authorization code for a Token with the provider's
access token endpoint.

* Surface: the browsing surface hosting the authorization page.  See the
oauth/surface package for a headless and a system browser implementation.

* Token: the access token and the optional user object returned by the
provider.

* TestProvider: a local server playing the provider, for tests.

# Examples

* CLI:
https://github.com/hashicorp/igauth/tree/main/oauth/examples/cli/
*/
package oauth
