// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// igauth provides a client for the Instagram legacy OAuth 2.0 authorization
// code flow: a flow controller driving a browsing surface through the hosted
// authorization page, and a client exchanging the intercepted code for an
// access token.
//
// See the oauth package.
package igauth
