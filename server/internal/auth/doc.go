// Package auth provides authentication middleware for the admin HTTP listener.
//
// APIKey(mode, header, key) wraps an http.Handler and validates the API key
// carried in the named request header.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent
// the middleware answers 401 immediately with a JSON error body.
//
// The weather protocol port is not covered; its framing has no notion of
// credentials.
package auth
