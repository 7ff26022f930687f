// Package auth handles request authentication for the relay's HTTP surface.
//
// Callers present HS256-signed JWTs carrying a "sub" claim (the user ID) and
// a "role" claim (requester or provider). Middleware verifies the token and
// attaches an Identity to the request context; handlers read it back with
// FromContext. When no signing secret is configured the server falls back to
// a development middleware that trusts identity headers.
package auth
