// Package auth handles learner bearer tokens.
//
// # Clients
//
// A TokenSource supplies the token attached to socket dials and session
// requests:
//
//   - StaticToken: a fixed token, e.g. from a flag
//   - EnvOrFile: DEEPLEARN_TOKEN, then ~/.config/deeplearn/token
//
// When the token is a JWT its expiry is read without verification so an
// expired token fails before any network round trip. Opaque tokens pass
// through untouched.
//
// # Servers
//
// JWTVerifier issues and verifies HS256 tokens whose "sub" claim is the
// learner ID. Middleware checks the Authorization header and stores the
// learner ID in the request context for LearnerFromContext.
package auth
