// Package sessionapi is the HTTP client for the learning-coach session
// endpoints. It continues or starts a server-side conversation and returns
// its history, and satisfies conversation.SessionClient.
package sessionapi
