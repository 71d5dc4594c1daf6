// Package stores holds the Redis-backed short-lived state of the auth
// core: mid-login two-factor challenges and unconfirmed enrollment
// setups. Records are binary-encoded with a leading version byte so the
// layout can evolve without flag days.
package stores
