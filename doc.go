// Package authcore is the authentication and two-factor core of the
// ScriptBay marketplace. It verifies credentials, runs the optional TOTP
// second factor with backup codes, and issues the stateless session
// tokens the site trusts.
//
// Build an engine with the builder:
//
//	engine, err := authcore.New().
//		WithSessionSecret(secret).
//		WithRedis(redisClient).
//		WithAccountStore(store).
//		Build()
//
// Accounts persist in an [AccountStore] (store/postgres in production).
// Redis holds only short-lived state: login challenges, unconfirmed
// enrollments, and rate limit counters. Session tokens are signed JWTs
// with no server-side record; httpapi and middleware adapt the engine to
// HTTP.
package authcore
