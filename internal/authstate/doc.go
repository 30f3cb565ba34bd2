// Package authstate is the single source of truth for "are we
// authenticated, and with what token" for one user session.
//
// State is the serializable aggregate of the last authorization, token,
// and registration responses. Manager wraps a State with mutual exclusion,
// change/error listeners, and the guarded-refresh operation
// PerformWithFreshTokens, which de-duplicates concurrent refresh attempts
// so a one-time-use refresh token is never consumed twice.
package authstate
