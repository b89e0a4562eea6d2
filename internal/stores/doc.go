// Package stores provides Redis-backed, short-lived ledgers for the identity
// flows: one-time passcodes (verification and password reset) and opaque
// password reset tokens.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a TTL.
// Only SHA-256 digests of codes and tokens are stored. OTP issue and consume
// run as Lua scripts; reset token consumption uses WATCH/MULTI optimistic
// transactions with bounded retry. Records are single-use and enforce attempt
// limits. Secret comparisons use constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// challenge records. It does NOT generate codes, dispatch notifications, or
// make authentication decisions.
//
// # What this package must NOT do
//
//   - Import identity or any sibling internal package.
//   - Log or expose plaintext codes or tokens.
//   - Use non-constant-time comparisons for secret matching.
package stores
