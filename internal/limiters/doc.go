// Package limiters provides domain-specific fixed-window throttles for the
// password reset exchange.
//
//   - [PasswordResetLimiter] per-identifier + per-IP for reset requests and
//     reset OTP verification.
//
// Limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import identity or any sibling internal package.
//   - Make policy decisions beyond counting. The Engine decides whether a
//     throttled call is silent or surfaced.
package limiters
