// Package rate provides the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - ial:  login failures per identifier
//   - iali: login failures per client IP
//
// # What this package must NOT do
//
//   - Look up accounts. Counters are keyed by the raw identifier so their
//     behaviour never depends on whether an account exists.
//   - Be imported outside the identity module.
package rate
