// Package internal contains helper utilities that are intentionally private to identity,
// including secure random generation for codes and reset tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: Redis fixed-window throttles for password reset requests and verifications
//   - notify: bounded task queue and worker pool for outbound notifications
//   - rate: Redis failed-login throttle keyed by identifier and client IP
//   - stores: Redis-backed OTP and reset token ledgers
//
// # What this package must NOT do
//
//   - Export types that appear in the public identity API.
//   - Be imported by any package outside the identity module.
package internal
