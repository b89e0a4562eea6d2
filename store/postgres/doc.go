// Package postgres implements identity.CredentialStore on PostgreSQL with
// pgx/v5.
//
// Accounts live in a single accounts table with partial unique indexes on
// lower(email) and phone. A unique violation on either index is mapped to
// identity.ErrConflict, so a registration that loses a race still reports a
// conflict. Schema changes ship as embedded SQL files applied by [Migrate].
package postgres
