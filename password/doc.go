// Package password implements password hashing and verification.
//
// # Schemes
//
// [Argon2] is the default and encodes PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] covers stored bcrypt hashes. [Chain] hashes with one scheme and
// verifies against any scheme that recognizes the stored encoding, so a
// deployment can migrate algorithms without a flag day.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Strength and reuse policy is
// enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other identity package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
