// Package password implements the secret hasher used by authflow.
//
// # Output format
//
// Password digests are Argon2id, encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// [Hasher.NeedsUpgrade] reports digests produced with weaker parameters so the
// engine can re-hash after the next successful login.
//
// Backup codes are not passwords. [DigestBackupCode] hashes them with SHA-256
// bound to the account id; only the digest is ever persisted.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets.
//   - Import any other authflow package.
//   - Log plaintext secrets or digests.
package password
