// Package auth implements the iotpro authentication core: credential
// digests, single-use recovery codes, signed session tokens, and the
// signup/login/recovery/delete operations over the credential store.
//
// Design notes:
//   - Digests are SHA-256 over secret||salt with a per-user random salt
//     stored alongside the digests. The same policy applies to passwords
//     and recovery codes.
//   - Session tokens are stateless HS256 JWTs; verification failures are
//     sentinel errors, never panics, and are routine rather than
//     exceptional.
//   - Login failures are indistinguishable between "no such account" and
//     "wrong password" so responses cannot be used to enumerate emails.
package auth
