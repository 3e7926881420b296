// Package token implements the credential lifecycle at the heart of the
// identity service: short-lived signed access tokens and long-lived rotating
// refresh tokens.
//
// Access tokens are HS512 JWTs carrying the user name, stable id, and email.
// They are never persisted; validation is signature plus claim extraction, and
// callers may tolerate an expired token to identify a user during silent
// refresh.
//
// Refresh tokens are opaque 256-bit secrets. Only a salted PBKDF2 digest is
// stored, in a self-describing descriptor string
//
//	HEXHASH:HEXSALT:ITERATIONS:ALGORITHM
//
// so verification parameters can be upgraded without invalidating outstanding
// tokens. Rotation replaces the secret and extends the expiry in place on the
// same record, guarded by an optimistic version check in the store.
package token
