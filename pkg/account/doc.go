// Package account exposes the HTTP surface of the identity service: login,
// registration, federated sign-in, the silent identity probe, refresh-token
// rotation and logout.
//
// The handlers tie the credential verifier, the access-token issuer and the
// refresh-token store into per-request flows. Session state lives entirely in
// the relational store and the client's refresh cookie; the handlers
// themselves hold no mutable state beyond metrics.
package account
