// Package federation verifies federated sign-in assertions and provisions
// local accounts for first-time federated users.
//
// Google is the only supported provider. Clients obtain an ID token from
// Google's sign-in SDK and post it to the account endpoints; this package
// checks the token's signature and audience against Google's published keys
// and maps the verified claims onto the local user model. Provisioning is
// just-in-time: an unknown verified email gets a fresh account with a random
// user name and no local password.
package federation
