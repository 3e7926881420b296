// Package identity holds the user model, credential verification, and the
// relational store behind the authentication flows.
//
// User names and emails are unique under a single normalization function,
// Normalize, which every lookup and uniqueness check must go through. The
// store keeps the original casing alongside the normalized columns.
package identity
