// Package config loads and validates service configuration from environment
// variables. All variables use the IDENTITY_ prefix; see LoadConfig for the
// full list and defaults. The JWT signing key is supplied base64-encoded via
// IDENTITY_TOKEN_KEY and is the only required setting.
package config
