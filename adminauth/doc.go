// Package adminauth implements the admin authentication flows: an
// Ed25519 challenge-response exchange issuing short-lived bearer
// sessions, and a one-time login-code redemption for a web console.
// Ed25519 signing/verification uses stdlib crypto/ed25519, grounded on
// mercator-hq-jupiter's keygen/verify commands -- no pack library wraps
// Ed25519 better than the standard library already does.
package adminauth
