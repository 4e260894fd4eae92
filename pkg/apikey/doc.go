// Package apikey issues and verifies CAVE API keys.
//
// A key is a random token shown to the caller exactly once; only a
// bcrypt hash of it and a short display prefix (for admin listings) are
// persisted. Verification narrows candidates by prefix before running
// the expensive bcrypt comparison, then checks revocation and expiry.
package apikey
