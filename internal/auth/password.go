// Package auth handles credential hashing and bearer token issuance for the
// HTTP surface. Account storage and approval state live in the catalog; this
// package only proves who a request belongs to.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a storable hash from a raw password. The hash is
// opaque to callers and safe to persist in accounts.json.
func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether a raw password matches a stored hash.
func CheckPassword(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
