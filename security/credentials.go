package security

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared whenever no stored hash is checked, so unknown users
// and clients cost the same bcrypt work as known ones (bcrypt hash of "test").
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// compareHash is the single bcrypt comparison every verification path runs
var compareHash = bcrypt.CompareHashAndPassword

// VerifySecret reports whether supplied matches a stored credential.
//
// When hash is non-empty it is treated as a bcrypt hash. Otherwise supplied
// must equal plain exactly, compared in constant time. An empty stored
// credential never matches. Every call performs exactly one bcrypt
// comparison, the plaintext path against dummyHash, so response time does
// not reveal whether the identity exists or how its credential is stored.
func VerifySecret(plain, hash, supplied string) bool {
	if hash != "" {
		return compareHash([]byte(hash), []byte(supplied)) == nil
	}

	_ = compareHash([]byte(dummyHash), []byte(supplied))
	if plain == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(supplied)) == 1
}

// RejectUnknown performs the same bcrypt work as VerifySecret and always
// returns false. Call it when the user or client lookup failed.
func RejectUnknown(supplied string) bool {
	_ = compareHash([]byte(dummyHash), []byte(supplied))
	return false
}

// HashSecret returns a bcrypt hash suitable for Client.SecretHash or User.PasswordHash
func HashSecret(secret string, cost int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}
