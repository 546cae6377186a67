package childauth

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// Interface to create or compare PIN hashes
type PINHasher interface {
	// Generate hash from a raw PIN
	Hash(pin string) (string, error)

	// Compare known hashedPIN and a caller provided PIN
	// Must be protected against timing attacks
	Compare(hashedPIN string, pin string) error
}

// Bcrypt PIN hasher
// Used as default one if caller does not provide its own
type BcryptHasher struct{}

var DefaultHasher PINHasher = BcryptHasher{}

func (h BcryptHasher) Hash(pin string) (string, error) {
	sum := sha256.Sum256([]byte(pin))
	hash, err := bcrypt.GenerateFromPassword(sum[:], bcrypt.DefaultCost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPIN string, pin string) error {
	sum := sha256.Sum256([]byte(pin))
	return bcrypt.CompareHashAndPassword([]byte(hashedPIN), sum[:])
}
