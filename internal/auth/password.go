package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is where bcrypt stops reading input.
const maxPasswordBytes = 72

var (
	// ErrPasswordMismatch is returned when a password does not match its hash.
	ErrPasswordMismatch = errors.New("password mismatch")
	// ErrPasswordTooLong is returned for passwords bcrypt would truncate.
	ErrPasswordTooLong = errors.New("password longer than 72 bytes")
)

// Hasher hashes and verifies operator passwords with bcrypt.
type Hasher struct {
	cost  int
	decoy []byte
}

// NewHasher builds a hasher; out-of-range costs fall back to bcrypt's default.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy"), cost)
	if err != nil {
		return nil, err
	}
	return &Hasher{cost: cost, decoy: decoy}, nil
}

// Hash hashes a plaintext password.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify checks plain against hashed. An empty hash is still compared against
// a decoy so unknown accounts cost the same as wrong passwords.
func (h *Hasher) Verify(hashed, plain string) error {
	target := []byte(hashed)
	if hashed == "" {
		target = h.decoy
	}
	err := bcrypt.CompareHashAndPassword(target, []byte(plain))
	switch {
	case hashed == "":
		return ErrPasswordMismatch
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return err
	}
}
