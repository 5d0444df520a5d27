package auth

import (
	"fmt"
	"strings"

	domainerrors "taskhub/internal/domain/errors"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"

	MaxPasswordBytes = 72
)

// PasswordHasher hashes new passwords with one algorithm and verifies stored
// hashes produced by any supported algorithm, detected by prefix.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int
	argonParam *argon2id.Params
}

func NewPasswordHasher(algorithm string) (*PasswordHasher, error) {
	switch algorithm {
	case "", HasherBcrypt:
		algorithm = HasherBcrypt
	case HasherArgon2id:
	default:
		return nil, fmt.Errorf("unknown password hasher %q", algorithm)
	}
	return &PasswordHasher{
		algorithm:  algorithm,
		bcryptCost: bcrypt.DefaultCost,
		argonParam: argon2id.DefaultParams,
	}, nil
}

// WithBcryptCost is mostly useful in tests, where DefaultCost is slow.
func (h *PasswordHasher) WithBcryptCost(cost int) *PasswordHasher {
	h.bcryptCost = cost
	return h
}

func (h *PasswordHasher) Algorithm() string {
	return h.algorithm
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.algorithm == HasherArgon2id {
		return argon2id.CreateHash(password, h.argonParam)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		if err == bcrypt.ErrPasswordTooLong {
			return "", domainerrors.NewValidationError("password",
				fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes))
		}
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash. A mismatch is not an error.
func (h *PasswordHasher) Verify(hash, password string) (bool, error) {
	if strings.HasPrefix(hash, "$argon2id$") {
		return argon2id.ComparePasswordAndHash(password, hash)
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case err == bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	default:
		return false, err
	}
}
