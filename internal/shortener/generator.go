package shortener

import (
	"fmt"
	"strings"

	"github.com/jaevor/go-nanoid"
)

const (
	// DefaultCodeLength is the length of system-assigned codes.
	DefaultCodeLength = 6
	// MaxCodeLength bounds both generated and custom codes.
	MaxCodeLength = 64

	// Alphabet is the URL-safe alphabet codes are drawn from.
	Alphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// nanoid refuses lengths below this.
	minNanoidLength = 2
)

// reservedCodes collide with fixed HTTP routes.
var reservedCodes = map[Code]struct{}{
	"shorten":   {},
	"analytics": {},
	"health":    {},
	"home":      {},
	"delete":    {},
	"docs":      {},
	"openapi":   {},
	"schemas":   {},
}

// IsReserved reports whether code, in any letter case, names a fixed route.
func IsReserved(code Code) bool {
	_, ok := reservedCodes[Code(strings.ToLower(string(code)))]

	return ok
}

// CodeGenerator produces candidate short codes. It never checks uniqueness.
type CodeGenerator func() string

// NewCodeGenerator returns a cryptographically random generator of codes with exactly
// length characters.
func NewCodeGenerator(length int) (CodeGenerator, error) {
	if length < 1 || length > MaxCodeLength {
		return nil, fmt.Errorf("code length must be between 1 and %d, got %d", MaxCodeLength, length)
	}

	gen, err := nanoid.Standard(max(length, minNanoidLength))
	if err != nil {
		return nil, err
	}

	return func() string {
		return gen()[:length]
	}, nil
}

// ValidateCode checks that a caller-supplied code is usable as an alias.
func ValidateCode(code Code) error {
	if len(code) == 0 || len(code) > MaxCodeLength {
		return fmt.Errorf("%w: must be 1 to %d characters", ErrInvalidCode, MaxCodeLength)
	}

	for _, c := range string(code) {
		if !strings.ContainsRune(Alphabet, c) {
			return fmt.Errorf("%w: %q is not URL-safe", ErrInvalidCode, c)
		}
	}

	return nil
}
