package admission

import "fmt"

// MaxIdentityLength is the longest identity accepted by the gate
const MaxIdentityLength = 128

// allowedIdentityChars is a lookup table for identity validation
var allowedIdentityChars [128]bool

func init() {
	for _, c := range "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-:.@/+=" {
		allowedIdentityChars[c] = true
	}
}

// validateIdentity accepts 1 to MaxIdentityLength bytes of alphanumeric
// ASCII plus _ - : . @ / + =, which covers IPv4 and IPv6 addresses, e-mail
// style ids and base64 api keys.
func validateIdentity(identity string) error {
	if len(identity) == 0 {
		return fmt.Errorf("%w: identity cannot be empty", ErrInvalidIdentity)
	}

	if len(identity) > MaxIdentityLength {
		return fmt.Errorf("%w: identity cannot exceed %d bytes, got %d bytes",
			ErrInvalidIdentity, MaxIdentityLength, len(identity))
	}

	for i := 0; i < len(identity); i++ {
		c := identity[i]
		if c >= 128 || !allowedIdentityChars[c] {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidIdentity, c, i)
		}
	}

	return nil
}

// ValidateIdentity reports whether identity can be checked by a Gate
func ValidateIdentity(identity string) error {
	return validateIdentity(identity)
}
