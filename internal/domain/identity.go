package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateOwner accepts any non-empty identity. Identities written as EVM
// addresses must be well-formed hex addresses.
func ValidateOwner(owner string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if strings.HasPrefix(owner, "0x") || strings.HasPrefix(owner, "0X") {
		if !common.IsHexAddress(owner) {
			return fmt.Errorf("%w: malformed address %q", ErrInvalidInput, owner)
		}
	}
	return nil
}

// IsAddress reports whether owner is an EVM address.
func IsAddress(owner string) bool {
	return strings.HasPrefix(strings.ToLower(owner), "0x") && common.IsHexAddress(owner)
}
