// Package wallet validates and formats EVM wallet addresses.
package wallet

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned for strings that are not 20-byte hex addresses
var ErrInvalidAddress = errors.New("invalid address")

// IsHexAddress reports whether s is a 0x-prefixed 40 hex digit address
func IsHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	return common.IsHexAddress(s)
}

// Normalize validates an address and returns it in lowercase form.
// Mixed-case input must carry a valid EIP-55 checksum.
func Normalize(s string) (string, error) {
	addr, err := Parse(s)
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Hex()), nil
}

// Parse validates an address the way Normalize does and decodes it
func Parse(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !IsHexAddress(s) {
		return common.Address{}, ErrInvalidAddress
	}
	addr := common.HexToAddress(s)
	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex()[2:] != body {
		return common.Address{}, ErrInvalidAddress
	}
	return addr, nil
}

// Checksum returns the EIP-55 mixed-case form of a valid address
func Checksum(s string) string {
	return common.HexToAddress(s).Hex()
}
