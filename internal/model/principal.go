package model

import "strings"

// Principal identifies an authenticated wallet (lowercase 0x address)
type Principal string

// NewPrincipal normalises a wallet address into a Principal
func NewPrincipal(address string) Principal {
	return Principal(strings.ToLower(strings.TrimSpace(address)))
}

// Equal compares two principals case-insensitively
func (p Principal) Equal(other Principal) bool {
	return strings.EqualFold(string(p), string(other))
}

// String returns the principal as a string
func (p Principal) String() string {
	return string(p)
}
