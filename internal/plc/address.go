package plc

import (
	"encoding/hex"
	"fmt"
)

// Address identifies a device on the powerline network. Transmitters (CCO)
// use 8 ASCII characters; lighting adapters (STA) use 12 hex characters.
type Address string

// Broadcast addresses every transmitter reachable over the serial link.
// Used to enumerate transmitters when none is known yet.
const Broadcast Address = "FFFFFFFF"

const (
	ccoLen = 8
	staLen = 12
)

// ParseCCO validates a transmitter address: exactly 8 printable ASCII
// characters.
func ParseCCO(s string) (Address, error) {
	if len(s) != ccoLen {
		return "", fmt.Errorf("%w: transmitter address must be %d characters, got %d", ErrValidation, ccoLen, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '!' || s[i] > '~' {
			return "", fmt.Errorf("%w: transmitter address has non-printable byte 0x%02X at %d", ErrValidation, s[i], i)
		}
	}
	return Address(s), nil
}

// ParseSTA validates an adapter address: exactly 12 hex characters. The hex
// constraint is load-bearing: single-target dimming commands carry the
// address as 6 raw bytes.
func ParseSTA(s string) (Address, error) {
	if len(s) != staLen {
		return "", fmt.Errorf("%w: adapter address must be %d characters, got %d", ErrValidation, staLen, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: adapter address must be hex: %q", ErrValidation, s)
	}
	return Address(s), nil
}

// STABytes returns the 6 raw bytes of an adapter address.
func (a Address) STABytes() ([]byte, error) {
	if len(a) != staLen {
		return nil, fmt.Errorf("%w: adapter address must be %d characters, got %d", ErrValidation, staLen, len(a))
	}
	b, err := hex.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("%w: adapter address must be hex: %q", ErrValidation, a)
	}
	return b, nil
}
