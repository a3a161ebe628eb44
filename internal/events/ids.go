package events

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// IDLength is the byte width of Sui object IDs and addresses.
const IDLength = 32

// ObjectID identifies a Sui object.
type ObjectID [IDLength]byte

// Address is a Sui account address. Same width and text form as ObjectID.
type Address [IDLength]byte

// String renders the canonical 0x-prefixed, zero-padded lowercase hex form.
func (id ObjectID) String() string { return "0x" + hex.EncodeToString(id[:]) }

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// ParseObjectID accepts 0x-prefixed hex with up to 64 digits.
// Short forms are left-padded with zeros, so "0x2" is the system package.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if err := parseHex32(s, id[:]); err != nil {
		return ObjectID{}, fmt.Errorf("parse object id %q: %w", s, err)
	}
	return id, nil
}

// ParseAddress accepts the same forms as ParseObjectID.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := parseHex32(s, a[:]); err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return a, nil
}

func parseHex32(s string, dst []byte) error {
	digits, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok {
		return fmt.Errorf("missing 0x prefix")
	}
	if len(digits) == 0 || len(digits) > 2*IDLength {
		return fmt.Errorf("want 1-%d hex digits, got %d", 2*IDLength, len(digits))
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return err
	}
	copy(dst[len(dst)-len(raw):], raw)
	return nil
}
