// Package events decodes the Move events emitted by the SuiVerify DID registry.
//
// Payloads are BCS: fixed-width fields in declaration order with no framing,
// so a payload either has exactly the expected length or it is not ours.
package events

import (
	"errors"
	"fmt"

	"github.com/fardream/go-bcs/bcs"
)

// DIDClaimedModule and DIDClaimedName complete the event type tag
// together with the deployed package ID.
const (
	DIDClaimedModule = "did_registry"
	DIDClaimedName   = "DIDClaimed"
)

// DIDClaimedSize is the encoded length of a DIDClaimed payload.
const DIDClaimedSize = IDLength + IDLength + 1 + IDLength + IDLength

var (
	// ErrTruncated reports a payload shorter than its layout.
	ErrTruncated = errors.New("payload truncated")
	// ErrTrailingBytes reports bytes left over after the last field.
	ErrTrailingBytes = errors.New("trailing bytes after payload")
)

// DecodeError describes a payload that does not match the event layout,
// usually because the on-chain struct changed.
type DecodeError struct {
	Event string
	Field string
	Len   int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s: field %s: %v (payload %d bytes)", e.Event, e.Field, e.Err, e.Len)
	}
	return fmt.Sprintf("decode %s: %v (payload %d bytes)", e.Event, e.Err, e.Len)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DIDClaimed is emitted when a user claims a DID and receives its NFT.
type DIDClaimed struct {
	RegistryID  ObjectID
	UserAddress Address
	DIDType     uint8
	UserDIDID   ObjectID
	NFTID       ObjectID
}

// didClaimedFields lists each field with the offset just past it.
var didClaimedFields = []struct {
	name string
	end  int
}{
	{"registry_id", IDLength},
	{"user_address", 2 * IDLength},
	{"did_type", 2*IDLength + 1},
	{"user_did_id", 3*IDLength + 1},
	{"nft_id", DIDClaimedSize},
}

// fieldAt names the field a payload of length n ends inside.
func fieldAt(n int) string {
	for _, f := range didClaimedFields {
		if n < f.end {
			return f.name
		}
	}
	return ""
}

// DecodeDIDClaimed parses a BCS DIDClaimed payload.
func DecodeDIDClaimed(payload []byte) (DIDClaimed, error) {
	var ev DIDClaimed
	n, err := bcs.Unmarshal(payload, &ev)
	if err != nil {
		if len(payload) < DIDClaimedSize {
			err = fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return DIDClaimed{}, &DecodeError{Event: DIDClaimedName, Field: fieldAt(len(payload)), Len: len(payload), Err: err}
	}
	if n != len(payload) {
		return DIDClaimed{}, &DecodeError{Event: DIDClaimedName, Len: len(payload), Err: ErrTrailingBytes}
	}
	return ev, nil
}

// Bytes encodes ev in the layout DecodeDIDClaimed reads.
func (ev DIDClaimed) Bytes() []byte {
	b, err := bcs.Marshal(ev)
	if err != nil {
		// every field is fixed width
		panic(fmt.Sprintf("encode %s: %v", DIDClaimedName, err))
	}
	return b
}
