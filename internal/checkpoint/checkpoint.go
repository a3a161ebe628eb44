// Package checkpoint holds the read-only input model of the indexer and the
// sources that deliver it.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
)

// Checkpoint is one ordered unit of input.
type Checkpoint struct {
	SequenceNumber uint64        `json:"sequence_number"`
	TimestampMs    uint64        `json:"timestamp_ms"`
	Transactions   []Transaction `json:"transactions"`
}

// Transaction is an executed transaction. A nil Events means the
// transaction produced no events block at all.
type Transaction struct {
	Digest string  `json:"digest"`
	Events []Event `json:"events,omitempty"`
}

// Event is a raw Move event: its fully-qualified type and BCS contents.
type Event struct {
	Type     string `json:"type"`
	Contents []byte `json:"contents"`
}

// Source yields checkpoints in increasing sequence order. Next blocks until
// a checkpoint is available and returns io.EOF once the source is exhausted.
type Source interface {
	Next(ctx context.Context) (*Checkpoint, error)
}

// TypeTag is a Move struct type: package address, module and struct name.
type TypeTag struct {
	Address string
	Module  string
	Name    string
}

// String is the form event types take on chain, "addr::module::Name".
func (t TypeTag) String() string {
	return t.Address + "::" + t.Module + "::" + t.Name
}

// ParseTypeTag splits "addr::module::Name". Generic parameters are not supported.
func ParseTypeTag(s string) (TypeTag, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return TypeTag{}, fmt.Errorf("type tag %q: want addr::module::Name", s)
	}
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, "<> ") {
			return TypeTag{}, fmt.Errorf("type tag %q: malformed component %q", s, p)
		}
	}
	return TypeTag{Address: parts[0], Module: parts[1], Name: parts[2]}, nil
}
