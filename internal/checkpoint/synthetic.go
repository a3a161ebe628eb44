package checkpoint

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/SuiVerify/suiverify-indexer/internal/events"
)

// SyntheticSource generates fake checkpoints for demo/testing. No external RPC calls.
// Content is a pure function of the sequence number, so a restarted source
// replays identical checkpoints.
type SyntheticSource struct {
	// EventType is the type tag stamped on generated DIDClaimed events.
	EventType string
	// Interval paces Next; zero emits as fast as the caller reads.
	Interval time.Duration
	// GenesisMs is the timestamp of checkpoint 0.
	GenesisMs uint64

	next   uint64
	ticker *time.Ticker
}

// DefaultGenesisMs is the timestamp of synthetic checkpoint 0.
const DefaultGenesisMs uint64 = 1_700_000_000_000

// foreignEventType is emitted alongside DIDClaimed so consumers see events they must ignore.
const foreignEventType = "0x2::coin::CoinMinted"

// NewSyntheticSource starts at sequence number from.
func NewSyntheticSource(eventType string, from uint64, interval time.Duration) *SyntheticSource {
	return &SyntheticSource{
		EventType: eventType,
		Interval:  interval,
		GenesisMs: DefaultGenesisMs,
		next:      from,
	}
}

func (s *SyntheticSource) Next(ctx context.Context) (*Checkpoint, error) {
	if s.Interval > 0 {
		if s.ticker == nil {
			s.ticker = time.NewTicker(s.Interval)
		}
		select {
		case <-ctx.Done():
			s.ticker.Stop()
			return nil, ctx.Err()
		case <-s.ticker.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq := s.next
	s.next++
	return s.Generate(seq), nil
}

// Generate builds checkpoint seq without advancing the source.
func (s *SyntheticSource) Generate(seq uint64) *Checkpoint {
	rng := rand.New(rand.NewPCG(seq, 0x5eed))
	cp := &Checkpoint{
		SequenceNumber: seq,
		TimestampMs:    s.GenesisMs + seq*250,
	}
	ntx := 1 + rng.IntN(3)
	for i := 0; i < ntx; i++ {
		tx := Transaction{Digest: syntheticDigest(seq, i)}
		switch rng.IntN(4) {
		case 0:
			// no events block
		case 1:
			tx.Events = []Event{{Type: foreignEventType, Contents: []byte{0x01}}}
		case 2:
			tx.Events = []Event{s.didClaimed(rng)}
		case 3:
			tx.Events = []Event{s.didClaimed(rng), {Type: foreignEventType, Contents: []byte{0x02}}, s.didClaimed(rng)}
		}
		cp.Transactions = append(cp.Transactions, tx)
	}
	return cp
}

func (s *SyntheticSource) didClaimed(rng *rand.Rand) Event {
	var ev events.DIDClaimed
	fill := func(b []byte) {
		for i := 0; i < len(b); i += 8 {
			binary.LittleEndian.PutUint64(b[i:], rng.Uint64())
		}
	}
	fill(ev.RegistryID[:])
	fill(ev.UserAddress[:])
	fill(ev.UserDIDID[:])
	fill(ev.NFTID[:])
	ev.DIDType = uint8(rng.IntN(3))
	return Event{Type: s.EventType, Contents: ev.Bytes()}
}

// syntheticDigest mimics Sui transaction digests: Base58 of a Blake2b-256 hash.
func syntheticDigest(seq uint64, txIdx int) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], seq)
	binary.BigEndian.PutUint64(buf[8:], uint64(txIdx))
	sum := blake2b.Sum256(buf[:])
	return base58.Encode(sum[:])
}
