// Package handlers holds the pipelines' processors and commit logic: what
// each pipeline pulls out of a checkpoint and how it lands in Postgres.
package handlers

import (
	"context"
	"log/slog"

	"github.com/SuiVerify/suiverify-indexer/internal/checkpoint"
	"github.com/SuiVerify/suiverify-indexer/internal/config"
	"github.com/SuiVerify/suiverify-indexer/internal/events"
	"github.com/SuiVerify/suiverify-indexer/internal/metrics"
	"github.com/SuiVerify/suiverify-indexer/internal/notify"
	"github.com/SuiVerify/suiverify-indexer/internal/store"
)

// DIDClaimedPipeline names the pipeline and its watermark row.
const DIDClaimedPipeline = "did_claimed_event_handler"

// progressEvery controls the unconditional progress line.
const progressEvery = 1000

// StoredDIDClaimedEvent is a did_claimed_events row. JSON field names are
// the broadcast wire format.
type StoredDIDClaimedEvent struct {
	RegistryID               string `json:"registry_id"`
	UserAddress              string `json:"user_address"`
	DIDType                  int16  `json:"did_type"`
	UserDIDID                string `json:"user_did_id"`
	NFTID                    string `json:"nft_id"`
	CheckpointSequenceNumber int64  `json:"checkpoint_sequence_number"`
	TransactionDigest        string `json:"transaction_digest"`
	TimestampMs              int64  `json:"timestamp_ms"`
	EventIndex               int64  `json:"event_index"`
}

// DIDClaimedHandler indexes DIDClaimed events of one deployed package.
type DIDClaimedHandler struct {
	eventType string
	logCfg    config.LogConfig
	relay     *notify.Relay
	log       *slog.Logger
}

// NewDIDClaimedHandler matches events whose type equals eventType exactly.
// relay may be nil.
func NewDIDClaimedHandler(eventType checkpoint.TypeTag, logCfg config.LogConfig, relay *notify.Relay, log *slog.Logger) *DIDClaimedHandler {
	return &DIDClaimedHandler{
		eventType: eventType.String(),
		logCfg:    logCfg,
		relay:     relay,
		log:       log.With("pipeline", DIDClaimedPipeline),
	}
}

func (h *DIDClaimedHandler) Name() string { return DIDClaimedPipeline }

// Process extracts DIDClaimed records in transaction order, then event
// order. Payloads that fail to decode are logged and skipped; the only
// error returned is context cancellation.
func (h *DIDClaimedHandler) Process(ctx context.Context, cp *checkpoint.Checkpoint) ([]StoredDIDClaimedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq := int64(cp.SequenceNumber)
	ts := int64(cp.TimestampMs)

	if h.logCfg.ShouldLogDetailed() {
		h.log.Debug("processing checkpoint", "checkpoint", seq, "transactions", len(cp.Transactions))
	}
	if seq%progressEvery == 0 {
		h.log.Info("processed checkpoint", "checkpoint", seq)
	}

	var out []StoredDIDClaimedEvent
	for _, tx := range cp.Transactions {
		for idx, ev := range tx.Events {
			if ev.Type != h.eventType {
				continue
			}
			if h.logCfg.ShouldLogEvents() {
				h.log.Info("found DIDClaimed event", "tx", shortDigest(tx.Digest), "event_index", idx)
			}
			claimed, err := events.DecodeDIDClaimed(ev.Contents)
			if err != nil {
				h.log.Warn("failed to decode DIDClaimed event", "tx", shortDigest(tx.Digest), "event_index", idx, "err", err)
				metrics.DecodeFailures.WithLabelValues(events.DIDClaimedName).Inc()
				continue
			}
			rec := StoredDIDClaimedEvent{
				RegistryID:               claimed.RegistryID.String(),
				UserAddress:              claimed.UserAddress.String(),
				DIDType:                  int16(claimed.DIDType),
				UserDIDID:                claimed.UserDIDID.String(),
				NFTID:                    claimed.NFTID.String(),
				CheckpointSequenceNumber: seq,
				TransactionDigest:        tx.Digest,
				TimestampMs:              ts,
				EventIndex:               int64(idx),
			}
			if h.logCfg.ShouldLogEvents() {
				h.log.Info("DIDClaimed event details",
					"registry_id", rec.RegistryID,
					"user_address", rec.UserAddress,
					"did_type", rec.DIDType,
					"user_did_id", rec.UserDIDID,
					"nft_id", rec.NFTID,
				)
			}
			out = append(out, rec)
		}
	}

	if h.logCfg.ShouldLogEvents() && len(out) > 0 {
		h.log.Info("processed DIDClaimed events", "checkpoint", seq, "events", len(out))
	}
	return out, nil
}

const insertDIDClaimed = `
INSERT INTO did_claimed_events (
	registry_id, user_address, did_type, user_did_id, nft_id,
	checkpoint_sequence_number, transaction_digest, timestamp_ms, event_index
)
SELECT * FROM unnest(
	$1::text[], $2::text[], $3::smallint[], $4::text[], $5::text[],
	$6::bigint[], $7::text[], $8::bigint[], $9::bigint[]
)
ON CONFLICT (transaction_digest, event_index) DO NOTHING`

// Commit inserts batch in a single statement and returns how many rows were
// new. Rows already stored under the same (transaction_digest, event_index)
// are skipped. Storage errors are returned unchanged.
func (h *DIDClaimedHandler) Commit(ctx context.Context, conn store.Execer, batch []StoredDIDClaimedEvent) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if h.logCfg.ShouldLogDetailed() {
		h.log.Debug("committing DIDClaimed events", "events", len(batch))
	}

	var (
		registryIDs  = make([]string, len(batch))
		userAddrs    = make([]string, len(batch))
		didTypes     = make([]int16, len(batch))
		userDIDIDs   = make([]string, len(batch))
		nftIDs       = make([]string, len(batch))
		checkpoints  = make([]int64, len(batch))
		digests      = make([]string, len(batch))
		timestamps   = make([]int64, len(batch))
		eventIndexes = make([]int64, len(batch))
	)
	for i, r := range batch {
		registryIDs[i] = r.RegistryID
		userAddrs[i] = r.UserAddress
		didTypes[i] = r.DIDType
		userDIDIDs[i] = r.UserDIDID
		nftIDs[i] = r.NFTID
		checkpoints[i] = r.CheckpointSequenceNumber
		digests[i] = r.TransactionDigest
		timestamps[i] = r.TimestampMs
		eventIndexes[i] = r.EventIndex
	}

	tag, err := conn.Exec(ctx, insertDIDClaimed,
		registryIDs, userAddrs, didTypes, userDIDIDs, nftIDs,
		checkpoints, digests, timestamps, eventIndexes,
	)
	if err != nil {
		return 0, err
	}
	inserted := tag.RowsAffected()

	if h.logCfg.ShouldLogEvents() {
		if inserted > 0 {
			h.log.Info("inserted new DIDClaimed events", "inserted", inserted)
		} else {
			h.log.Debug("no new DIDClaimed events inserted, duplicates skipped")
		}
	}
	return inserted, nil
}

// Notify broadcasts every record of a committed batch, duplicates included.
func (h *DIDClaimedHandler) Notify(ctx context.Context, batch []StoredDIDClaimedEvent) {
	if len(batch) > 0 && h.logCfg.ShouldLogDetailed() {
		h.log.Debug("publishing DIDClaimed events", "events", len(batch))
	}
	notify.Send(ctx, h.relay, batch)
}

func shortDigest(d string) string {
	if len(d) > 8 {
		return d[:8]
	}
	return d
}
