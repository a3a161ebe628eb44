package handlers

import (
	"context"

	"github.com/SuiVerify/suiverify-indexer/internal/checkpoint"
	"github.com/SuiVerify/suiverify-indexer/internal/store"
)

// TransactionDigestPipeline names the pipeline and its watermark row.
const TransactionDigestPipeline = "transaction_digest_handler"

// StoredTransactionDigest is a transaction_digests row.
type StoredTransactionDigest struct {
	TxDigest                 string
	CheckpointSequenceNumber int64
}

// TransactionDigestHandler records which checkpoint every transaction landed in.
type TransactionDigestHandler struct{}

func (TransactionDigestHandler) Name() string { return TransactionDigestPipeline }

func (TransactionDigestHandler) Process(ctx context.Context, cp *checkpoint.Checkpoint) ([]StoredTransactionDigest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]StoredTransactionDigest, 0, len(cp.Transactions))
	for _, tx := range cp.Transactions {
		out = append(out, StoredTransactionDigest{
			TxDigest:                 tx.Digest,
			CheckpointSequenceNumber: int64(cp.SequenceNumber),
		})
	}
	return out, nil
}

const insertTransactionDigests = `
INSERT INTO transaction_digests (tx_digest, checkpoint_sequence_number)
SELECT * FROM unnest($1::text[], $2::bigint[])
ON CONFLICT (tx_digest) DO NOTHING`

func (TransactionDigestHandler) Commit(ctx context.Context, conn store.Execer, batch []StoredTransactionDigest) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	digests := make([]string, len(batch))
	seqs := make([]int64, len(batch))
	for i, r := range batch {
		digests[i] = r.TxDigest
		seqs[i] = r.CheckpointSequenceNumber
	}
	tag, err := conn.Exec(ctx, insertTransactionDigests, digests, seqs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
