package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/SuiVerify/suiverify-indexer/internal/metrics"
)

// Relay serializes records to JSON and hands them to a Publisher.
// A Relay with a nil Publisher is valid and publishes nothing.
type Relay struct {
	pub       Publisher
	channel   string
	timeout   time.Duration
	log       *slog.Logger
	logEvents bool
}

// NewRelay returns a relay for channel. logEvents adds one info line per publish.
func NewRelay(pub Publisher, channel string, timeout time.Duration, log *slog.Logger, logEvents bool) *Relay {
	return &Relay{pub: pub, channel: channel, timeout: timeout, log: log, logEvents: logEvents}
}

// Enabled reports whether a transport is configured.
func (r *Relay) Enabled() bool { return r != nil && r.pub != nil }

// Send publishes every record. It never fails: serialization and transport
// errors are logged at warn and counted.
func Send[T any](ctx context.Context, r *Relay, records []T) {
	if len(records) == 0 {
		return
	}
	if !r.Enabled() {
		if r != nil {
			r.log.Debug("no broadcast transport configured, skipping publish", "channel", r.channel)
		}
		return
	}
	payloads := make([]string, 0, len(records))
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			r.log.Warn("failed to serialize record for broadcast", "channel", r.channel, "err", err)
			metrics.PublishTotal.WithLabelValues(r.channel, "serialize_error").Inc()
			continue
		}
		payloads = append(payloads, string(b))
	}
	if len(payloads) == 0 {
		return
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := r.pub.Publish(ctx, r.channel, payloads...); err != nil {
		r.log.Warn("broadcast failed, subscribers will miss these records",
			"channel", r.channel, "records", len(payloads), "err", err)
		metrics.PublishTotal.WithLabelValues(r.channel, "error").Add(float64(len(payloads)))
		return
	}
	metrics.PublishTotal.WithLabelValues(r.channel, "ok").Add(float64(len(payloads)))
	if r.logEvents {
		r.log.Info("published records", "channel", r.channel, "records", len(payloads))
	}
}
