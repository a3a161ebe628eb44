package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuiVerify/suiverify-indexer/internal/metrics"
)

type fakePublisher struct {
	channel  string
	payloads []string
	err      error
	deadline bool
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, payloads ...string) error {
	_, f.deadline = ctx.Deadline()
	f.channel = channel
	f.payloads = append(f.payloads, payloads...)
	return f.err
}

type rec struct {
	ID  string  `json:"id"`
	Val float64 `json:"val"`
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSendPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRelay(pub, "test_ok", time.Second, discard, true)

	Send(context.Background(), r, []rec{{ID: "a", Val: 1}, {ID: "b", Val: 2}})

	assert.Equal(t, "test_ok", pub.channel)
	assert.Equal(t, []string{`{"id":"a","val":1}`, `{"id":"b","val":2}`}, pub.payloads)
	assert.True(t, pub.deadline, "publish runs under the relay timeout")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("test_ok", "ok")))
}

func TestSendAbsorbsTransportError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	r := NewRelay(pub, "test_err", time.Second, discard, false)

	assert.NotPanics(t, func() { Send(context.Background(), r, []rec{{ID: "a"}}) })
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("test_err", "error")))
}

func TestSendSkipsUnserializable(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRelay(pub, "test_nan", 0, discard, false)

	Send(context.Background(), r, []rec{{ID: "bad", Val: math.NaN()}, {ID: "good"}})

	assert.Equal(t, []string{`{"id":"good","val":0}`}, pub.payloads)
	assert.False(t, pub.deadline)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishTotal.WithLabelValues("test_nan", "serialize_error")))
}

func TestSendWithoutTransport(t *testing.T) {
	r := NewRelay(nil, "test_none", time.Second, discard, false)
	assert.False(t, r.Enabled())
	assert.NotPanics(t, func() { Send(context.Background(), r, []rec{{ID: "a"}}) })

	var nilRelay *Relay
	assert.NotPanics(t, func() { Send(context.Background(), nilRelay, []rec{{ID: "a"}}) })
}

func TestSendEmptyBatch(t *testing.T) {
	pub := &fakePublisher{}
	Send(context.Background(), NewRelay(pub, "test_empty", time.Second, discard, false), []rec(nil))
	assert.Empty(t, pub.channel, "no publish call for an empty batch")
}

func TestNewRedisPublisherBadURL(t *testing.T) {
	_, err := NewRedisPublisher("http://not-redis")
	assert.Error(t, err)
}

func TestRedisPublisherUnreachable(t *testing.T) {
	pub, err := NewRedisPublisher("redis://127.0.0.1:1/0")
	require.NoError(t, err)
	defer pub.Close()

	start := time.Now()
	err = pub.Publish(context.Background(), "did_claimed", "{}")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "unreachable server must fail fast")
	assert.NoError(t, pub.Publish(context.Background(), "did_claimed"))
}
