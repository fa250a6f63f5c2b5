package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, &ProducerConfig{Compression: "gzip", Registerer: prometheus.NewRegistry()})

	require.NoError(t, p.Publish(context.Background(), "covdash.exports", []byte("zip"), map[string]int{"bytes": 10}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "covdash.exports", w.msgs[0].Topic)
	assert.Equal(t, []byte("zip"), w.msgs[0].Key)

	var got map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 10, got["bytes"])
}

func TestProducerPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, &ProducerConfig{})

	err := p.Publish(context.Background(), "t", nil, "raw")
	assert.ErrorContains(t, err, "broker down")
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type countingHandler struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
}

func (h *countingHandler) Topic() string { return "covdash.snapshots" }

func (h *countingHandler) Handle(_ context.Context, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := string(data)
	h.calls[key]++
	if h.calls[key] <= h.failures[key] {
		return errors.New("not yet")
	}
	return nil
}

func (h *countingHandler) Calls(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[key]
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte("flaky")},
		{Offset: 2, Value: []byte("poison")},
	}}
	c := newConsumer(&ConsumerConfig{RetryMax: 2, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond})
	c.newReader = func(string) messageReader { return reader }

	h := &countingHandler{calls: map[string]int{}, failures: map[string]int{"flaky": 1, "poison": 100}}
	c.RegisterHandler(h)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	assert.Equal(t, []int64{1, 2}, reader.Committed())
	assert.Equal(t, 2, h.Calls("flaky"))
	assert.Equal(t, 3, h.Calls("poison"))
}
