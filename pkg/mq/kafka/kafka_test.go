package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorIs(t, cfg.ValidateProducer(), ErrNoBrokers)

	cfg.Brokers = []string{"127.0.0.1:9092"}
	assert.ErrorIs(t, cfg.ValidateProducer(), ErrEmptyTopic)
	assert.ErrorIs(t, cfg.ValidateConsumer(), ErrEmptyTopic)

	cfg.Producer.Topic = "roster.updates"
	cfg.Consumer.Topic = "roster.captures"
	assert.NoError(t, cfg.ValidateProducer())
	assert.ErrorIs(t, cfg.ValidateConsumer(), ErrEmptyGroupID)

	cfg.Consumer.GroupID = "roster"
	assert.NoError(t, cfg.ValidateConsumer())
}

func TestNewProducerBuildsWriter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Brokers = []string{"127.0.0.1:9092"}
	cfg.Producer.Topic = "roster.updates"

	p, err := NewProducer(cfg)
	require.NoError(t, err)
	assert.Equal(t, "roster.updates", p.Topic())

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafka.Snappy, w.Compression)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{topic: "t", writer: w}

	err := p.Publish(context.Background(), &Message{
		Key:     []byte("acc-1"),
		Value:   []byte(`{"generation":1}`),
		Headers: map[string]string{"content-type": "application/json"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("acc-1"), w.msgs[0].Key)
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "content-type", w.msgs[0].Headers[0].Key)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), &Message{Value: []byte("x")}))

	produced, failed := p.Stats()
	assert.Equal(t, int64(1), produced)
	assert.Equal(t, int64(1), failed)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), &Message{}), ErrProducerClosed)
}

func TestConsumerCommitsAfterHandling(t *testing.T) {
	r := &fakeReader{ch: make(chan kafka.Message, 4)}
	cfg := DefaultConfig()
	cfg.Consumer.MaxRetries = 0

	var (
		mu   sync.Mutex
		seen []string
	)
	handler := func(_ context.Context, msg *Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(msg.Key))
		if string(msg.Key) == "boom" {
			panic("bad payload")
		}
		return nil
	}

	c := newConsumer(r, cfg, handler, nil)
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrConsumerAlreadyRunning)

	r.ch <- kafka.Message{Key: []byte("a"), Offset: 1}
	r.ch <- kafka.Message{Key: []byte("boom"), Offset: 2}
	r.ch <- kafka.Message{Key: []byte("b"), Offset: 3}

	assert.Eventually(t, func() bool {
		return len(r.committedOffsets()) == 3
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	assert.True(t, r.closed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "boom", "b"}, seen)
	assert.Equal(t, []int64{1, 2, 3}, r.committedOffsets())
}

func TestRetryMiddleware(t *testing.T) {
	calls := 0
	h := RetryMiddleware(2, time.Millisecond)(func(context.Context, *Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, h(context.Background(), &Message{}))
	assert.Equal(t, 3, calls)
}

func TestSASLMechanism(t *testing.T) {
	m, err := newSASLMechanism(&SASLConfig{Mechanism: "plain", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", m.Name())

	m, err = newSASLMechanism(&SASLConfig{Mechanism: "SCRAM-SHA-512", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "SCRAM-SHA-512", m.Name())

	_, err = newSASLMechanism(&SASLConfig{Mechanism: "GSSAPI"})
	assert.Error(t, err)
}
