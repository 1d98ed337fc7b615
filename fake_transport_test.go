package rediswatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var errFakePublish = errors.New("fake transport: publish refused")

// fakeStream stands in for *redis.PubSub in worker tests.
type fakeStream struct {
	mu     sync.Mutex
	ch     chan *redis.Message
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan *redis.Message, 16)}
}

func (s *fakeStream) Channel(_ ...redis.ChannelOption) <-chan *redis.Message {
	return s.ch
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// send drops the message once the stream is closed, like real pub/sub
// traffic arriving after unsubscribe.
func (s *fakeStream) send(msg *redis.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- msg
}

// fakeTransport records publishes and feeds the subscription from an
// in-memory stream, so both workers run without a Redis server.
type fakeTransport struct {
	mu             sync.Mutex
	published      []string
	publishCalls   int
	failPublishes  int // fail this many publish calls; negative means always
	subscribeErr   error
	subscribeCalls int
	stream         *fakeStream
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{stream: newFakeStream()}
}

func (f *fakeTransport) Publish(_ context.Context, _ string, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishCalls++
	if f.failPublishes < 0 {
		return errFakePublish
	}
	if f.failPublishes > 0 {
		f.failPublishes--
		return errFakePublish
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeTransport) Subscribe(context.Context, string) (subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.stream, nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) publishedPayloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeTransport) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishCalls
}

func (f *fakeTransport) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

// deliver pushes an inbound payload into the subscription stream. Payloads
// delivered after the stream closed are discarded.
func (f *fakeTransport) deliver(channel, payload string) {
	f.stream.send(&redis.Message{Channel: channel, Payload: payload})
}

// newFakeWatcher wires a watcher onto a fake transport. Each test gets its
// own channel name so the per-channel metrics stay isolated.
func newFakeWatcher(t *testing.T, tr transport, opts *WatcherOptions) *RedisWatcher {
	t.Helper()
	if opts.Channel == DefaultChannel || opts.Channel == "" {
		opts.WithChannel(fmt.Sprintf("/test/%s", t.Name()))
	}
	require.NoError(t, opts.Complete())
	require.NoError(t, opts.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	w := start(ctx, cancel, tr, opts)
	t.Cleanup(w.Close)
	return w
}
