package rediswatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/kart-io/logger"
)

// closePublishTimeout bounds the best-effort sentinel publish during Close.
const closePublishTimeout = time.Second

// RedisWatcher propagates policy-change notifications between cooperating
// enforcer instances over Redis pub/sub. One instance publishes a Message per
// local mutation; every instance subscribed to the same channel hands the raw
// payload to its registered callback for local reconciliation.
//
// Delivery is best effort: a message is dropped after three failed publish
// attempts, missed messages are never replayed, and no ordering holds across
// different publishers. Callers needing guaranteed convergence should layer a
// periodic full reload on top.
//
// RedisWatcher implements persist.Watcher, persist.WatcherEx and
// persist.UpdatableWatcher, so it can be attached to an enforcer with
// e.SetWatcher(w).
type RedisWatcher struct {
	options   *WatcherOptions
	transport transport

	// mu guards the callback slot, which may be replaced at any time and
	// is read concurrently by the subscription worker.
	mu       sync.RWMutex
	callback func(string)

	queue  *messageQueue
	closed atomic.Bool

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ persist.Watcher          = (*RedisWatcher)(nil)
	_ persist.WatcherEx        = (*RedisWatcher)(nil)
	_ persist.UpdatableWatcher = (*RedisWatcher)(nil)
)

// NewWatcher creates a watcher against a standalone Redis server.
// Construction fails fast if the server is unreachable. It returns before
// the subscription is established; call WaitForReady before mutating policy
// if you must observe your own subsequent publishes.
func NewWatcher(addr string, options *WatcherOptions) (*RedisWatcher, error) {
	if options == nil {
		options = NewWatcherOptions()
	}
	if err := options.Complete(); err != nil {
		return nil, err
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t, err := newStandaloneTransport(ctx, addr, options.RedisOptions)
	if err != nil {
		cancel()
		return nil, err
	}
	return start(ctx, cancel, t, options), nil
}

// NewWatcherWithCluster creates a watcher against a Redis cluster.
//
// fixedNodeAddr is the single node used for both publish and subscribe.
// Cluster pub/sub notifications do not propagate between nodes, so all
// cooperating instances must be configured with the same fixed node;
// passing several addresses and letting the client load-balance is a
// configuration error, not a supported mode.
func NewWatcherWithCluster(fixedNodeAddr string, options *WatcherOptions) (*RedisWatcher, error) {
	if options == nil {
		options = NewWatcherOptions()
	}
	if err := options.Complete(); err != nil {
		return nil, err
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t, err := newClusterTransport(ctx, fixedNodeAddr, options.ClusterOptions)
	if err != nil {
		cancel()
		return nil, err
	}
	return start(ctx, cancel, t, options), nil
}

func start(ctx context.Context, cancel context.CancelFunc, t transport, options *WatcherOptions) *RedisWatcher {
	w := &RedisWatcher{
		options:   options,
		transport: t,
		queue:     newMessageQueue(),
		ready:     make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	w.wg.Add(2)
	go w.publishLoop()
	go w.subscribeLoop()
	return w
}

// SetUpdateCallback registers the handler invoked with the raw payload of
// every accepted inbound notification. The slot holds a single handler;
// registering again replaces it. Notifications arriving while no handler is
// registered are dropped, not buffered.
func (w *RedisWatcher) SetUpdateCallback(callback func(string)) error {
	if w.closed.Load() {
		return ErrAlreadyClosed
	}
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
	return nil
}

// WaitForReady blocks until the subscription is established, subscription
// setup has permanently failed, or ctx expires. Once it returns nil, this
// instance is guaranteed to observe its own future publishes.
func (w *RedisWatcher) WaitForReady(ctx context.Context) error {
	select {
	case <-w.ready:
		return w.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *RedisWatcher) signalReady(err error) {
	w.readyOnce.Do(func() {
		w.readyErr = err
		close(w.ready)
	})
}

// notify stamps the message with this instance's id and hands it to the
// publish worker. It never blocks on network I/O.
func (w *RedisWatcher) notify(msg *Message) error {
	if w.closed.Load() {
		return ErrAlreadyClosed
	}
	if !w.queue.Enqueue(msg) {
		return ErrAlreadyClosed
	}
	return nil
}

// Update notifies other instances that the policy changed and should be
// reloaded in full.
func (w *RedisWatcher) Update() error {
	return w.notify(NewMessage(Update, w.options.LocalID))
}

// UpdateForAddPolicy notifies other instances that a policy rule was added.
func (w *RedisWatcher) UpdateForAddPolicy(sec, ptype string, params ...string) error {
	msg := NewMessage(UpdateForAddPolicy, w.options.LocalID)
	msg.Sec = sec
	msg.Ptype = ptype
	msg.NewRule = params
	return w.notify(msg)
}

// UpdateForRemovePolicy notifies other instances that a policy rule was
// removed.
func (w *RedisWatcher) UpdateForRemovePolicy(sec, ptype string, params ...string) error {
	msg := NewMessage(UpdateForRemovePolicy, w.options.LocalID)
	msg.Sec = sec
	msg.Ptype = ptype
	msg.NewRule = params
	return w.notify(msg)
}

// UpdateForRemoveFilteredPolicy notifies other instances that rules matching
// the field filter were removed.
func (w *RedisWatcher) UpdateForRemoveFilteredPolicy(sec, ptype string, fieldIndex int, fieldValues ...string) error {
	msg := NewMessage(UpdateForRemoveFilteredPolicy, w.options.LocalID)
	msg.Sec = sec
	msg.Ptype = ptype
	msg.FieldIndex = fieldIndex
	msg.FieldValues = fieldValues
	return w.notify(msg)
}

// UpdateForSavePolicy notifies other instances that the whole policy was
// saved. The model itself is not transmitted; receivers reload locally.
func (w *RedisWatcher) UpdateForSavePolicy(_ model.Model) error {
	return w.notify(NewMessage(UpdateForSavePolicy, w.options.LocalID))
}

// UpdateForAddPolicies notifies other instances that a batch of rules was
// added.
func (w *RedisWatcher) UpdateForAddPolicies(sec, ptype string, rules ...[]string) error {
	msg := NewMessage(UpdateForAddPolicies, w.options.LocalID)
	msg.Sec = sec
	msg.Ptype = ptype
	msg.NewRules = rules
	return w.notify(msg)
}

// UpdateForRemovePolicies notifies other instances that a batch of rules was
// removed.
func (w *RedisWatcher) UpdateForRemovePolicies(sec, ptype string, rules ...[]string) error {
	msg := NewMessage(UpdateForRemovePolicies, w.options.LocalID)
	msg.Sec = sec
	msg.Ptype = ptype
	msg.NewRules = rules
	return w.notify(msg)
}

// UpdateForUpdatePolicy notifies other instances that a rule was replaced.
func (w *RedisWatcher) UpdateForUpdatePolicy(sec, ptype string, oldRule, newRule []string) error {
	msg := NewMessage(UpdateForUpdatePolicy, w.options.LocalID)
	msg.Sec = sec
	msg.Ptype = ptype
	msg.OldRule = oldRule
	msg.NewRule = newRule
	return w.notify(msg)
}

// UpdateForUpdatePolicies notifies other instances that a batch of rules was
// replaced.
func (w *RedisWatcher) UpdateForUpdatePolicies(sec, ptype string, oldRules, newRules [][]string) error {
	msg := NewMessage(UpdateForUpdatePolicies, w.options.LocalID)
	msg.Sec = sec
	msg.Ptype = ptype
	msg.OldRules = oldRules
	msg.NewRules = newRules
	return w.notify(msg)
}

// Close shuts the watcher down. It is idempotent, publishes the shutdown
// sentinel best-effort so peers notice promptly, and stops both background
// workers without draining the outbound queue or waiting for in-flight
// deliveries. Updates and callback registration after Close fail with
// ErrAlreadyClosed.
func (w *RedisWatcher) Close() {
	if w.closed.Swap(true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), closePublishTimeout)
	if err := w.transport.Publish(ctx, w.options.Channel, closeSentinel); err != nil {
		logger.Warnw("failed to publish shutdown sentinel",
			"component", "rediswatcher",
			"channel", w.options.Channel,
			"error", err.Error(),
		)
	}
	cancel()

	w.queue.Close()
	w.cancel()
	w.wg.Wait()
	if err := w.transport.Close(); err != nil {
		logger.Warnw("failed to close transport",
			"component", "rediswatcher",
			"error", err.Error(),
		)
	}
}

// recoverWorker keeps a panicking background worker from taking the process
// down. The worker still terminates; only the panic is contained.
func (w *RedisWatcher) recoverWorker(name string) {
	if r := recover(); r != nil {
		logger.Errorw("recovered from panic in watcher worker",
			"component", "rediswatcher."+name,
			"error", r,
		)
	}
}
