package rediswatcher

import (
	"fmt"
	"time"

	"github.com/kart-io/logger"
)

const (
	// subscribeAttempts bounds subscription setup. Exhausting it disables
	// the receive path for the lifetime of the watcher.
	subscribeAttempts = 5

	// subscribeBackoffStep is multiplied by the number of failed attempts
	// to produce the delay before the next one.
	subscribeBackoffStep = 100 * time.Millisecond

	// idleWakeInterval bounds how long the receive loop goes without
	// re-checking the closed flag while the stream is quiet.
	idleWakeInterval = 100 * time.Millisecond
)

// subscribeLoop establishes the subscription and then delivers inbound
// payloads until the stream ends, a peer's shutdown sentinel arrives, or the
// watcher closes. There is no automatic resubscription after termination.
func (w *RedisWatcher) subscribeLoop() {
	defer w.wg.Done()
	defer w.recoverWorker("subscriber")

	sub, err := w.subscribeWithRetry()
	if err != nil {
		// Permanent degradation: the watcher keeps publishing but will
		// never observe remote changes again.
		logger.Errorw("receive path permanently disabled",
			"component", "rediswatcher.subscriber",
			"channel", w.options.Channel,
			"error", err.Error(),
		)
		w.signalReady(err)
		return
	}
	defer sub.Close()
	w.signalReady(nil)

	ch := sub.Channel()
	ticker := time.NewTicker(idleWakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.closed.Load() {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				logger.Warnw("subscription stream closed",
					"component", "rediswatcher.subscriber",
					"channel", w.options.Channel,
				)
				return
			}
			if w.closed.Load() {
				return
			}
			if msg.Payload == closeSentinel {
				logger.Infow("peer shutdown sentinel received",
					"component", "rediswatcher.subscriber",
					"channel", w.options.Channel,
				)
				return
			}
			w.handlePayload(msg.Payload)
		}
	}
}

// subscribeWithRetry opens the subscription, retrying with a linearly
// growing delay up to subscribeAttempts times.
func (w *RedisWatcher) subscribeWithRetry() (subscription, error) {
	var lastErr error
	for attempt := 1; attempt <= subscribeAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-w.ctx.Done():
				return nil, w.ctx.Err()
			case <-time.After(subscribeBackoffStep * time.Duration(attempt-1)):
			}
		}

		sub, err := w.transport.Subscribe(w.ctx, w.options.Channel)
		if err == nil {
			return sub, nil
		}
		lastErr = err
		logger.Warnw("subscribe attempt failed",
			"component", "rediswatcher.subscriber",
			"channel", w.options.Channel,
			"attempt", attempt,
			"error", err.Error(),
		)
	}
	return nil, fmt.Errorf("subscribe failed after %d attempts: %w", subscribeAttempts, lastErr)
}

// handlePayload decodes, self-filters and dispatches one inbound payload.
// Malformed payloads are logged and skipped; they never terminate the loop.
// The callback runs synchronously, so a slow callback delays delivery of
// subsequent messages and the shutdown check.
func (w *RedisWatcher) handlePayload(payload string) {
	messagesReceived.WithLabelValues(w.options.Channel).Inc()

	msg, err := FromJSON(payload)
	if err != nil {
		decodeFailures.WithLabelValues(w.options.Channel).Inc()
		logger.Errorw("discarding malformed notification",
			"component", "rediswatcher.subscriber",
			"channel", w.options.Channel,
			"payload", payload,
			"error", err.Error(),
		)
		return
	}

	if w.options.IgnoreSelf && msg.ID == w.options.LocalID {
		messagesSelfFiltered.WithLabelValues(w.options.Channel).Inc()
		return
	}

	w.mu.RLock()
	callback := w.callback
	w.mu.RUnlock()

	if callback == nil {
		// No buffering or replay: notifications before registration are gone.
		logger.Debugw("dropping notification, no update callback registered",
			"component", "rediswatcher.subscriber",
			"channel", w.options.Channel,
			"method", msg.Method,
		)
		return
	}

	callback(payload)
}
