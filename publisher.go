package rediswatcher

import (
	"time"

	"github.com/kart-io/logger"
)

const (
	// publishAttempts bounds how often a single message is offered to the
	// transport before it is dropped.
	publishAttempts = 3

	// publishBackoffStep is multiplied by the number of failed attempts to
	// produce the delay before the next one.
	publishBackoffStep = 100 * time.Millisecond
)

// publishLoop drains the outbound queue in enqueue order. It is the only
// consumer, which preserves this instance's publish ordering. The loop ends
// when the queue is closed; entries still queued at that point are lost.
func (w *RedisWatcher) publishLoop() {
	defer w.wg.Done()
	defer w.recoverWorker("publisher")

	for {
		msg, ok := w.queue.Dequeue()
		if !ok {
			return
		}
		w.publishWithRetry(msg)
	}
}

// publishWithRetry offers one message to the transport up to publishAttempts
// times with a linearly growing delay in between. Exhaustion drops the
// message: there is no further retry, and callers needing guaranteed
// convergence must reconcile out of band (e.g. a periodic full reload).
// A dropped message never disables the publish path for later messages.
func (w *RedisWatcher) publishWithRetry(msg *Message) {
	payload, err := msg.ToJSON()
	if err != nil {
		logger.Errorw("dropping unencodable notification",
			"component", "rediswatcher.publisher",
			"method", msg.Method,
			"error", err.Error(),
		)
		messagesDropped.WithLabelValues(w.options.Channel).Inc()
		return
	}

	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-w.ctx.Done():
				// Shutdown mid-backoff abandons the message; record it so
				// the loss stays observable.
				messagesDropped.WithLabelValues(w.options.Channel).Inc()
				logger.Warnw("dropping notification, watcher closed during retry backoff",
					"component", "rediswatcher.publisher",
					"channel", w.options.Channel,
					"method", msg.Method,
					"attempt", attempt,
					"error", lastErr.Error(),
				)
				return
			case <-time.After(publishBackoffStep * time.Duration(attempt-1)):
			}
		}

		if err := w.transport.Publish(w.ctx, w.options.Channel, payload); err != nil {
			lastErr = err
			publishRetries.WithLabelValues(w.options.Channel).Inc()
			logger.Warnw("publish attempt failed",
				"component", "rediswatcher.publisher",
				"channel", w.options.Channel,
				"attempt", attempt,
				"error", err.Error(),
			)
			continue
		}

		messagesPublished.WithLabelValues(w.options.Channel).Inc()
		return
	}

	messagesDropped.WithLabelValues(w.options.Channel).Inc()
	logger.Errorw("dropping notification after exhausting publish retries",
		"component", "rediswatcher.publisher",
		"channel", w.options.Channel,
		"method", msg.Method,
		"attempts", publishAttempts,
		"error", lastErr.Error(),
	)
}
