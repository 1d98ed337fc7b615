package rediswatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Watcher metrics, labelled by channel so several watchers in one process
// stay distinguishable. Dropped messages and decode failures are the
// observable record of best-effort delivery giving up.
var (
	messagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rediswatcher_messages_published_total",
			Help: "Number of change notifications successfully published",
		},
		[]string{"channel"},
	)

	publishRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rediswatcher_publish_retries_total",
			Help: "Number of failed publish attempts that were retried or gave up",
		},
		[]string{"channel"},
	)

	messagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rediswatcher_messages_dropped_total",
			Help: "Number of outbound notifications dropped after exhausting retries",
		},
		[]string{"channel"},
	)

	messagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rediswatcher_messages_received_total",
			Help: "Number of inbound payloads received on the subscription",
		},
		[]string{"channel"},
	)

	messagesSelfFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rediswatcher_messages_self_filtered_total",
			Help: "Number of inbound notifications skipped because this instance published them",
		},
		[]string{"channel"},
	)

	decodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rediswatcher_decode_failures_total",
			Help: "Number of inbound payloads that could not be decoded as a Message",
		},
		[]string{"channel"},
	)
)
