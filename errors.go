package rediswatcher

import "errors"

// Sentinel errors returned by the watcher. Wrap sites add context with
// fmt.Errorf("...: %w", ...), so callers should test with errors.Is.
var (
	// ErrConnection indicates the Redis target was unreachable at
	// construction time or a connection broke mid-operation.
	ErrConnection = errors.New("rediswatcher: connection error")

	// ErrSerialization indicates a payload could not be decoded into a
	// Message, or a Message could not be encoded.
	ErrSerialization = errors.New("rediswatcher: serialization error")

	// ErrConfiguration indicates invalid watcher options, e.g. an empty
	// channel or a multi-address cluster node list.
	ErrConfiguration = errors.New("rediswatcher: configuration error")

	// ErrAlreadyClosed is returned for any operation attempted after Close.
	ErrAlreadyClosed = errors.New("rediswatcher: watcher already closed")

	// ErrCallbackNotSet is informational: an inbound notification arrived
	// with no registered callback. Delivery is skipped, not failed.
	ErrCallbackNotSet = errors.New("rediswatcher: update callback not set")
)
