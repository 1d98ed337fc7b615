package rediswatcher

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

// DefaultChannel is the channel used when none is configured.
const DefaultChannel = "/casbin"

// WatcherOptions configures a RedisWatcher. Options are immutable once the
// watcher is constructed; build them with NewWatcherOptions and the fluent
// With* setters.
type WatcherOptions struct {
	// Channel is the pub/sub channel shared by all cooperating instances.
	Channel string `json:"channel" mapstructure:"channel"`

	// IgnoreSelf suppresses delivery of notifications this instance
	// published itself. When false, an instance observes its own updates
	// and the registered callback must be idempotent.
	IgnoreSelf bool `json:"ignore-self" mapstructure:"ignore-self"`

	// LocalID uniquely identifies this instance and stamps every outgoing
	// message. Defaults to a random UUID.
	LocalID string `json:"local-id" mapstructure:"local-id"`

	// RedisOptions optionally overrides the standalone client settings
	// (password, DB, pool sizing). The address passed to NewWatcher wins.
	RedisOptions *redis.Options `json:"-" mapstructure:"-"`

	// ClusterOptions optionally overrides the cluster client settings.
	// The fixed node address passed to NewWatcherWithCluster wins.
	ClusterOptions *redis.ClusterOptions `json:"-" mapstructure:"-"`
}

// NewWatcherOptions creates options with default values.
func NewWatcherOptions() *WatcherOptions {
	return &WatcherOptions{
		Channel:    DefaultChannel,
		IgnoreSelf: false,
		LocalID:    uuid.NewString(),
	}
}

// WithChannel sets the pub/sub channel.
func (o *WatcherOptions) WithChannel(channel string) *WatcherOptions {
	o.Channel = channel
	return o
}

// WithIgnoreSelf sets whether notifications from this instance are skipped.
func (o *WatcherOptions) WithIgnoreSelf(ignore bool) *WatcherOptions {
	o.IgnoreSelf = ignore
	return o
}

// WithLocalID sets the instance identifier.
func (o *WatcherOptions) WithLocalID(id string) *WatcherOptions {
	o.LocalID = id
	return o
}

// WithRedisOptions sets the standalone client overrides.
func (o *WatcherOptions) WithRedisOptions(opts *redis.Options) *WatcherOptions {
	o.RedisOptions = opts
	return o
}

// WithClusterOptions sets the cluster client overrides.
func (o *WatcherOptions) WithClusterOptions(opts *redis.ClusterOptions) *WatcherOptions {
	o.ClusterOptions = opts
	return o
}

// Complete fills in fields that are required but unset: a zero-value
// WatcherOptions gets the default channel and a random LocalID.
func (o *WatcherOptions) Complete() error {
	if o.Channel == "" {
		o.Channel = DefaultChannel
	}
	if o.LocalID == "" {
		o.LocalID = uuid.NewString()
	}
	return nil
}

// Validate checks that the options are usable.
func (o *WatcherOptions) Validate() error {
	if o.Channel == "" {
		return fmt.Errorf("%w: channel must not be empty", ErrConfiguration)
	}
	if o.LocalID == "" {
		return fmt.Errorf("%w: local id must not be empty", ErrConfiguration)
	}
	if o.ClusterOptions != nil && len(o.ClusterOptions.Addrs) > 1 {
		return fmt.Errorf("%w: cluster pub/sub does not propagate across nodes; configure exactly one fixed node address", ErrConfiguration)
	}
	return nil
}

// AddFlags registers the flag-settable options on the given FlagSet.
func (o *WatcherOptions) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.Channel, namePrefix+"channel", o.Channel, "Pub/sub channel shared by all watcher instances")
	fs.BoolVar(&o.IgnoreSelf, namePrefix+"ignore-self", o.IgnoreSelf, "Skip notifications published by this instance")
	fs.StringVar(&o.LocalID, namePrefix+"local-id", o.LocalID, "Unique instance identifier (default: random UUID)")
}
