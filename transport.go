package rediswatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// subscription is the receive half of a transport. *redis.PubSub satisfies
// it directly; tests substitute an in-memory stream.
type subscription interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// transport selects where messages are published to and received from.
// There are two implementations: a standalone server and a single pinned
// cluster node. Connection failures at construction time are fatal;
// failures after that are handled by the workers, not here.
type transport interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (subscription, error)
	Close() error
}

// standaloneTransport publishes and subscribes against one logical Redis
// server. go-redis dedicates a separate connection to the subscription, so
// the publish path is never blocked by the stream.
type standaloneTransport struct {
	client *redis.Client
}

func newStandaloneTransport(ctx context.Context, addr string, opts *redis.Options) (*standaloneTransport, error) {
	if opts == nil {
		opts = &redis.Options{}
	}
	if addr != "" {
		opts.Addr = addr
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("%w: redis address must not be empty", ErrConfiguration)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrConnection, opts.Addr, err)
	}
	return &standaloneTransport{client: client}, nil
}

func (t *standaloneTransport) Publish(ctx context.Context, channel, payload string) error {
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish to %q: %v", ErrConnection, channel, err)
	}
	return nil
}

func (t *standaloneTransport) Subscribe(ctx context.Context, channel string) (subscription, error) {
	ps := t.client.Subscribe(ctx, channel)
	// Receive waits for the subscription confirmation so setup failures
	// surface here instead of as a silently empty stream.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe to %q: %v", ErrConnection, channel, err)
	}
	return ps, nil
}

func (t *standaloneTransport) Close() error {
	return t.client.Close()
}

// clusterTransport pins one cluster node and uses it for both publish and
// subscribe. Cluster pub/sub notifications do not propagate between nodes,
// so letting the client load-balance across the cluster would silently break
// cross-instance delivery; every cooperating instance must pin the same node.
type clusterTransport struct {
	client *redis.ClusterClient
}

func newClusterTransport(ctx context.Context, fixedNodeAddr string, opts *redis.ClusterOptions) (*clusterTransport, error) {
	if strings.Contains(fixedNodeAddr, ",") {
		return nil, fmt.Errorf("%w: expected a single fixed node address, got %q", ErrConfiguration, fixedNodeAddr)
	}
	if opts == nil {
		opts = &redis.ClusterOptions{}
	}
	if fixedNodeAddr != "" {
		opts.Addrs = []string{fixedNodeAddr}
	}
	if len(opts.Addrs) != 1 {
		return nil, fmt.Errorf("%w: exactly one fixed node address is required, got %d", ErrConfiguration, len(opts.Addrs))
	}

	client := redis.NewClusterClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping cluster node %s: %v", ErrConnection, opts.Addrs[0], err)
	}
	return &clusterTransport{client: client}, nil
}

func (t *clusterTransport) Publish(ctx context.Context, channel, payload string) error {
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish to %q: %v", ErrConnection, channel, err)
	}
	return nil
}

func (t *clusterTransport) Subscribe(ctx context.Context, channel string) (subscription, error) {
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe to %q: %v", ErrConnection, channel, err)
	}
	return ps, nil
}

func (t *clusterTransport) Close() error {
	return t.client.Close()
}
