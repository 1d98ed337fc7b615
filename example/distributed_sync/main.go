// Command distributed_sync simulates two service instances that keep
// their casbin policies in sync through Redis. Run it against a local
// Redis (127.0.0.1:6379):
//
//	go run ./example/distributed_sync
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/casbin/casbin/v2"
	rediswatcher "github.com/kart-io/redis-watcher"
)

const (
	redisAddr = "127.0.0.1:6379"
	channel   = "/casbin-policy-updates"
)

func newInstance(localID string) (*casbin.Enforcer, *rediswatcher.RedisWatcher, error) {
	opts := rediswatcher.NewWatcherOptions().
		WithChannel(channel).
		WithIgnoreSelf(true).
		WithLocalID(localID)

	w, err := rediswatcher.NewWatcher(redisAddr, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}

	e, err := casbin.NewEnforcer("example/rbac_model.conf", "example/rbac_policy.csv")
	if err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("create enforcer: %w", err)
	}

	// Each instance mirrors remote mutations into its own enforcer.
	if err := w.SetUpdateCallback(rediswatcher.DefaultUpdateCallback(e)); err != nil {
		w.Close()
		return nil, nil, err
	}
	if err := e.SetWatcher(w); err != nil {
		w.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.WaitForReady(ctx); err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("watcher not ready: %w", err)
	}
	return e, w, nil
}

func main() {
	enforcer1, watcher1, err := newInstance("service-instance-1")
	if err != nil {
		log.Fatal(err)
	}
	defer watcher1.Close()
	fmt.Println("[instance-1] enforcer created and watching")

	enforcer2, watcher2, err := newInstance("service-instance-2")
	if err != nil {
		log.Fatal(err)
	}
	defer watcher2.Close()
	fmt.Println("[instance-2] enforcer created and watching")

	fmt.Println("\n=== instance-1 adds a policy ===")
	if _, err := enforcer1.AddPolicy("alice", "data3", "read"); err != nil {
		log.Fatal(err)
	}
	fmt.Println("[instance-1] added: alice, data3, read")

	time.Sleep(300 * time.Millisecond)
	if ok, _ := enforcer2.HasPolicy("alice", "data3", "read"); ok {
		fmt.Println("[instance-2] saw the new policy")
	} else {
		fmt.Println("[instance-2] policy not visible yet")
	}

	fmt.Println("\n=== instance-2 removes a policy ===")
	if _, err := enforcer2.RemovePolicy("alice", "data1", "read"); err != nil {
		log.Fatal(err)
	}
	fmt.Println("[instance-2] removed: alice, data1, read")

	time.Sleep(300 * time.Millisecond)
	if ok, _ := enforcer1.HasPolicy("alice", "data1", "read"); !ok {
		fmt.Println("[instance-1] saw the removal")
	} else {
		fmt.Println("[instance-1] removal not visible yet")
	}

	fmt.Println("\n=== enforcement on both instances ===")
	for _, e := range []*casbin.Enforcer{enforcer1, enforcer2} {
		ok, err := e.Enforce("alice", "data3", "read")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("alice reads data3: %v\n", ok)
	}
}
