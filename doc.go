// Package rediswatcher synchronizes casbin policy changes across cooperating
// enforcer instances through Redis pub/sub.
//
// Each instance attaches a RedisWatcher to its enforcer. When one instance
// mutates shared policy, the watcher publishes a typed change notification on
// a common channel; every other instance decodes it and reconciles its local
// state through a registered callback (DefaultUpdateCallback mirrors the
// mutation onto the enforcer).
//
// Basic usage:
//
//	options := rediswatcher.NewWatcherOptions().
//		WithChannel("/casbin-policy-updates").
//		WithIgnoreSelf(true)
//
//	w, err := rediswatcher.NewWatcher("127.0.0.1:6379", options)
//	if err != nil {
//		// handle error
//	}
//	defer w.Close()
//
//	e, _ := casbin.NewEnforcer("rbac_model.conf", "rbac_policy.csv")
//	_ = w.SetUpdateCallback(rediswatcher.DefaultUpdateCallback(e))
//	_ = e.SetWatcher(w)
//
// Delivery is best effort. A notification is dropped after three failed
// publish attempts, missed notifications are not replayed, and there is no
// ordering across different publishers. Callers that need guaranteed
// convergence should schedule periodic full policy reloads in addition to
// the watcher.
package rediswatcher
