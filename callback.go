package rediswatcher

import (
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// defaultCallbackPoolSize caps the goroutines applying enforcer updates.
const defaultCallbackPoolSize = 64

var (
	callbackPoolOnce sync.Once
	callbackPool     *ants.Pool
)

// getCallbackPool lazily builds the shared worker pool used by
// DefaultUpdateCallback. Returns nil when pool construction failed; callers
// fall back to plain goroutines.
func getCallbackPool() *ants.Pool {
	callbackPoolOnce.Do(func() {
		pool, err := ants.NewPool(defaultCallbackPoolSize,
			ants.WithExpiryDuration(10*time.Second),
			ants.WithPanicHandler(func(r interface{}) {
				logger.Errorw("recovered from panic in update callback",
					"component", "rediswatcher.callback",
					"error", r,
				)
			}),
		)
		if err != nil {
			logger.Warnw("callback pool unavailable, callbacks run on plain goroutines",
				"component", "rediswatcher.callback",
				"error", err.Error(),
			)
			return
		}
		callbackPool = pool
	})
	return callbackPool
}

// DefaultUpdateCallback returns a callback that mirrors each notification
// onto the given enforcer: full reloads for Update and SavePolicy, targeted
// Self* mutations for the rest. The enforcer work is handed off to a shared
// worker pool so the subscription loop is never blocked by storage I/O.
//
// The reconciliation is idempotent, which also makes it safe to run with
// IgnoreSelf disabled: re-applying an instance's own mutation is a no-op.
func DefaultUpdateCallback(e casbin.IEnforcer) func(string) {
	return func(payload string) {
		msg, err := FromJSON(payload)
		if err != nil {
			logger.Errorw("ignoring undecodable notification",
				"component", "rediswatcher.callback",
				"error", err.Error(),
			)
			return
		}

		task := func() {
			applyUpdate(e, msg)
		}
		if pool := getCallbackPool(); pool != nil {
			if err := pool.Submit(task); err == nil {
				return
			}
			logger.Warnw("callback pool rejected task, falling back to goroutine",
				"component", "rediswatcher.callback",
				"method", msg.Method,
			)
		}
		go task()
	}
}

// applyUpdate applies one decoded notification to the enforcer.
func applyUpdate(e casbin.IEnforcer, msg *Message) {
	var (
		effective = true
		err       error
	)

	switch msg.Method {
	case Update, UpdateForSavePolicy:
		err = e.LoadPolicy()
	case UpdateForAddPolicy:
		effective, err = e.SelfAddPolicy(msg.Sec, msg.Ptype, msg.NewRule)
	case UpdateForAddPolicies:
		effective, err = e.SelfAddPolicies(msg.Sec, msg.Ptype, msg.NewRules)
	case UpdateForRemovePolicy:
		effective, err = e.SelfRemovePolicy(msg.Sec, msg.Ptype, msg.NewRule)
	case UpdateForRemovePolicies:
		effective, err = e.SelfRemovePolicies(msg.Sec, msg.Ptype, msg.NewRules)
	case UpdateForRemoveFilteredPolicy:
		effective, err = e.SelfRemoveFilteredPolicy(msg.Sec, msg.Ptype, msg.FieldIndex, msg.FieldValues...)
	case UpdateForUpdatePolicy:
		effective, err = e.SelfUpdatePolicy(msg.Sec, msg.Ptype, msg.OldRule, msg.NewRule)
	case UpdateForUpdatePolicies:
		effective, err = e.SelfUpdatePolicies(msg.Sec, msg.Ptype, msg.OldRules, msg.NewRules)
	default:
		logger.Warnw("no reconciliation for update type",
			"component", "rediswatcher.callback",
			"method", msg.Method,
		)
		return
	}

	if err != nil {
		logger.Errorw("failed to apply policy update",
			"component", "rediswatcher.callback",
			"method", msg.Method,
			"error", err.Error(),
		)
		return
	}
	if !effective {
		// Usually the rule was already present or absent; harmless when
		// reconciliation is idempotent.
		logger.Debugw("policy update had no effect",
			"component", "rediswatcher.callback",
			"method", msg.Method,
		)
	}
}
