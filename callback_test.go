package rediswatcher

import (
	"testing"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnforcer(t *testing.T) *casbin.Enforcer {
	t.Helper()
	e, err := casbin.NewEnforcer("example/rbac_model.conf", "example/rbac_policy.csv")
	require.NoError(t, err)
	return e
}

func TestDefaultUpdateCallbackAddPolicy(t *testing.T) {
	e := newTestEnforcer(t)
	callback := DefaultUpdateCallback(e)

	msg := NewMessage(UpdateForAddPolicy, "remote")
	msg.Sec = "p"
	msg.Ptype = "p"
	msg.NewRule = []string{"carol", "data3", "read"}
	callback(mustJSON(t, msg))

	assert.Eventually(t, func() bool {
		ok, err := e.HasPolicy("carol", "data3", "read")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultUpdateCallbackRemovePolicy(t *testing.T) {
	e := newTestEnforcer(t)
	callback := DefaultUpdateCallback(e)

	msg := NewMessage(UpdateForRemovePolicy, "remote")
	msg.Sec = "p"
	msg.Ptype = "p"
	msg.NewRule = []string{"alice", "data1", "read"}
	callback(mustJSON(t, msg))

	assert.Eventually(t, func() bool {
		ok, err := e.HasPolicy("alice", "data1", "read")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultUpdateCallbackUpdatePolicy(t *testing.T) {
	e := newTestEnforcer(t)
	callback := DefaultUpdateCallback(e)

	msg := NewMessage(UpdateForUpdatePolicy, "remote")
	msg.Sec = "p"
	msg.Ptype = "p"
	msg.OldRule = []string{"bob", "data2", "write"}
	msg.NewRule = []string{"bob", "data2", "read"}
	callback(mustJSON(t, msg))

	assert.Eventually(t, func() bool {
		ok, err := e.HasPolicy("bob", "data2", "read")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	ok, err := e.HasPolicy("bob", "data2", "write")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultUpdateCallbackFullReload(t *testing.T) {
	e := newTestEnforcer(t)

	// Diverge the in-memory model from the backing file, then ask for a
	// full reload.
	_, err := e.SelfAddPolicy("p", "p", []string{"carol", "data3", "read"})
	require.NoError(t, err)

	callback := DefaultUpdateCallback(e)
	callback(mustJSON(t, NewMessage(Update, "remote")))

	assert.Eventually(t, func() bool {
		ok, err := e.HasPolicy("carol", "data3", "read")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultUpdateCallbackIgnoresMalformedPayload(t *testing.T) {
	e := newTestEnforcer(t)
	callback := DefaultUpdateCallback(e)

	// Must not panic or mutate anything.
	callback("{broken")
	callback(closeSentinel)

	time.Sleep(100 * time.Millisecond)
	ok, err := e.HasPolicy("alice", "data1", "read")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDefaultUpdateCallbackIsIdempotent(t *testing.T) {
	e := newTestEnforcer(t)
	callback := DefaultUpdateCallback(e)

	msg := NewMessage(UpdateForAddPolicy, "remote")
	msg.Sec = "p"
	msg.Ptype = "p"
	msg.NewRule = []string{"carol", "data3", "read"}
	payload := mustJSON(t, msg)

	// Re-delivery of the same mutation (e.g. IgnoreSelf disabled) is a
	// harmless no-op.
	callback(payload)
	callback(payload)

	assert.Eventually(t, func() bool {
		ok, err := e.HasPolicy("carol", "data3", "read")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	policies, err := e.GetFilteredPolicy(0, "carol")
	require.NoError(t, err)
	assert.Len(t, policies, 1)
}
