package resolver

import (
	"context"
	"sync"

	"github.com/blitz-test/blitz/packages/core/model"
)

// instanceState tracks the lifecycle of one cached fixture instance.
type instanceState int

const (
	stateUnresolved instanceState = iota
	stateSettingUp
	stateReady
	stateTearingDown
	stateDestroyed
	stateErrored
)

// instanceKey is the cache partition: one live instance exists per
// (fixture name, scope key) at any time.
type instanceKey struct {
	Fixture string
	Key     model.ScopeKey
}

// instance is a single slot in the scope cache. The first requester becomes
// the sole initializer; everyone else waits on the ready channel, which is
// closed exactly once when the instance becomes Ready or Errored.
type instance struct {
	state   instanceState
	value   any
	release func() error
	err     error
	ready   chan struct{}
	refs    int // selected tests that have not released this key yet
}

// ScopeCache holds live fixture instances keyed by (fixture, ScopeKey). It
// is the only structure mutated by multiple workers; all state changes
// happen under the mutex, setup and teardown bodies run outside it.
type ScopeCache struct {
	mu        sync.Mutex
	instances map[instanceKey]*instance
}

// NewScopeCache returns an empty scope cache.
func NewScopeCache() *ScopeCache {
	return &ScopeCache{instances: make(map[instanceKey]*instance)}
}

// retain records one future use of the key; the matching release drives
// teardown when the count reaches zero.
func (c *ScopeCache) retain(key instanceKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst := c.instances[key]
	if inst == nil {
		inst = &instance{state: stateUnresolved, ready: make(chan struct{})}
		c.instances[key] = inst
	}
	inst.refs++
}

// acquire returns the live value for the key, initializing it via setup if
// this caller is the first requester. Later requesters block until the
// initializer finishes; an Errored instance returns its stored error to
// every requester without re-running setup.
func (c *ScopeCache) acquire(ctx context.Context, key instanceKey, setup func(ctx context.Context) (any, func() error, error)) (any, error) {
	c.mu.Lock()
	inst := c.instances[key]
	if inst == nil {
		inst = &instance{state: stateUnresolved, ready: make(chan struct{})}
		c.instances[key] = inst
	}

	switch inst.state {
	case stateReady:
		c.mu.Unlock()
		return inst.value, nil
	case stateErrored:
		c.mu.Unlock()
		return nil, inst.err
	case stateSettingUp:
		ready := inst.ready
		c.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if inst.state == stateErrored {
			return nil, inst.err
		}
		return inst.value, nil
	}

	// This caller won the race and becomes the sole initializer.
	inst.state = stateSettingUp
	c.mu.Unlock()

	value, release, err := setup(ctx)

	c.mu.Lock()
	if err != nil {
		inst.state = stateErrored
		inst.err = &model.SetupError{Fixture: key.Fixture, Key: key.Key, Err: err}
		close(inst.ready)
		c.mu.Unlock()
		return nil, inst.err
	}
	inst.state = stateReady
	inst.value = value
	inst.release = release
	close(inst.ready)
	c.mu.Unlock()
	return value, nil
}

// releaseRef drops one reference and tears the instance down if it was the
// last. Returns the teardown error, if any.
func (c *ScopeCache) releaseRef(key instanceKey) error {
	c.mu.Lock()
	inst := c.instances[key]
	if inst == nil {
		c.mu.Unlock()
		return nil
	}
	inst.refs--
	if inst.refs > 0 {
		c.mu.Unlock()
		return nil
	}
	return c.destroyLocked(key, inst)
}

// destroyLocked finalizes an instance. Called with the mutex held; the
// release action runs outside it.
func (c *ScopeCache) destroyLocked(key instanceKey, inst *instance) error {
	switch inst.state {
	case stateReady:
		inst.state = stateTearingDown
		release := inst.release
		c.mu.Unlock()
		var err error
		if release != nil {
			err = release()
		}
		c.mu.Lock()
		inst.state = stateDestroyed
		inst.value = nil
		inst.release = nil
		c.mu.Unlock()
		return err
	case stateErrored, stateUnresolved:
		inst.state = stateDestroyed
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
}

// drain tears down every remaining Ready instance, widest scope last so
// narrower instances never outlive what they depend on. Used at session end
// and after cancellation for best-effort resource reclamation.
func (c *ScopeCache) drain() []error {
	c.mu.Lock()
	keys := make([]instanceKey, 0, len(c.instances))
	for key, inst := range c.instances {
		if inst.state == stateReady {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	// Narrow scopes first: function, class, module, session.
	ordered := make([]instanceKey, 0, len(keys))
	for _, scope := range []model.Scope{model.ScopeFunction, model.ScopeClass, model.ScopeModule, model.ScopeSession} {
		for _, key := range keys {
			if key.Key.Scope == scope {
				ordered = append(ordered, key)
			}
		}
	}

	var errs []error
	for _, key := range ordered {
		c.mu.Lock()
		inst := c.instances[key]
		if inst == nil || inst.state != stateReady {
			c.mu.Unlock()
			continue
		}
		if err := c.destroyLocked(key, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// stateOf reports the current state for a key; used by tests.
func (c *ScopeCache) stateOf(key instanceKey) instanceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst := c.instances[key]
	if inst == nil {
		return stateUnresolved
	}
	return inst.state
}
