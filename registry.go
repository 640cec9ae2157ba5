package cloudobjects

import "sync"

type objectKey struct {
	classID    string
	instanceID string
}

// objectRegistry owns every live CloudObject handle, at most one per
// (class, instance). Resolution races are settled with a find-or-create
// swap under the lock: the loser of the race adopts the winner's handle
// instead of registering a duplicate.
type objectRegistry struct {
	realtime *realtimeManager
	logger   Logger

	mu        sync.Mutex
	objects   map[objectKey]*CloudObject
	teardowns []func()
}

func newObjectRegistry(realtime *realtimeManager, logger Logger) *objectRegistry {
	return &objectRegistry{
		realtime: realtime,
		logger:   logger,
		objects:  map[objectKey]*CloudObject{},
	}
}

// lookup returns the registered handle for a key, if any.
func (r *objectRegistry) lookup(classID, instanceID string) (*CloudObject, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.objects[objectKey{classID: classID, instanceID: instanceID}]
	return existing, ok
}

// adopt registers candidate unless a handle for the same key already
// exists, in which case the existing handle wins and is returned.
func (r *objectRegistry) adopt(candidate *CloudObject) *CloudObject {
	key := objectKey{classID: candidate.ClassID, instanceID: candidate.InstanceID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.objects[key]; ok {
		return existing
	}
	r.objects[key] = candidate
	return candidate
}

// onTeardown registers a callback to run when the registry is released.
func (r *objectRegistry) onTeardown(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardowns = append(r.teardowns, fn)
}

// release drops one handle and closes its realtime channels.
func (r *objectRegistry) release(classID, instanceID string) {
	r.mu.Lock()
	delete(r.objects, objectKey{classID: classID, instanceID: instanceID})
	r.mu.Unlock()
	r.realtime.closeObject(classID, instanceID)
}

// releaseAll closes every open push listener exactly once, completes every
// subscriber stream, runs the registered teardown callbacks, and clears the
// registry. Invoked on sign-out and on re-authentication with a different
// identity.
func (r *objectRegistry) releaseAll() {
	r.mu.Lock()
	r.objects = map[objectKey]*CloudObject{}
	teardowns := r.teardowns
	r.teardowns = nil
	r.mu.Unlock()

	r.realtime.closeAll()
	for _, teardown := range teardowns {
		teardown()
	}
}
