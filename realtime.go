package cloudobjects

import (
	"context"
	"strings"
	"sync"
)

// Partition is one of the three independently subscribable realtime state
// scopes of a cloud object.
type Partition string

const (
	PartitionRole   Partition = "role"
	PartitionUser   Partition = "user"
	PartitionPublic Partition = "public"
)

var allPartitions = []Partition{PartitionRole, PartitionUser, PartitionPublic}

// reservedFieldPrefix marks internal fields stripped from every update
// before it reaches subscribers.
const reservedFieldPrefix = "__"

// channelKey is the structured identity of one realtime channel. Keeping
// it a value type rules out the collisions string-concatenated keys invite.
type channelKey struct {
	classID    string
	instanceID string
	partition  Partition
}

type stateSubscriber struct {
	ch   chan map[string]any
	done chan struct{}
	once sync.Once
}

func (s *stateSubscriber) cancel() {
	s.once.Do(func() { close(s.done) })
}

// StateChannel is one (object, partition) realtime channel. However many
// application subscribers attach, at most one underlying push listener is
// ever opened; updates fan out to every subscriber in emission order.
type StateChannel struct {
	key     channelKey
	manager *realtimeManager

	mu     sync.Mutex
	nextID int
	subs   map[int]*stateSubscriber
	watch  PushSubscription
	closed bool
}

// Subscribe attaches a consumer, opening the underlying push listener on
// first use. The returned stream delivers every update in order and is
// closed when the object is released; the cancel func only detaches this
// subscriber, it does not close the shared listener.
func (c *StateChannel) Subscribe(ctx context.Context, buffer int) (<-chan map[string]any, func(), error) {
	if buffer < 1 {
		buffer = 16
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrChannelClosed
	}

	if c.watch == nil {
		watch, err := c.manager.openWatch(ctx, c.key)
		if err != nil {
			return nil, nil, err
		}
		c.watch = watch
		go c.pump(watch)
	}

	id := c.nextID
	c.nextID++
	sub := &stateSubscriber{
		ch:   make(chan map[string]any, buffer),
		done: make(chan struct{}),
	}
	c.subs[id] = sub

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if current, ok := c.subs[id]; ok && current == sub {
			delete(c.subs, id)
		}
		sub.cancel()
	}
	return sub.ch, cancel, nil
}

// pump forwards push updates to subscribers for the lifetime of the
// underlying listener, then completes every remaining subscriber stream.
// All sends and closes of subscriber channels happen here, so teardown can
// never race a delivery.
func (c *StateChannel) pump(watch PushSubscription) {
	for update := range watch.Updates() {
		c.deliver(stripReserved(update))
	}
	c.complete()
}

func (c *StateChannel) deliver(update map[string]any) {
	c.mu.Lock()
	subscribers := make([]*stateSubscriber, 0, len(c.subs))
	for _, sub := range c.subs {
		subscribers = append(subscribers, sub)
	}
	c.mu.Unlock()

	for _, sub := range subscribers {
		select {
		case sub.ch <- update:
		case <-sub.done:
		}
	}
}

func (c *StateChannel) complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub.ch)
	}
}

// close tears the channel down: the underlying listener is closed exactly
// once and the pump completes subscriber streams as it drains. A channel
// that never opened a listener just stops accepting subscribers.
func (c *StateChannel) close() {
	c.mu.Lock()
	watch := c.watch
	c.watch = nil
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	if alreadyClosed || watch == nil {
		return
	}
	if err := watch.Close(); err != nil {
		c.manager.logger.Debug("push listener close failed for %s/%s/%s: %v",
			c.key.classID, c.key.instanceID, c.key.partition, err)
	}
}

func stripReserved(update map[string]any) map[string]any {
	cleaned := make(map[string]any, len(update))
	for key, value := range update {
		if strings.HasPrefix(key, reservedFieldPrefix) {
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}

// realtimeManager tracks every open state channel, keyed by the structured
// channel key, and derives push document paths from the current session.
type realtimeManager struct {
	push      PushProvider
	tokens    credentialSource
	projectID string
	logger    Logger

	mu       sync.Mutex
	channels map[channelKey]*StateChannel
}

func newRealtimeManager(push PushProvider, tokens credentialSource, projectID string, logger Logger) *realtimeManager {
	return &realtimeManager{
		push:      push,
		tokens:    tokens,
		projectID: projectID,
		logger:    logger,
		channels:  map[channelKey]*StateChannel{},
	}
}

// channel returns the StateChannel for a key, creating it on first use.
// Find-or-create under the lock keeps a duplicate-open race from wiring two
// channels for one key.
func (m *realtimeManager) channel(classID, instanceID string, partition Partition) *StateChannel {
	key := channelKey{classID: classID, instanceID: instanceID, partition: partition}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.channels[key]; ok {
		return existing
	}
	created := &StateChannel{
		key:     key,
		manager: m,
		subs:    map[int]*stateSubscriber{},
	}
	m.channels[key] = created
	return created
}

// openWatch opens the single underlying push listener for a key. Role and
// user partitions address the caller's identity and subject documents, not
// the instance, so they require a live session.
func (m *realtimeManager) openWatch(ctx context.Context, key channelKey) (PushSubscription, error) {
	if m.push == nil {
		return nil, ErrChannelClosed
	}

	docID := key.instanceID
	if key.partition != PartitionPublic {
		cred, err := m.tokens.GetValidCredential(ctx)
		if err != nil {
			return nil, err
		}
		if cred == nil {
			return nil, ErrNotSignedIn
		}
		switch key.partition {
		case PartitionRole:
			docID = cred.Identity()
		case PartitionUser:
			docID = cred.Subject()
		}
	}

	path := "/projects/" + m.projectID +
		"/classes/" + key.classID +
		"/instances/" + docID +
		"/" + string(key.partition)
	return m.push.Watch(ctx, path)
}

// closeObject closes every partition channel of one object together.
// Partial per-partition teardown is deliberately not offered: listeners for
// an object live and die as a unit so the reopening cost stays predictable.
func (m *realtimeManager) closeObject(classID, instanceID string) {
	for _, partition := range allPartitions {
		key := channelKey{classID: classID, instanceID: instanceID, partition: partition}
		m.mu.Lock()
		channel, ok := m.channels[key]
		if ok {
			delete(m.channels, key)
		}
		m.mu.Unlock()
		if ok {
			channel.close()
		}
	}
}

// closeAll tears down every open channel.
func (m *realtimeManager) closeAll() {
	m.mu.Lock()
	open := make([]*StateChannel, 0, len(m.channels))
	for key, channel := range m.channels {
		open = append(open, channel)
		delete(m.channels, key)
	}
	m.mu.Unlock()

	for _, channel := range open {
		channel.close()
	}
}
