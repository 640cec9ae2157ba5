package cloudobjects

import "sync"

// statusBroadcaster fans session state transitions out to subscribers.
// Activation is an explicit step (part of Client.Initialize); subscribing
// never bootstraps the session as a side effect.
//
// Publishing never blocks on a slow consumer: each subscriber has a
// buffered channel and a full buffer drops the oldest pending value in
// favor of the latest. Session state is a level signal, not an event log,
// so the newest value always wins.
type statusBroadcaster struct {
	logger Logger

	mu      sync.Mutex
	active  bool
	closed  bool
	nextID  int
	subs    map[int]chan SessionState
	current SessionState
}

func newStatusBroadcaster(logger Logger) *statusBroadcaster {
	return &statusBroadcaster{
		logger: logger,
		subs:   map[int]chan SessionState{},
	}
}

// activate sets the initial state and opens the broadcaster for
// subscriptions. Idempotent.
func (b *statusBroadcaster) activate(initial SessionState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active || b.closed {
		return
	}
	b.active = true
	b.current = initial
}

// Current returns the most recently published state.
func (b *statusBroadcaster) Current() (SessionState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return SessionState{}, ErrNotInitialized
	}
	return b.current, nil
}

// Subscribe registers a consumer. The current state is delivered first,
// then every subsequent transition. The returned cancel func detaches the
// subscriber and closes its channel.
func (b *statusBroadcaster) Subscribe(buffer int) (<-chan SessionState, func(), error) {
	if buffer < 1 {
		buffer = 4
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil, nil, ErrNotInitialized
	}
	if b.closed {
		return nil, nil, ErrChannelClosed
	}

	id := b.nextID
	b.nextID++
	ch := make(chan SessionState, buffer)
	ch <- b.current
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Publish announces a transition to every live subscriber. Illegal
// transitions are logged and dropped; equal consecutive sign-ins for the
// same subject still flow through so token refreshes stay observable.
func (b *statusBroadcaster) Publish(state SessionState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active || b.closed {
		return
	}
	if !canTransition(b.current.Status, state.Status) {
		b.logger.Error("illegal session transition from %s to %s dropped",
			b.current.Status, state.Status)
		return
	}

	b.current = state
	for _, sub := range b.subs {
		for {
			select {
			case sub <- state:
			default:
				// full buffer: drop the oldest pending value
				select {
				case <-sub:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close completes every subscriber channel and rejects further use.
func (b *statusBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
