package session

import (
	"log/slog"
	"sync"
)

// Machine owns the live session State. All mutations go through Apply;
// readers get copies.
type Machine struct {
	logger *slog.Logger
	subs   map[uint64]chan State
	state  State
	nextID uint64
	mu     sync.RWMutex
	closed bool
}

// NewMachine creates a machine in the initial state: not initialized, not
// authenticated, not loading, no user.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		logger: logger,
		subs:   make(map[uint64]chan State),
	}
}

// Snapshot returns a copy of the current state
func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyState(m.state)
}

// AccessToken returns the live access token ("" if none)
func (m *Machine) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Tokens.AccessToken
}

// Apply runs ev through Reduce, publishes the result to subscribers and
// returns it.
func (m *Machine) Apply(ev Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = Reduce(m.state, ev)

	if prev.IsAuthenticated != m.state.IsAuthenticated {
		m.logger.Info("session authentication changed", transitionAttrs(m.state, ev)...)
	}

	if !m.closed {
		for _, ch := range m.subs {
			publish(ch, copyState(m.state))
		}
	}
	return copyState(m.state)
}

// transitionAttrs описывает событие: op и phase есть только у lifecycle
func transitionAttrs(s State, ev Event) []any {
	attrs := []any{slog.Bool("authenticated", s.IsAuthenticated)}
	if ev.Kind == KindLifecycle {
		return append(attrs, slog.String("op", string(ev.Op)), slog.String("phase", ev.Phase.String()))
	}
	return append(attrs, slog.String("kind", ev.Kind.String()))
}

// Subscribe returns a channel receiving the state after every transition.
// Slow readers only see the latest state. Call cancel to unsubscribe.
func (m *Machine) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close closes all subscriber channels. State stays readable.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

// publish кладёт snap в буфер, вытесняя непрочитанное состояние
func publish(ch chan State, snap State) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func copyState(s State) State {
	s.User = s.User.Clone()
	return s
}
