package store

import (
	"slices"
	"strings"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Subscribers receive accepted updates via buffered channels. Sends are
// non-blocking; a full subscriber misses the update instead of stalling
// the poll pipeline.
type MemoryStore struct {
	mu          sync.RWMutex
	boards      map[string]BoardState
	subscribers map[chan BoardState]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boards:      make(map[string]BoardState),
		subscribers: make(map[chan BoardState]struct{}),
	}
}

// Update stores state unless a newer generation already owns the board.
//
// Equal generations are accepted so one lifecycle can publish several
// updates (submitting, polling, completed).
func (m *MemoryStore) Update(state BoardState) bool {
	m.mu.Lock()
	if current, ok := m.boards[state.Board]; ok && state.Generation < current.Generation {
		m.mu.Unlock()
		return false
	}
	state.Strategies = slices.Clone(state.Strategies)
	m.boards[state.Board] = state
	m.mu.Unlock()

	m.notifySubscribers(state)
	return true
}

// Get returns the stored state of board.
func (m *MemoryStore) Get(board string) (BoardState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.boards[board]
	if ok {
		state.Strategies = slices.Clone(state.Strategies)
	}
	return state, ok
}

// GetAll returns a copy of every stored board, sorted by board name.
func (m *MemoryStore) GetAll() []BoardState {
	m.mu.RLock()
	states := make([]BoardState, 0, len(m.boards))
	for _, s := range m.boards {
		s.Strategies = slices.Clone(s.Strategies)
		states = append(states, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(states, func(a, b BoardState) int {
		return strings.Compare(a.Board, b.Board)
	})
	return states
}

// Subscribe creates a subscription with a buffer of 100 updates.
func (m *MemoryStore) Subscribe() <-chan BoardState {
	ch := make(chan BoardState, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan BoardState) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(state BoardState) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- state:
		default:
			// slow subscriber, drop
		}
	}
}
