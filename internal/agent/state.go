package agent

import (
	"sync"
	"time"
)

// VaultState is a point-in-time copy of one vault's cycle state.
type VaultState struct {
	Key           string     `json:"key"`
	LastTrade     *time.Time `json:"last_trade,omitempty"`
	LastRebalance *time.Time `json:"last_rebalance,omitempty"`
	Processed     bool       `json:"processed"`
}

// State holds the cooldown timestamps and processed markers of every vault
// the agent has seen since startup. It is safe for concurrent use.
type State struct {
	mu            sync.Mutex
	lastTrade     map[string]time.Time
	lastRebalance map[string]time.Time
	processed     map[string]struct{}
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		lastTrade:     make(map[string]time.Time),
		lastRebalance: make(map[string]time.Time),
		processed:     make(map[string]struct{}),
	}
}

// LastTrade returns the time of the last successful automated trade.
func (s *State) LastTrade(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastTrade[key]
	return t, ok
}

// MarkTraded records a successful trade and marks the vault processed.
func (s *State) MarkTraded(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTrade[key] = at
	s.processed[key] = struct{}{}
}

// LastRebalance returns the time of the last rebalance check that ran.
func (s *State) LastRebalance(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRebalance[key]
	return t, ok
}

// MarkRebalanced records a rebalance.
func (s *State) MarkRebalanced(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRebalance[key] = at
}

// ClearRebalance forgets the last rebalance of key.
func (s *State) ClearRebalance(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastRebalance, key)
}

// IsProcessed reports whether key has completed an auto-trade evaluation.
func (s *State) IsProcessed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[key]
	return ok
}

// MarkProcessed marks key as evaluated.
func (s *State) MarkProcessed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[key] = struct{}{}
}

// Reset clears every timestamp and the processed marker of key.
func (s *State) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastTrade, key)
	delete(s.lastRebalance, key)
	delete(s.processed, key)
}

// Snapshot copies the state of key.
func (s *State) Snapshot(key string) VaultState {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := VaultState{Key: key}
	if t, ok := s.lastTrade[key]; ok {
		vs.LastTrade = &t
	}
	if t, ok := s.lastRebalance[key]; ok {
		vs.LastRebalance = &t
	}
	_, vs.Processed = s.processed[key]
	return vs
}
