package workflow

import (
	"sync"

	"agentgate/internal/domain"
)

// MemoryCheckpointer keeps conversation state in process memory with one
// mutex per thread, so concurrent cycles on the same thread serialize while
// different threads proceed independently.
type MemoryCheckpointer struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]State
}

func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{
		locks:  map[string]*sync.Mutex{},
		states: map[string]State{},
	}
}

func (c *MemoryCheckpointer) Lock(threadID string) func() {
	c.mu.Lock()
	lock, ok := c.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[threadID] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (c *MemoryCheckpointer) Load(threadID string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[threadID]
	if !ok {
		return State{ThreadID: threadID}, nil
	}
	return cloneState(state), nil
}

func (c *MemoryCheckpointer) Save(threadID string, state State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[threadID] = cloneState(state)
	return nil
}

func cloneState(state State) State {
	out := state
	out.Messages = append([]domain.Message(nil), state.Messages...)
	out.Proverbs = append([]string(nil), state.Proverbs...)
	return out
}
