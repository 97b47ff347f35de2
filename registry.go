package main

import (
	"fmt"
	"sync"
)

// DiscussionRegistry maps discussion ids to their live orchestrator instances.
// Constructed in main and injected into the handlers; entries are removed
// explicitly when a discussion reaches a terminal state so bound resources are
// released, not garbage-collected implicitly.
type DiscussionRegistry struct {
	mu          sync.RWMutex
	discussions map[string]*Discussion
}

// NewDiscussionRegistry creates an empty registry
func NewDiscussionRegistry() *DiscussionRegistry {
	return &DiscussionRegistry{
		discussions: make(map[string]*Discussion),
	}
}

// Create validates the config, builds a new Discussion, and registers it.
// Fails if a discussion with the same id already exists.
func (r *DiscussionRegistry) Create(id string, config DiscussionConfig) (*Discussion, error) {
	discussion, err := NewDiscussion(id, config)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.discussions[id]; exists {
		return nil, fmt.Errorf("discussion %s already exists", id)
	}
	r.discussions[id] = discussion
	return discussion, nil
}

// Get returns the live discussion for an id, or nil if none is registered.
func (r *DiscussionRegistry) Get(id string) *Discussion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.discussions[id]
}

// Remove drops a discussion from the registry. Safe to call for ids that were
// already removed.
func (r *DiscussionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.discussions, id)
}

// Size returns the number of live discussions
func (r *DiscussionRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.discussions)
}
