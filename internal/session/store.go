// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe tracker of live members per session token.

package session

import (
	"hash/fnv"
	"sync"
)

// Tracker maps session tokens to the set of live members holding them.
// Members are usually connections; the tracker only compares them.
type Tracker[T comparable] struct {
	shards []*shard[T]
	mask   uint32
}

type shard[T comparable] struct {
	mu       sync.RWMutex
	sessions map[string]map[T]struct{}
}

// NewTracker constructs a tracker with shardCount shards, rounded up to a power of two.
func NewTracker[T comparable](shardCount int) *Tracker[T] {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard[T], m)
	for i := range shards {
		shards[i] = &shard[T]{sessions: make(map[string]map[T]struct{})}
	}
	return &Tracker[T]{shards: shards, mask: m - 1}
}

func (t *Tracker[T]) shard(token string) *shard[T] {
	return t.shards[fnv32(token)&t.mask]
}

// Join adds member under token.
func (t *Tracker[T]) Join(token string, member T) {
	sh := t.shard(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set, ok := sh.sessions[token]
	if !ok {
		set = make(map[T]struct{})
		sh.sessions[token] = set
	}
	set[member] = struct{}{}
}

// Leave removes member from token; the session disappears with its last member.
func (t *Tracker[T]) Leave(token string, member T) {
	sh := t.shard(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set, ok := sh.sessions[token]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(sh.sessions, token)
	}
}

// Members returns a snapshot of the members holding token.
func (t *Tracker[T]) Members(token string) []T {
	sh := t.shard(token)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	set := sh.sessions[token]
	out := make([]T, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// Len returns the number of distinct live sessions.
func (t *Tracker[T]) Len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
