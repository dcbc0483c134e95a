// File: internal/router/router.go
// Package router matches requests to the rules bound on one listener.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A rule filters on host, origin and path. An empty filter is a wildcard; any
// other filter needs an exactly equal request value. Rules are prepended, so the
// most recently registered matching rule wins.

package router

import (
	"sync"

	"github.com/momentics/wsgate/api"
)

// Rule binds a (host, origin, path) filter to a handler.
type Rule[H any] struct {
	Host    string
	Origin  string
	Path    string
	Handler H
}

// Matches reports whether the request attributes satisfy all three filters.
func (r *Rule[H]) Matches(host, origin, path string) bool {
	return match(r.Host, host) && match(r.Origin, origin) && match(r.Path, path)
}

func (r *Rule[H]) sameFilters(o *Rule[H]) bool {
	return r.Host == o.Host && r.Origin == o.Origin && r.Path == o.Path
}

func match(filter, value string) bool {
	return filter == "" || filter == value
}

// Router holds rules newest first. Rules are immutable once added.
type Router[H any] struct {
	mu    sync.RWMutex
	rules []*Rule[H]
}

// New returns an empty router.
func New[H any]() *Router[H] {
	return &Router[H]{}
}

// Add registers rule ahead of all existing ones. A rule with the same three
// filters as an existing one is rejected with api.ErrAlreadyBound.
func (rt *Router[H]) Add(rule Rule[H]) (*Rule[H], error) {
	r := &rule
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, old := range rt.rules {
		if old.sameFilters(r) {
			return nil, api.ErrAlreadyBound
		}
	}
	rules := make([]*Rule[H], 0, len(rt.rules)+1)
	rules = append(rules, r)
	rt.rules = append(rules, rt.rules...)
	return r, nil
}

// Resolve returns the first matching rule, or nil.
func (rt *Router[H]) Resolve(host, origin, path string) *Rule[H] {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, r := range rt.rules {
		if r.Matches(host, origin, path) {
			return r
		}
	}
	return nil
}

// Len returns the number of registered rules.
func (rt *Router[H]) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.rules)
}
