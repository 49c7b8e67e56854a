// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package events

import "sync"

// A memo caches the result of load for each key. Concurrent lookups of the
// same key share a single call to load, and errors are cached too.
type memo[K comparable, V any] struct {
	load func(K) (V, error)

	mu sync.Mutex
	m  map[K]func() (V, error)
}

func newMemo[K comparable, V any](load func(K) (V, error)) *memo[K, V] {
	return &memo[K, V]{load: load}
}

func (c *memo[K, V]) get(key K) (V, error) {
	c.mu.Lock()
	f, ok := c.m[key]
	if !ok {
		if c.m == nil {
			c.m = make(map[K]func() (V, error))
		}
		f = sync.OnceValues(func() (V, error) { return c.load(key) })
		c.m[key] = f
	}
	c.mu.Unlock()
	return f()
}
