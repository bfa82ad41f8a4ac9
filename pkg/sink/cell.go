/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sink

import (
	"sync"

	"github.com/clustermon/dashboard/pkg/aggregator"
)

// UpdateCallback is called with the new sequence every time the cell is stored to.
type UpdateCallback func(entries []aggregator.Entry)

// Cell holds the most recent aggregated result and notifies subscribers when
// it is replaced.  The stored sequence must be treated as immutable.
type Cell struct {
	mu        sync.RWMutex
	entries   []aggregator.Entry
	callbacks []UpdateCallback
}

// NewCell returns an empty cell.
func NewCell() *Cell {
	return &Cell{
		callbacks: make([]UpdateCallback, 0),
	}
}

// Subscribe registers a callback for future updates.
func (c *Cell) Subscribe(callback UpdateCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// Store replaces the whole sequence and notifies subscribers.
func (c *Cell) Store(entries []aggregator.Entry) {
	c.mu.Lock()
	c.entries = entries
	callbacks := append([]UpdateCallback(nil), c.callbacks...)
	c.mu.Unlock()

	for _, callback := range callbacks {
		if callback != nil {
			callback(entries)
		}
	}
}

// Load returns the current sequence, which is nil until the first Store.
func (c *Cell) Load() []aggregator.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries
}

// Loaded reports whether the cell holds any entries.
func (c *Cell) Loaded() bool {
	return len(c.Load()) > 0
}
