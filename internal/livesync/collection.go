package livesync

import (
	"encoding/json"
	"fmt"

	"weatherdash/internal/changefeed"
)

// Collection is an ordered set of records keyed by identity. It is not safe
// for concurrent use; a subscription owns exactly one.
type Collection[T any] struct {
	key   func(T) string
	index map[string]int
	items []T
}

// NewCollection loads items, keeping the last of any duplicate keys in the
// position of the first.
func NewCollection[T any](key func(T) string, items []T) *Collection[T] {
	c := &Collection[T]{key: key, index: make(map[string]int, len(items))}
	for _, item := range items {
		c.upsert(item)
	}
	return c
}

func (c *Collection[T]) Len() int { return len(c.items) }

// Snapshot returns a copy the caller may keep.
func (c *Collection[T]) Snapshot() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Get(key string) (T, bool) {
	i, ok := c.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// Apply merges one change. Creates and updates upsert by key, so replaying a
// change already reflected in the list is harmless. Deleting an unknown key
// is a no-op. It reports whether the collection changed.
func (c *Collection[T]) Apply(ch changefeed.Change) (bool, error) {
	switch ch.Op {
	case changefeed.OpCreate, changefeed.OpUpdate:
		var item T
		if err := json.Unmarshal(ch.Record, &item); err != nil {
			return false, fmt.Errorf("decode %s record %s: %w", ch.Model, ch.Key, err)
		}
		c.upsert(item)
		return true, nil
	case changefeed.OpDelete:
		key := ch.Key
		if len(ch.Record) > 0 && string(ch.Record) != "null" {
			var item T
			if err := json.Unmarshal(ch.Record, &item); err == nil {
				key = c.key(item)
			}
		}
		return c.remove(key), nil
	default:
		return false, fmt.Errorf("unknown op %q", ch.Op)
	}
}

func (c *Collection[T]) upsert(item T) {
	k := c.key(item)
	if i, ok := c.index[k]; ok {
		c.items[i] = item
		return
	}
	c.index[k] = len(c.items)
	c.items = append(c.items, item)
}

func (c *Collection[T]) remove(key string) bool {
	i, ok := c.index[key]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, key)
	for j := i; j < len(c.items); j++ {
		c.index[c.key(c.items[j])] = j
	}
	return true
}
