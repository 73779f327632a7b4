package cache

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"
)

// Memory is an in-process Store bounded by entry count with LRU eviction.
// Expired entries are dropped lazily on access and by an optional sweeper.
type Memory struct {
	maxEntries int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently used

	now func() time.Time
}

type memoryItem struct {
	key   string
	entry Entry
}

// NewMemory creates a memory store holding at most maxEntries entries.
// maxEntries <= 0 means unbounded.
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key.String()]
	if !ok {
		return Entry{}, false, nil
	}
	it := el.Value.(*memoryItem)
	if it.entry.Expired(m.now()) {
		m.remove(el)
		return Entry{}, false, nil
	}
	m.order.MoveToFront(el)
	entry := it.entry
	// hand out a copy so callers mutating the series cannot corrupt the cache
	entry.Bars = slices.Clone(entry.Bars)
	return entry, true, nil
}

func (m *Memory) Put(_ context.Context, key Key, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Bars = slices.Clone(entry.Bars)
	ks := key.String()
	if el, ok := m.items[ks]; ok {
		el.Value.(*memoryItem).entry = entry
		m.order.MoveToFront(el)
		return nil
	}
	m.items[ks] = m.order.PushFront(&memoryItem{key: ks, entry: entry})
	for m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		m.remove(m.order.Back())
	}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key.String()]; ok {
		m.remove(el)
	}
	return nil
}

// Len reports the live entry count, expired entries included until swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Sweep drops all expired entries now.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryItem).entry.Expired(now) {
			m.remove(el)
		}
		el = prev
	}
}

// StartSweeper sweeps every interval until ctx is done.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Sweep()
			}
		}
	}()
}

// remove expects m.mu held.
func (m *Memory) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(m.items, el.Value.(*memoryItem).key)
	m.order.Remove(el)
}
