package metadata

import (
	"context"
	"sync"

	"github.com/viant/docvec"
	"github.com/viant/docvec/index"
)

// Memory is an in-process metadata index.
type Memory struct {
	mu       sync.RWMutex
	fields   []string
	postings map[string]map[string]index.Set // field -> value key -> ids
	reverse  map[string]map[string]string    // id -> field -> value key
}

// NewMemory creates an index with the given fields registered.
func NewMemory(fields ...string) *Memory {
	m := &Memory{
		postings: make(map[string]map[string]index.Set),
		reverse:  make(map[string]map[string]string),
	}
	for _, f := range fields {
		m.register(f)
	}
	return m
}

func (m *Memory) Register(_ context.Context, field string) error {
	m.mu.Lock()
	m.register(field)
	m.mu.Unlock()
	return nil
}

func (m *Memory) register(field string) {
	if _, ok := m.postings[field]; ok {
		return
	}
	m.postings[field] = make(map[string]index.Set)
	m.fields = append(m.fields, field)
}

func (m *Memory) Fields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.fields...)
}

func (m *Memory) Put(_ context.Context, id string, payload docvec.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(id)
	entries := make(map[string]string)
	for field, values := range m.postings {
		v, ok := payload[field]
		if !ok {
			continue
		}
		key, ok := ValueKey(v)
		if !ok {
			continue
		}
		ids, ok := values[key]
		if !ok {
			ids = make(index.Set)
			values[key] = ids
		}
		ids[id] = struct{}{}
		entries[field] = key
	}
	if len(entries) > 0 {
		m.reverse[id] = entries
	}
	return nil
}

func (m *Memory) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	m.remove(id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) remove(id string) {
	for field, key := range m.reverse[id] {
		ids := m.postings[field][key]
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.postings[field], key)
		}
	}
	delete(m.reverse, id)
}

func (m *Memory) Evaluate(_ context.Context, filter docvec.Filter) (index.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys, err := FilterKeys(filter, func(f string) bool { _, ok := m.postings[f]; return ok })
	if err != nil {
		return nil, err
	}
	var out index.Set
	for field, key := range keys {
		ids := m.postings[field][key]
		if len(ids) == 0 {
			return index.NewSet(), nil
		}
		if out == nil {
			out = make(index.Set, len(ids))
			for id := range ids {
				out[id] = struct{}{}
			}
			continue
		}
		out = index.Intersect(out, ids)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

var _ Index = (*Memory)(nil)
