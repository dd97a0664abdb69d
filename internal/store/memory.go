package store

import (
	"context"
	"sync"
)

// Memory is a map-backed store for dev and testing.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]Document // collection -> id -> doc
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]Document)}
}

// Get fetches a copy of a document by id.
func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

// Set writes the full document.
func (m *Memory) Set(_ context.Context, collection, id string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collection(collection)[id] = copyDoc(doc)
	return nil
}

// Update sets fields on an existing document, creating it when absent.
func (m *Memory) Update(_ context.Context, collection, id string, fields Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	doc, ok := col[id]
	if !ok {
		doc = Document{}
		col[id] = doc
	}
	for field, value := range fields {
		setPath(doc, field, value)
	}
	return nil
}

// Increment adds the deltas to their fields under the store lock.
func (m *Memory) Increment(_ context.Context, collection, id string, deltas map[string]int64, zeroInit []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collection(collection)
	doc, ok := col[id]
	if !ok {
		doc = Document{}
		col[id] = doc
		for _, f := range zeroInit {
			setPath(doc, f, int64(0))
		}
	}
	for field, delta := range deltas {
		cur, _ := getPath(doc, field)
		setPath(doc, field, asInt64(cur)+delta)
	}
	return nil
}

// QueryEq returns copies of all documents whose field equals value.
func (m *Memory) QueryEq(_ context.Context, collection, field string, value any) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.data[collection] {
		if v, ok := doc[field]; ok && v == value {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

func (m *Memory) collection(name string) map[string]Document {
	col, ok := m.data[name]
	if !ok {
		col = make(map[string]Document)
		m.data[name] = col
	}
	return col
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func copyDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if nested, ok := v.(map[string]any); ok {
			out[k] = map[string]any(copyDoc(nested))
			continue
		}
		out[k] = v
	}
	return out
}
