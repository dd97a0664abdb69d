package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Document is a single record in a named collection. Nested maps are
// addressed with dotted paths, e.g. "CSE-A.lect".
type Document map[string]any

// ErrNotFound is returned by Get when no document has the given id.
var ErrNotFound = errors.New("document not found")

// TransportError wraps a backend failure so callers can tell a store
// round-trip problem apart from a validation problem.
type TransportError struct {
	Op         string
	Collection string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Store is a document store over named collections. Implementations are
// expected to be safe for concurrent use.
type Store interface {
	// Get fetches a document by id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set writes the full document, creating or replacing it.
	Set(ctx context.Context, collection, id string, doc Document) error
	// Update sets the given fields on an existing document.
	Update(ctx context.Context, collection, id string, fields Document) error
	// Increment atomically adds each delta to its numeric field, creating
	// the document if needed. zeroInit fields are initialized to 0 only
	// when the document is created.
	Increment(ctx context.Context, collection, id string, deltas map[string]int64, zeroInit []string) error
	// QueryEq returns all documents whose top-level field equals value.
	QueryEq(ctx context.Context, collection, field string, value any) ([]Document, error)
}

// splitPath splits a dotted field path.
func splitPath(field string) []string { return strings.Split(field, ".") }

// getPath reads a nested value; ok is false when any segment is missing.
func getPath(doc Document, field string) (any, bool) {
	parts := splitPath(field)
	cur := map[string]any(doc)
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// setPath writes a nested value, creating intermediate maps.
func setPath(doc Document, field string, value any) {
	parts := splitPath(field)
	cur := map[string]any(doc)
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}
