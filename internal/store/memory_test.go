package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "c", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc := Document{"name": "Math", "active": true}
	if err := m.Set(ctx, "c", "x", doc); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := m.Get(ctx, "c", "x")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got["name"] != "Math" || got["active"] != true {
		t.Fatalf("unexpected document %v", got)
	}

	// returned documents are copies
	got["name"] = "Physics"
	again, _ := m.Get(ctx, "c", "x")
	if again["name"] != "Math" {
		t.Fatal("expected stored document to be isolated from callers")
	}
}

func TestMemoryUpdateSetsFields(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, "c", "x", Document{"isActive": true, "room": "101"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Update(ctx, "c", "x", Document{"isActive": false}); err != nil {
		t.Fatal(err)
	}
	doc, _ := m.Get(ctx, "c", "x")
	if doc["isActive"] != false || doc["room"] != "101" {
		t.Fatalf("unexpected document after update: %v", doc)
	}
}

func TestMemoryIncrement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	deltas := map[string]int64{"A.lect": 1}
	zeros := []string{"A.lab", "A.tut"}
	if err := m.Increment(ctx, "subjects", "Math", deltas, zeros); err != nil {
		t.Fatal(err)
	}
	doc, _ := m.Get(ctx, "subjects", "Math")
	a := doc["A"].(map[string]any)
	if a["lect"] != int64(1) || a["lab"] != int64(0) || a["tut"] != int64(0) {
		t.Fatalf("unexpected counters %v", a)
	}

	// zeroInit only applies on creation
	if err := m.Increment(ctx, "subjects", "Math", map[string]int64{"B.lect": 1}, []string{"B.lab"}); err != nil {
		t.Fatal(err)
	}
	doc, _ = m.Get(ctx, "subjects", "Math")
	b := doc["B"].(map[string]any)
	if b["lect"] != int64(1) {
		t.Fatalf("unexpected counters %v", b)
	}
	if _, ok := b["lab"]; ok {
		t.Fatal("zeroInit must not apply to existing documents")
	}

	if err := m.Increment(ctx, "subjects", "Math", map[string]int64{"A.lect": 1}, nil); err != nil {
		t.Fatal(err)
	}
	doc, _ = m.Get(ctx, "subjects", "Math")
	if doc["A"].(map[string]any)["lect"] != int64(2) {
		t.Fatalf("unexpected counters %v", doc["A"])
	}
}

func TestMemoryQueryEq(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "c", "1", Document{"present": true, "roll": "1"})
	_ = m.Set(ctx, "c", "2", Document{"present": false, "roll": "2"})
	_ = m.Set(ctx, "c", "3", Document{"present": true, "roll": "3"})

	docs, err := m.QueryEq(ctx, "c", "present", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	docs, err = m.QueryEq(ctx, "other", "present", true)
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected empty result for unknown collection, got %v (%v)", docs, err)
	}
}
