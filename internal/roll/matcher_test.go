package roll

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/session"
	"rollcall/internal/store"
)

var testTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func testDescriptor() *session.Descriptor {
	return &session.Descriptor{
		ClassGroups: []string{"A", "B"},
		Subject:     "Math",
		Room:        "101",
		Type:        session.TypeLecture,
		IsExtra:     false,
		Date:        "2024-05-01",
		SessionID:   "s-1",
		Active:      true,
	}
}

func checkInDoc(overrides map[string]any) store.Document {
	doc := store.Document{
		"rollNumber": "1",
		"group":      "A",
		"timestamp":  testTime,
		"date":       "2024-05-01",
		"subject":    "Math",
		"type":       "lect",
		"isExtra":    false,
		"deviceRoom": "101A",
		"present":    true,
	}
	for k, v := range overrides {
		doc[k] = v
	}
	return doc
}

func newTestMatcher(docs ...store.Document) *Matcher {
	mem := store.NewMemory()
	collection := CollectionFor(testTime)
	for i, doc := range docs {
		if err := mem.Set(context.Background(), collection, string(rune('a'+i)), doc); err != nil {
			panic(err)
		}
	}
	m := NewMatcher(mem)
	m.now = func() time.Time { return testTime }
	return m
}

func TestCollectionFor(t *testing.T) {
	if got := CollectionFor(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)); got != "attendance_2024_05" {
		t.Fatalf("expected attendance_2024_05, got %s", got)
	}
	if got := CollectionFor(time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)); got != "attendance_2023_12" {
		t.Fatalf("expected attendance_2023_12, got %s", got)
	}
}

func TestRollMatchesAllClauses(t *testing.T) {
	m := newTestMatcher(checkInDoc(nil))
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].RollNumber != "1" || entries[0].ClassGroup != "A" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestRollPredicateClauses(t *testing.T) {
	cases := map[string]map[string]any{
		"date mismatch":        {"date": "2024-05-02"},
		"subject mismatch":     {"subject": "Physics"},
		"type mismatch":        {"type": "lab"},
		"group not in session": {"group": "C"},
		"extra mismatch":       {"isExtra": true},
		"room not a prefix":    {"deviceRoom": "102"},
		"empty device room":    {"deviceRoom": ""},
	}
	for name, overrides := range cases {
		m := newTestMatcher(checkInDoc(overrides))
		entries, err := m.Roll(context.Background(), testDescriptor())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if len(entries) != 0 {
			t.Fatalf("%s: expected no entries, got %+v", name, entries)
		}
	}
}

func TestRollRoomPrefixNotEquality(t *testing.T) {
	m := newTestMatcher(checkInDoc(map[string]any{"deviceRoom": "101A"}))
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected suffix-qualified room to match, got %d entries", len(entries))
	}
}

func TestRollSkipsMalformedRecords(t *testing.T) {
	malformed := []store.Document{
		checkInDoc(map[string]any{"rollNumber": true}),
		checkInDoc(map[string]any{"rollNumber": 1.5}),
		checkInDoc(map[string]any{"isExtra": "yes"}),
		checkInDoc(map[string]any{"group": nil}),
		checkInDoc(map[string]any{"timestamp": 12345}),
		checkInDoc(map[string]any{"date": nil}),
		checkInDoc(map[string]any{"subject": 7}),
		checkInDoc(map[string]any{"type": nil}),
	}
	docs := append(malformed, checkInDoc(map[string]any{"rollNumber": "9"}))
	m := newTestMatcher(docs...)
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].RollNumber != "9" {
		t.Fatalf("expected only the valid record, got %+v", entries)
	}
}

func TestRollNormalizesNumericOrigins(t *testing.T) {
	docs := []store.Document{
		checkInDoc(map[string]any{"rollNumber": 7}),
		checkInDoc(map[string]any{"rollNumber": int64(8)}),
		checkInDoc(map[string]any{"rollNumber": float64(9), "isExtra": float64(0)}),
		checkInDoc(map[string]any{"rollNumber": "10", "isExtra": 0}),
	}
	m := newTestMatcher(docs...)
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %+v", entries)
	}
	want := []string{"10", "7", "8", "9"}
	for i, e := range entries {
		if e.RollNumber != want[i] {
			t.Fatalf("expected roll %s at %d, got %s", want[i], i, e.RollNumber)
		}
	}
}

func TestRollSortsLexicographically(t *testing.T) {
	docs := []store.Document{
		checkInDoc(map[string]any{"rollNumber": "30"}),
		checkInDoc(map[string]any{"rollNumber": "4"}),
		checkInDoc(map[string]any{"rollNumber": "100"}),
		checkInDoc(map[string]any{"rollNumber": "21"}),
	}
	m := newTestMatcher(docs...)
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"100", "21", "30", "4"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.RollNumber != want[i] {
			t.Fatalf("expected %v, got %+v", want, entries)
		}
	}
}

func TestRollEndToEndScenario(t *testing.T) {
	docs := []store.Document{
		checkInDoc(map[string]any{"rollNumber": "1", "group": "A", "deviceRoom": "101A"}),
		checkInDoc(map[string]any{"rollNumber": "2", "group": "A", "date": "2024-05-02"}),
		checkInDoc(map[string]any{"rollNumber": "3", "group": "B", "deviceRoom": "102"}),
	}
	m := newTestMatcher(docs...)
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].RollNumber != "1" {
		t.Fatalf("expected roll [1], got %+v", entries)
	}
}

func TestRollIgnoresAbsentRecords(t *testing.T) {
	m := newTestMatcher(checkInDoc(map[string]any{"present": false}))
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries for present=false, got %+v", entries)
	}
}

type failingStore struct {
	store.Store
}

func (f failingStore) QueryEq(context.Context, string, string, any) ([]store.Document, error) {
	return nil, &store.TransportError{Op: "query", Collection: "attendance", Err: errors.New("down")}
}

func TestRollSurfacesTransportError(t *testing.T) {
	m := NewMatcher(failingStore{store.NewMemory()})
	m.now = func() time.Time { return testTime }
	_, err := m.Roll(context.Background(), testDescriptor())
	var transport *store.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRollReadsCurrentMonthCollection(t *testing.T) {
	// The session's own month must not matter: records live in the
	// processing month's collection.
	mem := store.NewMemory()
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	doc := checkInDoc(nil)
	if err := mem.Set(context.Background(), CollectionFor(now), "x", doc); err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(mem)
	m.now = func() time.Time { return now }

	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected May session to read the June collection, got %+v", entries)
	}
}

func TestRollAcceptsRFC3339Timestamps(t *testing.T) {
	m := newTestMatcher(checkInDoc(map[string]any{"timestamp": testTime.Format(time.RFC3339)}))
	entries, err := m.Roll(context.Background(), testDescriptor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected RFC3339 timestamp to be accepted, got %+v", entries)
	}
}

func TestClockTime(t *testing.T) {
	ts := testTime.Format(timestampLayout)
	if got := ClockTime(ts); got != "9:30 AM" {
		t.Fatalf("expected 9:30 AM, got %s", got)
	}
	if got := ClockTime("2024-05-01 14:05:00"); got != "2:05 PM" {
		t.Fatalf("expected 2:05 PM, got %s", got)
	}
	if got := ClockTime("garbage"); got != "Time not available" {
		t.Fatalf("expected fallback, got %s", got)
	}
}
