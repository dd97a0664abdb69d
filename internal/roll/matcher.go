package roll

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rollcall/internal/session"
	"rollcall/internal/store"
)

// timestampLayout mirrors the long-form instant the mobile clients display.
const timestampLayout = "January 2, 2006 at 3:04:05 PM MST"

// CollectionFor derives the check-in collection name from the given time.
// Reconciliation always reads the collection for the current processing
// month, never the session's own month.
func CollectionFor(t time.Time) string {
	return t.Format("attendance_2006_01")
}

// Entry is one verified line of the attendance roll.
type Entry struct {
	RollNumber string `json:"rollNumber"`
	ClassGroup string `json:"group"`
	Timestamp  string `json:"timestamp"`
}

// record is a check-in after field normalization.
type record struct {
	RollNumber string
	Group      string
	Timestamp  time.Time
	Date       string
	Subject    string
	Type       string
	IsExtra    bool
	DeviceRoom string
}

// Matcher reconciles raw check-ins against a session descriptor.
type Matcher struct {
	store store.Store
	now   func() time.Time
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(st store.Store) *Matcher {
	return &Matcher{store: st, now: time.Now}
}

// Roll queries the current month's present check-ins, drops malformed
// records, keeps the ones matching the descriptor and returns them sorted
// ascending by roll number under plain string comparison.
func (m *Matcher) Roll(ctx context.Context, d *session.Descriptor) ([]Entry, error) {
	docs, err := m.store.QueryEq(ctx, CollectionFor(m.now()), "present", true)
	if err != nil {
		return nil, fmt.Errorf("roll: %w", err)
	}

	groups := make(map[string]bool, len(d.ClassGroups))
	for _, cg := range d.ClassGroups {
		groups[cg] = true
	}

	var entries []Entry
	for _, doc := range docs {
		rec, ok := parseRecord(doc)
		if !ok {
			continue
		}
		if !matches(rec, d, groups) {
			continue
		}
		entries = append(entries, Entry{
			RollNumber: rec.RollNumber,
			ClassGroup: rec.Group,
			Timestamp:  rec.Timestamp.Format(timestampLayout),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RollNumber < entries[j].RollNumber
	})
	return entries, nil
}

// matches applies the six-clause predicate. The room clause is a prefix
// check: the record's device room must start with the session room, so a
// device in "101A" counts toward a session in "101".
func matches(rec record, d *session.Descriptor, groups map[string]bool) bool {
	return rec.Date == d.Date &&
		rec.Subject == d.Subject &&
		rec.Type == string(d.Type) &&
		groups[rec.Group] &&
		rec.IsExtra == d.IsExtra &&
		rec.DeviceRoom != "" && strings.HasPrefix(rec.DeviceRoom, d.Room)
}

// parseRecord validates one raw document independently of the rest of the
// batch. A malformed record is skipped, never aborts the batch.
func parseRecord(doc store.Document) (record, bool) {
	var rec record
	var ok bool

	if rec.RollNumber, ok = rollNumberValue(doc["rollNumber"]); !ok {
		return record{}, false
	}
	if rec.Group, ok = doc["group"].(string); !ok {
		return record{}, false
	}
	if rec.Timestamp, ok = timeValue(doc["timestamp"]); !ok {
		return record{}, false
	}
	if rec.Date, ok = doc["date"].(string); !ok {
		return record{}, false
	}
	if rec.Subject, ok = doc["subject"].(string); !ok {
		return record{}, false
	}
	if rec.Type, ok = doc["type"].(string); !ok {
		return record{}, false
	}
	if rec.IsExtra, ok = extraValue(doc["isExtra"]); !ok {
		return record{}, false
	}
	rec.DeviceRoom, _ = doc["deviceRoom"].(string)
	return rec, true
}

// rollNumberValue normalizes a numeric-or-string roll number to a string.
func rollNumberValue(v any) (string, bool) {
	switch n := v.(type) {
	case string:
		return n, true
	case int:
		return fmt.Sprintf("%d", n), true
	case int32:
		return fmt.Sprintf("%d", n), true
	case int64:
		return fmt.Sprintf("%d", n), true
	case float64:
		if n != float64(int64(n)) {
			return "", false
		}
		return fmt.Sprintf("%d", int64(n)), true
	}
	return "", false
}

// extraValue accepts a bool or an integer flag where 1 means true.
func extraValue(v any) (bool, bool) {
	switch e := v.(type) {
	case bool:
		return e, true
	case int:
		return e == 1, true
	case int32:
		return e == 1, true
	case int64:
		return e == 1, true
	case float64:
		return e == 1, true
	}
	return false, false
}

// timeValue accepts a store-native instant or its RFC 3339 encoding, which
// is what the JSONB backend round-trips time values through.
func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// ClockTime condenses a formatted entry timestamp down to the wall-clock
// time shown on the roll.
func ClockTime(ts string) string {
	if t, err := time.Parse(timestampLayout, ts); err == nil {
		return t.Format("3:04 PM")
	}
	if t, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
		return t.Format("3:04 PM")
	}
	return "Time not available"
}
