package roll

import (
	"time"

	"rollcall/internal/store"
)

// CheckIn is a raw presence event as submitted by a student device. It is
// stored independently of sessions and only tied to one during
// reconciliation.
type CheckIn struct {
	RollNumber string    `json:"rollNumber" binding:"required"`
	Group      string    `json:"group" binding:"required"`
	Timestamp  time.Time `json:"timestamp"`
	Date       string    `json:"date"`
	Subject    string    `json:"subject" binding:"required"`
	Type       string    `json:"type" binding:"required"`
	IsExtra    bool      `json:"isExtra"`
	DeviceRoom string    `json:"deviceRoom"`
	Present    bool      `json:"present"`
}

// Normalize fills the timestamp and date when the device left them empty.
func (c *CheckIn) Normalize(now time.Time) {
	if c.Timestamp.IsZero() {
		c.Timestamp = now
	}
	if c.Date == "" {
		c.Date = c.Timestamp.Format("2006-01-02")
	}
}

// Document flattens the check-in into its stored shape.
func (c CheckIn) Document() store.Document {
	return store.Document{
		"rollNumber": c.RollNumber,
		"group":      c.Group,
		"timestamp":  c.Timestamp,
		"date":       c.Date,
		"subject":    c.Subject,
		"type":       c.Type,
		"isExtra":    c.IsExtra,
		"deviceRoom": c.DeviceRoom,
		"present":    c.Present,
	}
}
