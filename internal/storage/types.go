package storage

import (
	"fmt"
	"sort"
	"time"
)

// Entity is a row of the entity registry.
type Entity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SessionRecord is a persisted, completed session.
type SessionRecord struct {
	EntityID  int64     `json:"app_id"`
	Entity    string    `json:"app,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Seconds   int64     `json:"seconds"`
}

// EntityTotal is one row of an aggregate sum-by-entity query.
type EntityTotal struct {
	Name         string `json:"name"`
	TotalSeconds int64  `json:"total_seconds"`
}

// Validate checks the invariants every backend enforces before persisting.
func (r SessionRecord) Validate() error {
	if r.EntityID <= 0 {
		return fmt.Errorf("%w: missing entity id", ErrInvalidSession)
	}
	if r.Seconds < 0 {
		return fmt.Errorf("%w: negative duration %ds", ErrInvalidSession, r.Seconds)
	}
	if r.EndTime.Before(r.StartTime) && r.Seconds != 0 {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidSession,
			r.EndTime.Format(time.RFC3339), r.StartTime.Format(time.RFC3339))
	}
	return nil
}

// SortByStart orders records by start time, keeping insertion order for ties.
func SortByStart(records []SessionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})
}
