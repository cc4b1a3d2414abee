package usage

import (
	"time"

	"github.com/goodtune/apptime/internal/storage"
)

// Session is one completed running interval of a tracked app.
type Session struct {
	Entity   string
	Start    time.Time
	End      time.Time
	Duration time.Duration

	// ClockAnomaly is set when End preceded Start and Duration was clamped to zero.
	ClockAnomaly bool
}

// Seconds returns the whole elapsed seconds of the session. It uses the
// total elapsed time, so sessions longer than a day are not truncated.
func (s Session) Seconds() int64 {
	return int64(s.Duration / time.Second)
}

// Record converts the session into a session log row for the given app id.
func (s Session) Record(entityID int64) storage.SessionRecord {
	return storage.SessionRecord{
		EntityID:  entityID,
		Entity:    s.Entity,
		StartTime: s.Start,
		EndTime:   s.End,
		Seconds:   s.Seconds(),
	}
}
