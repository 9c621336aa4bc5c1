package models

// DigestType selects the window policy for a digest step.
type DigestType string

const (
	DigestRegular DigestType = "regular"
	DigestBackoff DigestType = "backoff"
	DigestTimed   DigestType = "timed"
)

// DigestUnit is the time unit for regular and backoff windows.
type DigestUnit string

const (
	UnitSeconds DigestUnit = "seconds"
	UnitMinutes DigestUnit = "minutes"
	UnitHours   DigestUnit = "hours"
	UnitDays    DigestUnit = "days"
	UnitWeeks   DigestUnit = "weeks"
)

// TimedConfig describes a calendar boundary for timed digests. Either Cron is
// set verbatim or it is derived from the at-time / weekday / month-day fields.
type TimedConfig struct {
	AtTime    string   `json:"at_time,omitempty"` // "HH:MM"
	WeekDays  []string `json:"week_days,omitempty"`
	MonthDays []int    `json:"month_days,omitempty"`
	Cron      string   `json:"cron,omitempty"`
}

// DigestMetadata configures a digest (or delay) step and, on jobs produced by
// a window flush, carries the buffered events.
type DigestMetadata struct {
	Type          DigestType   `json:"type,omitempty"`
	Amount        int          `json:"amount,omitempty"`
	Unit          DigestUnit   `json:"unit,omitempty"`
	DigestKey     string       `json:"digest_key,omitempty"` // payload field the window key is derived from
	BackoffAmount int          `json:"backoff_amount,omitempty"`
	BackoffUnit   DigestUnit   `json:"backoff_unit,omitempty"`
	Timed         *TimedConfig `json:"timed,omitempty"`

	// Populated only on post-digest jobs.
	Events []map[string]any `json:"events,omitempty"`
}
