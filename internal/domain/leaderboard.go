package domain

// TopAttendeeEntry is a single row in the top-attendees ranking
type TopAttendeeEntry struct {
	UserID              string `json:"user_id"`
	Name                string `json:"name,omitempty"`
	ImageURL            string `json:"image_url"`
	Rank                int    `json:"rank"`
	TotalEventsAttended int    `json:"total_events_attended"`
}

// StreakEntry is a single row in the attendance-streak ranking
type StreakEntry struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url"`
	Rank     int    `json:"rank"`
	Streak   int    `json:"streak"`
}

// LeaderboardResult is an immutable snapshot of both community rankings,
// recomputed from scratch on every build.
type LeaderboardResult struct {
	TopAttendees     []TopAttendeeEntry `json:"top_attendees"`
	AttendanceStreak []StreakEntry      `json:"attendance_streak"`
}
