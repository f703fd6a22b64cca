package domain

import "time"

// Community is the tenant grouping events and members.
type Community struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a single community event
type Event struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	StartDate   time.Time `json:"start_date"`
}

// Completed reports whether the event has already started relative to now.
func (e Event) Completed(now time.Time) bool {
	return !e.StartDate.After(now)
}

// CheckIn represents a verified in-person attendance marker for a registration
type CheckIn struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
