package domain

import "time"

// RegistrationStatus represents the review state of a registration
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

// Registration represents an attendee registration for an event
type Registration struct {
	ID              string             `json:"id"`
	EventID         string             `json:"event_id"`
	UserID          string             `json:"user_id"`
	Status          RegistrationStatus `json:"status"`
	CheckedInAt     *time.Time         `json:"checked_in_at,omitempty"`
	EventIntentions []string           `json:"event_intentions,omitempty"`
}

// CheckedIn reports whether the attendee's physical presence was verified.
func (r Registration) CheckedIn() bool {
	return r.CheckedInAt != nil
}

// MemberProfile is a lightweight member profile used in leaderboard entries
// and connection listings. Name may be empty.
type MemberProfile struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url"`
}
