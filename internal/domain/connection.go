package domain

import "time"

// ConnectionStatus represents the lifecycle state of a connection record
type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConfirmed ConnectionStatus = "confirmed"
	ConnectionExpired   ConnectionStatus = "expired"
)

// Connection is an event-scoped social link between two attendees,
// established via a time-boxed shared token. ExpiresAt is meaningful while
// pending; ConfirmedAt is set on the transition to confirmed. The token stays
// on the record after confirmation for audit but is never reusable.
type Connection struct {
	ID              string           `json:"id"`
	EventID         string           `json:"event_id"`
	InitiatorUserID string           `json:"initiator_user_id"`
	AcceptorUserID  string           `json:"acceptor_user_id"`
	ConnectionToken string           `json:"connection_token"`
	Status          ConnectionStatus `json:"status"`
	ExpiresAt       time.Time        `json:"expires_at"`
	ConfirmedAt     *time.Time       `json:"confirmed_at,omitempty"`
}

// ConnectionInvite is what an initiator receives to share out of band,
// typically rendered as a QR code by the client.
type ConnectionInvite struct {
	ConnectionToken string    `json:"connection_token"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// PairStatus is the coarse status of the connection between two users at an
// event, with both pair orderings considered.
type PairStatus string

const (
	PairNone      PairStatus = "none"
	PairPending   PairStatus = "pending"
	PairConfirmed PairStatus = "confirmed"
	PairExpired   PairStatus = "expired"
)

// ConnectedProfile is a confirmed connection resolved to the other party's
// profile plus their per-event intentions.
type ConnectedProfile struct {
	ConnectionID    string        `json:"connection_id"`
	Profile         MemberProfile `json:"profile"`
	EventIntentions []string      `json:"event_intentions,omitempty"`
	ConfirmedAt     time.Time     `json:"confirmed_at"`
}
