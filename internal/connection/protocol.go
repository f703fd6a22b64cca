package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mintup-social/internal/domain"
)

// DefaultTokenTTL is how long a pending connection token stays redeemable
const DefaultTokenTTL = 5 * time.Minute

// Store is the persisted connection record store the protocol runs against.
// Implementations must make each read-modify-write sequence atomic per record;
// the unique index on (event, initiator, acceptor) serializes racing initiates.
type Store interface {
	// FindByPair returns the record for the ordered pair, or nil when none exists.
	FindByPair(ctx context.Context, eventID, initiatorID, acceptorID string) (*domain.Connection, error)
	// FindByToken returns domain.ErrConnectionNotFound when no record holds the token.
	FindByToken(ctx context.Context, token string) (*domain.Connection, error)
	Insert(ctx context.Context, conn *domain.Connection) error
	Update(ctx context.Context, conn *domain.Connection) error
	// HasRegistration reports whether the user holds any registration for the
	// event, regardless of its status.
	HasRegistration(ctx context.Context, eventID, userID string) (bool, error)
	// ListConfirmed returns the user's confirmed connections at the event,
	// resolved to the other party's profile and intentions, most recent first.
	ListConfirmed(ctx context.Context, eventID, userID string) ([]domain.ConnectedProfile, error)
}

// Protocol implements the two-step connection handshake: an initiator requests
// a token, shares it out of band, and the designated acceptor redeems it
// before expiry. Expiry is lazy: records are marked expired only when a
// confirm attempt observes the deadline passed, never by a background sweep.
type Protocol struct {
	store    Store
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewProtocol creates a connection protocol bound to a record store
func NewProtocol(store Store, tokenTTL time.Duration, logger *slog.Logger) *Protocol {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Protocol{
		store:    store,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// NewToken generates a connection token. The nanosecond timestamp plus a
// random UUID keeps tokens unique across concurrent initiations.
func NewToken(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
}

// Initiate starts a handshake from callerID toward acceptorID at an event and
// returns the token to share. An existing non-confirmed record for the same
// ordered pair is re-armed with a fresh token instead of inserting a duplicate.
func (p *Protocol) Initiate(ctx context.Context, callerID, eventID, acceptorID string, now time.Time) (*domain.ConnectionInvite, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if callerID == acceptorID {
		return nil, domain.ErrSelfConnection
	}

	for _, userID := range []string{callerID, acceptorID} {
		registered, err := p.store.HasRegistration(ctx, eventID, userID)
		if err != nil {
			return nil, fmt.Errorf("checking registration: %w", err)
		}
		if !registered {
			return nil, domain.ErrNotRegistered
		}
	}

	forward, err := p.store.FindByPair(ctx, eventID, callerID, acceptorID)
	if err != nil {
		return nil, fmt.Errorf("looking up connection: %w", err)
	}
	reverse, err := p.store.FindByPair(ctx, eventID, acceptorID, callerID)
	if err != nil {
		return nil, fmt.Errorf("looking up reverse connection: %w", err)
	}
	// Only a confirmed record in either direction blocks; a pending reverse
	// handshake does not.
	if (forward != nil && forward.Status == domain.ConnectionConfirmed) ||
		(reverse != nil && reverse.Status == domain.ConnectionConfirmed) {
		return nil, domain.ErrConnectionExists
	}

	token := NewToken(now)
	expiresAt := now.Add(p.tokenTTL)

	if forward != nil {
		forward.ConnectionToken = token
		forward.Status = domain.ConnectionPending
		forward.ExpiresAt = expiresAt
		forward.ConfirmedAt = nil
		if err := p.store.Update(ctx, forward); err != nil {
			return nil, fmt.Errorf("re-arming connection: %w", err)
		}
	} else {
		conn := &domain.Connection{
			ID:              uuid.NewString(),
			EventID:         eventID,
			InitiatorUserID: callerID,
			AcceptorUserID:  acceptorID,
			ConnectionToken: token,
			Status:          domain.ConnectionPending,
			ExpiresAt:       expiresAt,
		}
		if err := p.store.Insert(ctx, conn); err != nil {
			return nil, fmt.Errorf("inserting connection: %w", err)
		}
	}

	p.logger.Debug("connection initiated",
		"event_id", eventID,
		"initiator", callerID,
		"acceptor", acceptorID,
	)

	return &domain.ConnectionInvite{
		ConnectionToken: token,
		ExpiresAt:       expiresAt,
	}, nil
}

// Confirm redeems a connection token as the designated acceptor. Confirming an
// already-confirmed record is an idempotent success; a pending record past its
// deadline is marked expired and the call fails.
func (p *Protocol) Confirm(ctx context.Context, callerID, token string, now time.Time) (*domain.Connection, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthenticated
	}

	conn, err := p.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	// Ownership before state: the initiator cannot self-confirm and a third
	// party cannot confirm on the acceptor's behalf.
	if conn.AcceptorUserID != callerID {
		return nil, domain.ErrForeignConnection
	}

	switch conn.Status {
	case domain.ConnectionConfirmed:
		return conn, nil

	case domain.ConnectionExpired:
		return nil, domain.ErrTokenExpired

	case domain.ConnectionPending:
		if !now.Before(conn.ExpiresAt) {
			conn.Status = domain.ConnectionExpired
			if err := p.store.Update(ctx, conn); err != nil {
				return nil, fmt.Errorf("expiring connection: %w", err)
			}
			return nil, domain.ErrTokenExpired
		}
		confirmedAt := now
		conn.Status = domain.ConnectionConfirmed
		conn.ConfirmedAt = &confirmedAt
		if err := p.store.Update(ctx, conn); err != nil {
			return nil, fmt.Errorf("confirming connection: %w", err)
		}
		p.logger.Debug("connection confirmed",
			"connection_id", conn.ID,
			"event_id", conn.EventID,
		)
		return conn, nil

	default:
		return nil, fmt.Errorf("connection %s: unknown status %q", conn.ID, conn.Status)
	}
}

// CheckStatus returns the coarse status of the connection between two users at
// an event, checking both pair orderings. A pending record past its deadline
// reads as expired; the record itself is only patched on a confirm attempt.
func (p *Protocol) CheckStatus(ctx context.Context, eventID, userA, userB string, now time.Time) (domain.PairStatus, error) {
	forward, err := p.store.FindByPair(ctx, eventID, userA, userB)
	if err != nil {
		return domain.PairNone, fmt.Errorf("looking up connection: %w", err)
	}
	reverse, err := p.store.FindByPair(ctx, eventID, userB, userA)
	if err != nil {
		return domain.PairNone, fmt.Errorf("looking up reverse connection: %w", err)
	}

	status := domain.PairNone
	for _, conn := range []*domain.Connection{forward, reverse} {
		if conn == nil {
			continue
		}
		switch conn.Status {
		case domain.ConnectionConfirmed:
			return domain.PairConfirmed, nil
		case domain.ConnectionPending:
			if now.Before(conn.ExpiresAt) {
				status = domain.PairPending
			} else if status == domain.PairNone {
				status = domain.PairExpired
			}
		case domain.ConnectionExpired:
			if status == domain.PairNone {
				status = domain.PairExpired
			}
		}
	}
	return status, nil
}

// ListConfirmedFor returns the caller's confirmed connections at an event,
// each resolved to the other party's profile, most recent first.
func (p *Protocol) ListConfirmedFor(ctx context.Context, callerID, eventID string) ([]domain.ConnectedProfile, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	profiles, err := p.store.ListConfirmed(ctx, eventID, callerID)
	if err != nil {
		return nil, fmt.Errorf("listing confirmed connections: %w", err)
	}
	return profiles, nil
}
