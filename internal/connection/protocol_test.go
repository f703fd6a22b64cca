package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mintup-social/internal/domain"
)

var protoNow = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

// memStore is an in-memory Store for protocol tests. Registration is keyed by
// eventID+userID; connections are held in insertion order.
type memStore struct {
	registered  map[string]bool
	connections []*domain.Connection
}

func newMemStore(eventID string, userIDs ...string) *memStore {
	s := &memStore{registered: make(map[string]bool)}
	for _, id := range userIDs {
		s.registered[eventID+"/"+id] = true
	}
	return s
}

func (s *memStore) FindByPair(_ context.Context, eventID, initiatorID, acceptorID string) (*domain.Connection, error) {
	for _, c := range s.connections {
		if c.EventID == eventID && c.InitiatorUserID == initiatorID && c.AcceptorUserID == acceptorID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByToken(_ context.Context, token string) (*domain.Connection, error) {
	for _, c := range s.connections {
		if c.ConnectionToken == token {
			copied := *c
			return &copied, nil
		}
	}
	return nil, domain.ErrConnectionNotFound
}

func (s *memStore) Insert(_ context.Context, conn *domain.Connection) error {
	copied := *conn
	s.connections = append(s.connections, &copied)
	return nil
}

func (s *memStore) Update(_ context.Context, conn *domain.Connection) error {
	for i, c := range s.connections {
		if c.ID == conn.ID {
			copied := *conn
			s.connections[i] = &copied
			return nil
		}
	}
	return domain.ErrConnectionNotFound
}

func (s *memStore) HasRegistration(_ context.Context, eventID, userID string) (bool, error) {
	return s.registered[eventID+"/"+userID], nil
}

func (s *memStore) ListConfirmed(_ context.Context, eventID, userID string) ([]domain.ConnectedProfile, error) {
	var out []domain.ConnectedProfile
	for _, c := range s.connections {
		if c.EventID != eventID || c.Status != domain.ConnectionConfirmed {
			continue
		}
		var other string
		switch userID {
		case c.InitiatorUserID:
			other = c.AcceptorUserID
		case c.AcceptorUserID:
			other = c.InitiatorUserID
		default:
			continue
		}
		out = append(out, domain.ConnectedProfile{
			ConnectionID: c.ID,
			Profile:      domain.MemberProfile{UserID: other},
			ConfirmedAt:  *c.ConfirmedAt,
		})
	}
	return out, nil
}

func newTestProtocol(store Store) *Protocol {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewProtocol(store, 0, logger)
}

func TestInitiateAndConfirm(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	invite, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if invite.ConnectionToken == "" {
		t.Fatal("expected a non-empty token")
	}
	if want := protoNow.Add(DefaultTokenTTL); !invite.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, invite.ExpiresAt)
	}

	confirmAt := protoNow.Add(time.Minute)
	conn, err := p.Confirm(ctx, "bob", invite.ConnectionToken, confirmAt)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if conn.Status != domain.ConnectionConfirmed {
		t.Fatalf("expected confirmed, got %s", conn.Status)
	}
	if conn.ConfirmedAt == nil || !conn.ConfirmedAt.Equal(confirmAt) {
		t.Fatalf("expected confirmed_at %v, got %v", confirmAt, conn.ConfirmedAt)
	}

	// Re-confirming the same token succeeds and returns the same connection.
	again, err := p.Confirm(ctx, "bob", invite.ConnectionToken, confirmAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("re-confirm failed: %v", err)
	}
	if again.ID != conn.ID {
		t.Fatalf("expected connection %s, got %s", conn.ID, again.ID)
	}
	if !again.ConfirmedAt.Equal(confirmAt) {
		t.Fatalf("re-confirm must not move confirmed_at: got %v", again.ConfirmedAt)
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	invite, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	late := invite.ExpiresAt.Add(time.Millisecond)
	_, err = p.Confirm(ctx, "bob", invite.ConnectionToken, late)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if !domain.IsInvalidArgument(err) {
		t.Fatalf("expired token should classify as invalid argument")
	}

	// The record is now terminally expired: a later in-window timestamp does
	// not revive it.
	if _, err := p.Confirm(ctx, "bob", invite.ConnectionToken, protoNow); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired on expired record, got %v", err)
	}

	status, err := p.CheckStatus(ctx, "e1", "alice", "bob", protoNow)
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if status != domain.PairExpired {
		t.Fatalf("expected pair status expired, got %s", status)
	}
}

func TestConfirmExactDeadlineFails(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	invite, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if _, err := p.Confirm(ctx, "bob", invite.ConnectionToken, invite.ExpiresAt); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("confirm exactly at the deadline should expire, got %v", err)
	}
}

func TestInitiateValidation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	if _, err := p.Initiate(ctx, "", "e1", "bob", protoNow); !domain.IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := p.Initiate(ctx, "alice", "e1", "alice", protoNow); !errors.Is(err, domain.ErrSelfConnection) {
		t.Fatalf("expected ErrSelfConnection, got %v", err)
	}
	// carol never registered for e1.
	if _, err := p.Initiate(ctx, "alice", "e1", "carol", protoNow); !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered for acceptor, got %v", err)
	}
	if _, err := p.Initiate(ctx, "carol", "e1", "alice", protoNow); !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered for initiator, got %v", err)
	}
}

func TestConfirmValidation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob", "carol")
	p := newTestProtocol(store)

	invite, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	if _, err := p.Confirm(ctx, "", invite.ConnectionToken, protoNow); !domain.IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := p.Confirm(ctx, "bob", "no-such-token", protoNow); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	// The initiator cannot confirm their own invite; neither can a bystander.
	if _, err := p.Confirm(ctx, "alice", invite.ConnectionToken, protoNow); !errors.Is(err, domain.ErrForeignConnection) {
		t.Fatalf("expected ErrForeignConnection for initiator, got %v", err)
	}
	if _, err := p.Confirm(ctx, "carol", invite.ConnectionToken, protoNow); !domain.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied for third party, got %v", err)
	}
}

func TestInitiateBlockedByConfirmed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	invite, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if _, err := p.Confirm(ctx, "bob", invite.ConnectionToken, protoNow.Add(time.Minute)); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	// Both directions are blocked once confirmed.
	if _, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow.Add(2*time.Minute)); !domain.IsConflict(err) {
		t.Fatalf("expected conflict re-initiating same direction, got %v", err)
	}
	if _, err := p.Initiate(ctx, "bob", "e1", "alice", protoNow.Add(2*time.Minute)); !errors.Is(err, domain.ErrConnectionExists) {
		t.Fatalf("expected ErrConnectionExists reversed, got %v", err)
	}
}

func TestReInitiateReArmsPending(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	first, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	second, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("re-initiate failed: %v", err)
	}
	if second.ConnectionToken == first.ConnectionToken {
		t.Fatal("re-initiation must rotate the token")
	}
	if len(store.connections) != 1 {
		t.Fatalf("expected a single record for the pair, got %d", len(store.connections))
	}

	// The old token is dead, the new one confirms.
	if _, err := p.Confirm(ctx, "bob", first.ConnectionToken, protoNow.Add(2*time.Minute)); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for stale token, got %v", err)
	}
	if _, err := p.Confirm(ctx, "bob", second.ConnectionToken, protoNow.Add(2*time.Minute)); err != nil {
		t.Fatalf("confirm with fresh token failed: %v", err)
	}
}

func TestPendingReverseDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	if _, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	// A pending handshake the other way is allowed to coexist.
	if _, err := p.Initiate(ctx, "bob", "e1", "alice", protoNow); err != nil {
		t.Fatalf("reverse initiate should succeed while pending: %v", err)
	}
	if len(store.connections) != 2 {
		t.Fatalf("expected two pending records, got %d", len(store.connections))
	}
}

func TestCheckStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob")
	p := newTestProtocol(store)

	status, err := p.CheckStatus(ctx, "e1", "alice", "bob", protoNow)
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if status != domain.PairNone {
		t.Fatalf("expected none, got %s", status)
	}

	invite, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	// Symmetric regardless of argument order.
	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		status, err = p.CheckStatus(ctx, "e1", pair[0], pair[1], protoNow)
		if err != nil {
			t.Fatalf("check status failed: %v", err)
		}
		if status != domain.PairPending {
			t.Fatalf("expected pending for %v, got %s", pair, status)
		}
	}

	// Past the deadline a pending record reads as expired without being patched.
	late := invite.ExpiresAt.Add(time.Second)
	status, err = p.CheckStatus(ctx, "e1", "alice", "bob", late)
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if status != domain.PairExpired {
		t.Fatalf("expected expired, got %s", status)
	}
	if store.connections[0].Status != domain.ConnectionPending {
		t.Fatalf("status check must not mutate the record, got %s", store.connections[0].Status)
	}

	if _, err := p.Confirm(ctx, "bob", invite.ConnectionToken, protoNow.Add(time.Minute)); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	status, err = p.CheckStatus(ctx, "e1", "bob", "alice", late)
	if err != nil {
		t.Fatalf("check status failed: %v", err)
	}
	if status != domain.PairConfirmed {
		t.Fatalf("expected confirmed, got %s", status)
	}
}

func TestListConfirmedFor(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("e1", "alice", "bob", "carol")
	p := newTestProtocol(store)

	if _, err := p.ListConfirmedFor(ctx, "", "e1"); !domain.IsUnauthenticated(err) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	inviteBob, err := p.Initiate(ctx, "alice", "e1", "bob", protoNow)
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if _, err := p.Confirm(ctx, "bob", inviteBob.ConnectionToken, protoNow.Add(time.Minute)); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	// Carol's invite stays pending and must not appear.
	if _, err := p.Initiate(ctx, "alice", "e1", "carol", protoNow); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	profiles, err := p.ListConfirmedFor(ctx, "alice", "e1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 confirmed connection, got %d", len(profiles))
	}
	if profiles[0].Profile.UserID != "bob" {
		t.Fatalf("expected bob, got %s", profiles[0].Profile.UserID)
	}
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewToken(protoNow)
		if seen[token] {
			t.Fatalf("duplicate token %s", token)
		}
		seen[token] = true
	}
}
