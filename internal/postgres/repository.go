package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mintup-social/internal/config"
	"github.com/mintup-social/internal/domain"
	"github.com/mintup-social/internal/leaderboard"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations. The unique index on
// (event_id, initiator_user_id, acceptor_user_id) serializes racing initiates
// for the same ordered pair; the unique token column backs token lookup.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS communities (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			community_id VARCHAR(64) NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			start_date TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			community_id VARCHAR(64) NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) DEFAULT '',
			image_url TEXT DEFAULT '',
			UNIQUE(community_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS registrations (
			id VARCHAR(64) PRIMARY KEY,
			event_id VARCHAR(64) NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			checked_in_at TIMESTAMP,
			intentions JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS connections (
			id VARCHAR(64) PRIMARY KEY,
			event_id VARCHAR(64) NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			initiator_user_id VARCHAR(64) NOT NULL,
			acceptor_user_id VARCHAR(64) NOT NULL,
			connection_token TEXT NOT NULL UNIQUE,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			expires_at TIMESTAMP NOT NULL,
			confirmed_at TIMESTAMP,
			UNIQUE(event_id, initiator_user_id, acceptor_user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_community ON events(community_id, start_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_registrations_event ON registrations(event_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_event_user ON connections(event_id, acceptor_user_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// ListCommunities retrieves all communities
func (r *Repository) ListCommunities(ctx context.Context) ([]domain.Community, error) {
	query := `SELECT id, name, created_at FROM communities ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing communities: %w", err)
	}
	defer rows.Close()

	var communities []domain.Community
	for rows.Next() {
		var c domain.Community
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning community: %w", err)
		}
		communities = append(communities, c)
	}
	return communities, nil
}

// CommunityForEvent returns the community an event belongs to
func (r *Repository) CommunityForEvent(ctx context.Context, eventID string) (string, error) {
	query := `SELECT community_id FROM events WHERE id = $1`
	var communityID string
	err := r.pool.QueryRow(ctx, query, eventID).Scan(&communityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrEventNotFound
		}
		return "", fmt.Errorf("getting event community: %w", err)
	}
	return communityID, nil
}

// LeaderboardInput assembles the collections the leaderboard builder consumes:
// the community's events, registrations partitioned by event, and the member
// roster.
func (r *Repository) LeaderboardInput(ctx context.Context, communityID string) (leaderboard.Input, error) {
	in := leaderboard.Input{
		RegistrationsByEvent: make(map[string][]domain.Registration),
	}

	eventRows, err := r.pool.Query(ctx,
		`SELECT id, community_id, start_date FROM events WHERE community_id = $1`,
		communityID,
	)
	if err != nil {
		return in, fmt.Errorf("listing events: %w", err)
	}
	defer eventRows.Close()
	for eventRows.Next() {
		var ev domain.Event
		if err := eventRows.Scan(&ev.ID, &ev.CommunityID, &ev.StartDate); err != nil {
			return in, fmt.Errorf("scanning event: %w", err)
		}
		in.Events = append(in.Events, ev)
	}
	eventRows.Close()

	regRows, err := r.pool.Query(ctx, `
		SELECT r.id, r.event_id, r.user_id, r.status, r.checked_in_at, r.intentions
		FROM registrations r
		JOIN events e ON e.id = r.event_id
		WHERE e.community_id = $1
	`, communityID)
	if err != nil {
		return in, fmt.Errorf("listing registrations: %w", err)
	}
	defer regRows.Close()
	for regRows.Next() {
		reg, err := scanRegistration(regRows)
		if err != nil {
			return in, err
		}
		in.RegistrationsByEvent[reg.EventID] = append(in.RegistrationsByEvent[reg.EventID], reg)
	}
	regRows.Close()

	memberRows, err := r.pool.Query(ctx,
		`SELECT user_id, name, image_url FROM members WHERE community_id = $1`,
		communityID,
	)
	if err != nil {
		return in, fmt.Errorf("listing members: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var m domain.MemberProfile
		if err := memberRows.Scan(&m.UserID, &m.Name, &m.ImageURL); err != nil {
			return in, fmt.Errorf("scanning member: %w", err)
		}
		in.Members = append(in.Members, m)
	}

	return in, nil
}

// scanRegistration scans one registration row including its intentions JSON
func scanRegistration(rows pgx.Rows) (domain.Registration, error) {
	var reg domain.Registration
	var intentions []byte
	if err := rows.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.CheckedInAt, &intentions); err != nil {
		return reg, fmt.Errorf("scanning registration: %w", err)
	}
	if len(intentions) > 0 {
		if err := json.Unmarshal(intentions, &reg.EventIntentions); err != nil {
			return reg, fmt.Errorf("unmarshaling intentions: %w", err)
		}
	}
	return reg, nil
}

// RecordCheckIn marks a registration as checked in. The first check-in wins;
// re-submitting is a no-op. Returns domain.ErrRegistrationNotFound when the
// user holds no registration for the event.
func (r *Repository) RecordCheckIn(ctx context.Context, ci domain.CheckIn) error {
	query := `
		UPDATE registrations
		SET checked_in_at = COALESCE(checked_in_at, $3)
		WHERE event_id = $1 AND user_id = $2
	`
	result, err := r.pool.Exec(ctx, query, ci.EventID, ci.UserID, ci.CheckedInAt)
	if err != nil {
		return fmt.Errorf("recording check-in: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// BatchRecordCheckIns applies multiple check-ins in one round trip
func (r *Repository) BatchRecordCheckIns(ctx context.Context, checkIns []domain.CheckIn) error {
	if len(checkIns) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		UPDATE registrations
		SET checked_in_at = COALESCE(checked_in_at, $3)
		WHERE event_id = $1 AND user_id = $2
	`
	for _, ci := range checkIns {
		batch.Queue(query, ci.EventID, ci.UserID, ci.CheckedInAt)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range checkIns {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch recording check-ins: %w", err)
		}
	}
	return nil
}

// HasRegistration reports whether the user holds any registration for the
// event, regardless of its status.
func (r *Repository) HasRegistration(ctx context.Context, eventID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM registrations WHERE event_id = $1 AND user_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, eventID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking registration existence: %w", err)
	}
	return exists, nil
}

// FindByPair returns the connection record for the ordered pair, or nil when
// none exists
func (r *Repository) FindByPair(ctx context.Context, eventID, initiatorID, acceptorID string) (*domain.Connection, error) {
	query := `
		SELECT id, event_id, initiator_user_id, acceptor_user_id, connection_token, status, expires_at, confirmed_at
		FROM connections
		WHERE event_id = $1 AND initiator_user_id = $2 AND acceptor_user_id = $3
	`
	conn, err := scanConnection(r.pool.QueryRow(ctx, query, eventID, initiatorID, acceptorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding connection by pair: %w", err)
	}
	return conn, nil
}

// FindByToken returns the connection record holding the token
func (r *Repository) FindByToken(ctx context.Context, token string) (*domain.Connection, error) {
	query := `
		SELECT id, event_id, initiator_user_id, acceptor_user_id, connection_token, status, expires_at, confirmed_at
		FROM connections
		WHERE connection_token = $1
	`
	conn, err := scanConnection(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("finding connection by token: %w", err)
	}
	return conn, nil
}

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var conn domain.Connection
	err := row.Scan(
		&conn.ID,
		&conn.EventID,
		&conn.InitiatorUserID,
		&conn.AcceptorUserID,
		&conn.ConnectionToken,
		&conn.Status,
		&conn.ExpiresAt,
		&conn.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// Insert stores a new connection record
func (r *Repository) Insert(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO connections (id, event_id, initiator_user_id, acceptor_user_id, connection_token, status, expires_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		conn.ID,
		conn.EventID,
		conn.InitiatorUserID,
		conn.AcceptorUserID,
		conn.ConnectionToken,
		string(conn.Status),
		conn.ExpiresAt,
		conn.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

// Update patches an existing connection record
func (r *Repository) Update(ctx context.Context, conn *domain.Connection) error {
	query := `
		UPDATE connections
		SET connection_token = $2, status = $3, expires_at = $4, confirmed_at = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		conn.ID,
		conn.ConnectionToken,
		string(conn.Status),
		conn.ExpiresAt,
		conn.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("updating connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// ListConfirmed returns the user's confirmed connections at an event, each
// resolved to the other party's member profile and that party's per-event
// intentions, most recently confirmed first.
func (r *Repository) ListConfirmed(ctx context.Context, eventID, userID string) ([]domain.ConnectedProfile, error) {
	query := `
		WITH conns AS (
			SELECT id, event_id, confirmed_at,
				CASE WHEN initiator_user_id = $2 THEN acceptor_user_id ELSE initiator_user_id END AS other_user_id
			FROM connections
			WHERE event_id = $1
			  AND status = 'confirmed'
			  AND (initiator_user_id = $2 OR acceptor_user_id = $2)
		)
		SELECT c.id, c.other_user_id, COALESCE(m.name, ''), COALESCE(m.image_url, ''), reg.intentions, c.confirmed_at
		FROM conns c
		JOIN events e ON e.id = c.event_id
		LEFT JOIN members m ON m.community_id = e.community_id AND m.user_id = c.other_user_id
		LEFT JOIN LATERAL (
			SELECT intentions FROM registrations
			WHERE event_id = c.event_id AND user_id = c.other_user_id
			LIMIT 1
		) reg ON true
		ORDER BY c.confirmed_at DESC
	`
	rows, err := r.pool.Query(ctx, query, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing confirmed connections: %w", err)
	}
	defer rows.Close()

	var profiles []domain.ConnectedProfile
	for rows.Next() {
		var p domain.ConnectedProfile
		var intentions []byte
		err := rows.Scan(
			&p.ConnectionID,
			&p.Profile.UserID,
			&p.Profile.Name,
			&p.Profile.ImageURL,
			&intentions,
			&p.ConfirmedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning confirmed connection: %w", err)
		}
		if len(intentions) > 0 {
			if err := json.Unmarshal(intentions, &p.EventIntentions); err != nil {
				return nil, fmt.Errorf("unmarshaling intentions: %w", err)
			}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// UpsertMember inserts or updates a community member profile
func (r *Repository) UpsertMember(ctx context.Context, communityID string, m domain.MemberProfile) error {
	query := `
		INSERT INTO members (community_id, user_id, name, image_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (community_id, user_id)
		DO UPDATE SET name = $3, image_url = $4
	`
	_, err := r.pool.Exec(ctx, query, communityID, m.UserID, m.Name, m.ImageURL)
	if err != nil {
		return fmt.Errorf("upserting member: %w", err)
	}
	return nil
}

// InsertRegistration stores a new registration
func (r *Repository) InsertRegistration(ctx context.Context, reg domain.Registration) error {
	var intentions []byte
	var err error
	if reg.EventIntentions != nil {
		intentions, err = json.Marshal(reg.EventIntentions)
		if err != nil {
			return fmt.Errorf("marshaling intentions: %w", err)
		}
	}

	query := `
		INSERT INTO registrations (id, event_id, user_id, status, checked_in_at, intentions)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		reg.ID,
		reg.EventID,
		reg.UserID,
		string(reg.Status),
		reg.CheckedInAt,
		intentions,
	)
	if err != nil {
		return fmt.Errorf("inserting registration: %w", err)
	}
	return nil
}

// pingTimeout bounds readiness probes against the database
const pingTimeout = 5 * time.Second

// Healthy reports whether the database answers a ping
func (r *Repository) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return r.pool.Ping(ctx) == nil
}
