package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

const sessionColumns = `user_id, device_key, device_fingerprint, refresh_token_hash, ip_address, created_at, updated_at`

// SessionStore implements store.SessionStore using PostgreSQL.
//
// The (user_id, device_key) primary key makes Upsert a single atomic
// statement, and Rotate is a compare-and-swap on refresh_token_hash.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Upsert creates the session for (UserID, DeviceKey) or replaces its refresh hash.
func (s *SessionStore) Upsert(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (
			user_id, device_key, device_fingerprint,
			refresh_token_hash, ip_address, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::inet, NOW(), NOW()
		)
		ON CONFLICT (user_id, device_key) DO UPDATE SET
			device_fingerprint = EXCLUDED.device_fingerprint,
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			ip_address         = EXCLUDED.ip_address,
			updated_at         = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		session.UserID,
		session.DeviceKey,
		session.DeviceFingerprint,
		session.RefreshTokenHash,
		inetArg(session.IPAddress),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", session.UserID.String()).
		Str("device_key", session.DeviceKey).
		Msg("Upserted session")

	return nil
}

// Lookup finds the session holding refreshHash on deviceKey.
func (s *SessionStore) Lookup(ctx context.Context, refreshHash, deviceKey string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE device_key = $1 AND refresh_token_hash = $2
	`

	session, err := scanSession(s.pool.QueryRow(ctx, query, deviceKey, refreshHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to look up session: %w", mapPostgresError(err))
	}

	return session, nil
}

// Rotate swaps the refresh hash only while the stored one still equals oldHash.
func (s *SessionStore) Rotate(ctx context.Context, userID uuid.UUID, deviceKey, oldHash, newHash string) error {
	query := `
		UPDATE sessions
		SET refresh_token_hash = $4, updated_at = NOW()
		WHERE user_id = $1 AND device_key = $2 AND refresh_token_hash = $3
	`

	result, err := s.pool.Exec(ctx, query, userID, deviceKey, oldHash, newHash)
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// Delete removes the session for (userID, deviceKey). Missing sessions are ignored.
func (s *SessionStore) Delete(ctx context.Context, userID uuid.UUID, deviceKey string) error {
	query := `DELETE FROM sessions WHERE user_id = $1 AND device_key = $2`

	result, err := s.pool.Exec(ctx, query, userID, deviceKey)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", userID.String()).
		Str("device_key", deviceKey).
		Int64("deleted", result.RowsAffected()).
		Msg("Deleted session")

	return nil
}

// ListByUser returns all sessions of a user, most recently updated first.
func (s *SessionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", mapPostgresError(err))
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		session models.Session
		ip      *netip.Addr
	)

	err := row.Scan(
		&session.UserID,
		&session.DeviceKey,
		&session.DeviceFingerprint,
		&session.RefreshTokenHash,
		&ip,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ip != nil {
		session.IPAddress = ip.String()
	}

	return &session, nil
}

// inetArg converts an empty address to NULL for the INET column.
func inetArg(ip string) any {
	if ip == "" {
		return nil
	}
	return ip
}
