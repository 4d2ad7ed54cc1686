// ABOUTME: PostgreSQL implementation of the Store interface using pgx/v5
// ABOUTME: Mirrors the SQLite store for deployments with a shared database server

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to PostgreSQL with the given DSN and ensures
// the schema exists. The connection is verified with a ping before use.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger,
	}

	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id               BIGSERIAL PRIMARY KEY,
			name             TEXT NOT NULL,
			homeserver       TEXT NOT NULL,
			access_token     TEXT NOT NULL,
			enabled          BOOLEAN NOT NULL DEFAULT TRUE,
			respond_to_dm    BOOLEAN NOT NULL DEFAULT TRUE,
			space_whitelist  JSONB NOT NULL DEFAULT '[]',
			room_whitelist   JSONB NOT NULL DEFAULT '[]',
			agent_type       TEXT NOT NULL DEFAULT 'echo',
			agent_config     JSONB NOT NULL DEFAULT '{}',
			bot_user_id      TEXT,
			bot_username     TEXT,
			bot_display_name TEXT,
			created_at       TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_enabled ON agents(enabled);
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Create inserts a new agent record and fills in its assigned ID.
func (s *PostgresStore) Create(ctx context.Context, rec *AgentRecord) error {
	spaceJSON, roomJSON, configJSON, err := marshalRecordJSON(rec)
	if err != nil {
		return err
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO agents (name, homeserver, access_token, enabled, respond_to_dm,
			space_whitelist, room_whitelist, agent_type, agent_config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err = s.pool.QueryRow(ctx, query,
		rec.Name,
		rec.Homeserver,
		rec.AccessToken,
		rec.Enabled,
		rec.RespondToDM,
		spaceJSON,
		roomJSON,
		rec.AgentType,
		configJSON,
		rec.CreatedAt.UTC(),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent record", "id", rec.ID, "name", rec.Name)
	return nil
}

// Get returns the agent record with the given ID, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*AgentRecord, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`

	rec, err := scanPostgresAgent(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return rec, nil
}

// List returns all agent records ordered by ID.
func (s *PostgresStore) List(ctx context.Context) ([]*AgentRecord, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
}

// ListEnabled returns all enabled agent records ordered by ID.
func (s *PostgresStore) ListEnabled(ctx context.Context) ([]*AgentRecord, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE enabled ORDER BY id`)
}

func (s *PostgresStore) queryAgents(ctx context.Context, query string) ([]*AgentRecord, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var records []*AgentRecord
	for rows.Next() {
		rec, err := scanPostgresAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}

	return records, nil
}

// SetEnabled flips the enabled flag for an agent record.
func (s *PostgresStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE agents SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("updating enabled flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBotIdentity records the connection-assigned bot identity fields.
func (s *PostgresStore) UpdateBotIdentity(ctx context.Context, id int64, userID, username, displayName string) error {
	query := `
		UPDATE agents
		SET bot_user_id = $1, bot_username = $2, bot_display_name = $3
		WHERE id = $4
	`

	tag, err := s.pool.Exec(ctx, query, userID, username, displayName, id)
	if err != nil {
		return fmt.Errorf("updating bot identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated bot identity", "id", id, "bot_user_id", userID)
	return nil
}

// Delete removes an agent record. Returns false if it did not exist.
func (s *PostgresStore) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting agent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanPostgresAgent(row pgx.Row) (*AgentRecord, error) {
	var rec AgentRecord
	var spaceJSON, roomJSON, configJSON []byte
	var botUserID, botUsername, botDisplayName *string

	err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Homeserver,
		&rec.AccessToken,
		&rec.Enabled,
		&rec.RespondToDM,
		&spaceJSON,
		&roomJSON,
		&rec.AgentType,
		&configJSON,
		&botUserID,
		&botUsername,
		&botDisplayName,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalRecordJSON(&rec, string(spaceJSON), string(roomJSON), string(configJSON)); err != nil {
		return nil, err
	}

	if botUserID != nil {
		rec.BotUserID = *botUserID
	}
	if botUsername != nil {
		rec.BotUsername = *botUsername
	}
	if botDisplayName != nil {
		rec.BotDisplayName = *botDisplayName
	}

	return &rec, nil
}

// compile-time interface checks
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
