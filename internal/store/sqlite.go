// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides agent record persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			name             TEXT NOT NULL,
			homeserver       TEXT NOT NULL,
			access_token     TEXT NOT NULL,
			enabled          INTEGER NOT NULL DEFAULT 1,
			respond_to_dm    INTEGER NOT NULL DEFAULT 1,
			space_whitelist  TEXT NOT NULL DEFAULT '[]',
			room_whitelist   TEXT NOT NULL DEFAULT '[]',
			agent_type       TEXT NOT NULL DEFAULT 'echo',
			agent_config     TEXT NOT NULL DEFAULT '{}',
			bot_user_id      TEXT,
			bot_username     TEXT,
			bot_display_name TEXT,
			created_at       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_enabled ON agents(enabled);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const agentColumns = `id, name, homeserver, access_token, enabled, respond_to_dm,
	space_whitelist, room_whitelist, agent_type, agent_config,
	bot_user_id, bot_username, bot_display_name, created_at`

// Create inserts a new agent record and fills in its assigned ID.
func (s *SQLiteStore) Create(ctx context.Context, rec *AgentRecord) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.Name,
		rec.Homeserver,
		rec.AccessToken,
		rec.Enabled,
		rec.RespondToDM,
		spaceJSON,
		roomJSON,
		rec.AgentType,
		configJSON,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}

	rec.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted agent id: %w", err)
	}

	s.logger.Debug("created agent record", "id", rec.ID, "name", rec.Name)
	return nil
}

// Get returns the agent record with the given ID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*AgentRecord, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = ?`

	rec, err := scanAgent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return rec, nil
}

// List returns all agent records ordered by ID.
func (s *SQLiteStore) List(ctx context.Context) ([]*AgentRecord, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
}

// ListEnabled returns all enabled agent records ordered by ID.
func (s *SQLiteStore) ListEnabled(ctx context.Context) ([]*AgentRecord, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE enabled = 1 ORDER BY id`)
}

func (s *SQLiteStore) queryAgents(ctx context.Context, query string) ([]*AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var records []*AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
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
func (s *SQLiteStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE agents SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("updating enabled flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateBotIdentity records the connection-assigned bot identity fields.
func (s *SQLiteStore) UpdateBotIdentity(ctx context.Context, id int64, userID, username, displayName string) error {
	query := `
		UPDATE agents
		SET bot_user_id = ?, bot_username = ?, bot_display_name = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, userID, username, displayName, id)
	if err != nil {
		return fmt.Errorf("updating bot identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated bot identity", "id", id, "bot_user_id", userID)
	return nil
}

// Delete removes an agent record. Returns false if it did not exist.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting agent: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking affected rows: %w", err)
	}

	return affected > 0, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*AgentRecord, error) {
	var rec AgentRecord
	var spaceJSON, roomJSON, configJSON, createdAtStr string
	var botUserID, botUsername, botDisplayName sql.NullString

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
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalRecordJSON(&rec, spaceJSON, roomJSON, configJSON); err != nil {
		return nil, err
	}

	rec.BotUserID = botUserID.String
	rec.BotUsername = botUsername.String
	rec.BotDisplayName = botDisplayName.String

	rec.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &rec, nil
}

func marshalRecordJSON(rec *AgentRecord) (space, room, config string, err error) {
	spaceList := rec.SpaceWhitelist
	if spaceList == nil {
		spaceList = []string{}
	}
	roomList := rec.RoomWhitelist
	if roomList == nil {
		roomList = []string{}
	}
	configMap := rec.AgentConfig
	if configMap == nil {
		configMap = map[string]any{}
	}

	spaceJSON, err := json.Marshal(spaceList)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling space whitelist: %w", err)
	}
	roomJSON, err := json.Marshal(roomList)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling room whitelist: %w", err)
	}
	configJSON, err := json.Marshal(configMap)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling agent config: %w", err)
	}

	return string(spaceJSON), string(roomJSON), string(configJSON), nil
}

func unmarshalRecordJSON(rec *AgentRecord, spaceJSON, roomJSON, configJSON string) error {
	if err := json.Unmarshal([]byte(spaceJSON), &rec.SpaceWhitelist); err != nil {
		return fmt.Errorf("parsing space whitelist: %w", err)
	}
	if err := json.Unmarshal([]byte(roomJSON), &rec.RoomWhitelist); err != nil {
		return fmt.Errorf("parsing room whitelist: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &rec.AgentConfig); err != nil {
		return fmt.Errorf("parsing agent config: %w", err)
	}
	return nil
}
