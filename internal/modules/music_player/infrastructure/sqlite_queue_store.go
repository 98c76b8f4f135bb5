package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// SQLiteQueueStore persists queues in a SQLite database so they survive restarts.
type SQLiteQueueStore struct {
	jsonQueueCodec

	db *sql.DB
}

// NewSQLiteQueueStore opens the database at path and creates the queue table.
func NewSQLiteQueueStore(ctx context.Context, path string) (*SQLiteQueueStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	store, err := newSQLiteQueueStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func newSQLiteQueueStore(ctx context.Context, db *sql.DB) (*SQLiteQueueStore, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(initCtx, p); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	_, err := db.ExecContext(initCtx, `CREATE TABLE IF NOT EXISTS queues (
		guild_id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create queues table: %w", err)
	}

	return &SQLiteQueueStore{db: db}, nil
}

// Get returns the stored queue of the guild, or nil if there is none.
func (s *SQLiteQueueStore) Get(ctx context.Context, guildID snowflake.ID) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM queues WHERE guild_id = ?", guildID.String(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	return data, nil
}

// Set stores the queue of the guild.
func (s *SQLiteQueueStore) Set(ctx context.Context, guildID snowflake.ID, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queues (guild_id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		guildID.String(), data,
	)
	if err != nil {
		return fmt.Errorf("failed to write queue: %w", err)
	}
	return nil
}

// Delete removes the stored queue of the guild.
func (s *SQLiteQueueStore) Delete(ctx context.Context, guildID snowflake.ID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM queues WHERE guild_id = ?", guildID.String()); err != nil {
		return fmt.Errorf("failed to delete queue: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteQueueStore) Close() error {
	return s.db.Close()
}

var _ domain.QueueStore = (*SQLiteQueueStore)(nil)
