// Package session persists the access/refresh credential pair between
// invocations. Tokens live in a small local SQLite database under fixed
// keys; the store is the single writer surface for login, signup,
// refresh-success and logout.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/rxdesk/rxdesk/pkg/models"
)

const (
	accessKey  = "access_token"
	refreshKey = "refresh_token"
)

type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// Open opens (creating if needed) the credential database at path.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS credentials (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply credential schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Access returns the stored access token, or "" when none is stored.
func (s *Store) Access(ctx context.Context) (string, error) {
	return s.get(ctx, accessKey)
}

// Refresh returns the stored refresh token, or "" when none is stored.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	return s.get(ctx, refreshKey)
}

// SetPair stores a freshly issued credential pair, replacing any previous one.
func (s *Store) SetPair(ctx context.Context, pair models.TokenPair) error {
	if err := s.set(ctx, accessKey, pair.Access); err != nil {
		return err
	}
	if err := s.set(ctx, refreshKey, pair.Refresh); err != nil {
		return err
	}
	s.logger.Debug("Credential pair stored")
	return nil
}

// SetAccess replaces only the access token, as a successful refresh does.
func (s *Store) SetAccess(ctx context.Context, token string) error {
	return s.set(ctx, accessKey, token)
}

// Clear removes both tokens. Called on logout and on unrecoverable
// refresh failure.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key IN (?, ?)`, accessKey, refreshKey); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	s.logger.Debug("Credentials cleared")
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store credential %s: %w", key, err)
	}
	return nil
}
