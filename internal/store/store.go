package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrProjectNotFound is returned by ProjectSecret when no project matches
// the given key.
var ErrProjectNotFound = errors.New("store: project not found")

// Store is the durable-storage facade used by every other component.
type Store struct {
	pool   *Pool
	logger *zap.Logger
}

func New(pool *Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Migrate applies the schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// EnsureDefaultProject bootstraps the "default" project with the
// configured HMAC secret if it does not already exist, so a single-tenant
// deployment works with zero project-management setup.
func (s *Store) EnsureDefaultProject(ctx context.Context, id, name, slug, hmacSecret string, now int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn,
		`INSERT INTO projects (id, name, slug, hmac_secret, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{id, name, slug, hmacSecret, now}},
	)
}

// ProjectSecret loads a project's HMAC secret by project id. It is the
// loader function behind the project-key cache's single-flight refresh.
func (s *Store) ProjectSecret(ctx context.Context, projectID string) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	var secret string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT hmac_secret FROM projects WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				secret = stmt.GetText("hmac_secret")
				found = true
				return nil
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("store: project secret: %w", err)
	}
	if !found {
		return "", ErrProjectNotFound
	}
	return secret, nil
}

// Health runs a trivial round-trip against the pool.
func (s *Store) Health(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
