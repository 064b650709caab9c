package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ShouldFireAlert implements the per-rule+fingerprint cooldown gate (spec
// §4.7): if the rule fired for this fingerprint within cooldownMillis of
// now, it reports false and leaves last_fired untouched. Otherwise it
// records last_fired = now and reports true, all within one transaction to
// avoid a duplicate-fire race between concurrent evaluations.
func (s *Store) ShouldFireAlert(ctx context.Context, projectID, ruleID, fingerprint string, now, cooldownMillis int64) (fire bool, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return false, fmt.Errorf("store: begin alert cooldown transaction: %w", err)
	}
	defer endTransaction(&err)

	var lastFired int64 = -1
	found := false
	err = sqlitex.Execute(conn,
		`SELECT last_fired FROM alert_cooldowns WHERE project_id = ? AND rule_id = ? AND fingerprint = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectID, ruleID, fingerprint},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				lastFired = stmt.GetInt64("last_fired")
				found = true
				return nil
			},
		},
	)
	if err != nil {
		return false, err
	}

	if found && now-lastFired < cooldownMillis {
		return false, nil
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO alert_cooldowns (project_id, rule_id, fingerprint, last_fired)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (project_id, rule_id, fingerprint) DO UPDATE SET last_fired = excluded.last_fired`,
		&sqlitex.ExecOptions{Args: []any{projectID, ruleID, fingerprint, now}},
	)
	if err != nil {
		return false, err
	}

	return true, nil
}
