// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one activity log row.
func (s *PostgresStore) Insert(ctx context.Context, entry Entry) error {
	var userID *string
	if entry.UserID != nil {
		id := entry.UserID.String()
		userID = &id
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO activity_log (id, user_id, action, detail, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID.String(),
		userID,
		entry.Action,
		entry.Detail,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	)
	if err != nil {
		return oops.Code("AUDIT_INSERT_FAILED").
			With("operation", "insert activity_log").
			With("action", entry.Action).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)
