package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rollcall/internal/apperr"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id       TEXT PRIMARY KEY,
		name     TEXT,
		email    TEXT UNIQUE,
		password TEXT,
		type     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id     TEXT PRIMARY KEY,
		org_id TEXT,
		name   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		org_id        TEXT,
		class_id      TEXT,
		name          TEXT,
		enrollment_id TEXT,
		roll_no       TEXT,
		image_path    TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id        SERIAL PRIMARY KEY,
		user_id   TEXT,
		org_id    TEXT,
		name      TEXT,
		date      TEXT,
		time      TEXT,
		status    TEXT,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_classes_org ON classes(org_id)`,
	`CREATE INDEX IF NOT EXISTS idx_users_org ON users(org_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_org_date ON attendance(org_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_user ON attendance(user_id)`,
}

// Bootstrap creates the tables and indexes when they are absent. It is safe to
// run on every start.
func (d *DB) Bootstrap(ctx context.Context) error {
	return d.WithTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%w: bootstrap schema: %v", apperr.ErrDatabase, err)
			}
		}
		return nil
	})
}
