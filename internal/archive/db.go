// Package archive mirrors normalized room messages into Postgres so a
// headless client can keep a queryable local history.
package archive

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the archive database and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run archive migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS archived_messages (
            id SERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            message_id TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            sender_name TEXT NOT NULL,
            content TEXT NOT NULL,
            sent_at TEXT,
            archived_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(room_id, message_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_archived_messages_room
            ON archived_messages (room_id, archived_at);`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("archive migrations applied")
	return nil
}
