package archive

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-client/internal/wire"
)

// Row is one archived message record.
type Row struct {
	ID         int64     `db:"id" json:"id"`
	RoomID     string    `db:"room_id" json:"room_id"`
	MessageID  string    `db:"message_id" json:"message_id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	SenderName string    `db:"sender_name" json:"sender_name"`
	Content    string    `db:"content" json:"content"`
	SentAt     string    `db:"sent_at" json:"sent_at"`
	ArchivedAt time.Time `db:"archived_at" json:"archived_at"`
}

// Archive mirrors confirmed messages into Postgres and serves history
// queries over them. Consumers declare their own single-method views of
// it (session.Archiver, control.RecentArchive).
type Archive struct {
	db *sqlx.DB
}

// New constructs an Archive.
func New(db *sqlx.DB) *Archive {
	return &Archive{db: db}
}

// Store inserts one confirmed message. Messages without a backend id
// are skipped (nothing stable to dedup on), and replays of an already
// archived id are ignored.
func (a *Archive) Store(ctx context.Context, roomID string, msg wire.Message) error {
	if msg.ID == "" {
		return nil
	}
	name := msg.Sender.FirstName
	if msg.Sender.LastName != "" {
		name += " " + msg.Sender.LastName
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO archived_messages (room_id, message_id, sender_id, sender_name, content, sent_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         ON CONFLICT (room_id, message_id) DO NOTHING`,
		roomID, msg.ID, msg.Sender.ID, name, msg.Text, msg.Timestamp)
	return err
}

// Recent returns the newest limit rows for a room, oldest first.
func (a *Archive) Recent(ctx context.Context, roomID string, limit int) ([]Row, error) {
	var rows []Row
	err := a.db.SelectContext(ctx, &rows,
		`SELECT id, room_id, message_id, sender_id, sender_name, content, sent_at, archived_at
         FROM (
             SELECT * FROM archived_messages WHERE room_id=$1 ORDER BY archived_at DESC LIMIT $2
         ) recent
         ORDER BY archived_at ASC`,
		roomID, limit)
	return rows, err
}
