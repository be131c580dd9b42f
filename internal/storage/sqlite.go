package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"repost_bot/internal/model"
	"repost_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// Handlers record reposts from many goroutines; :memory: databases
	// exist per connection, so keep a single one.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// RecordRepost inserts a repost and populates its ID and DetectedAt.
func (s *SQLite) RecordRepost(ctx context.Context, r *model.RepostRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate id: %w", err)
	}
	now := s.now().UTC().Format(timeLayout)

	var postedAt *string
	if !r.OriginalPostedAt.IsZero() {
		v := r.OriginalPostedAt.UTC().Format(timeLayout)
		postedAt = &v
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reposts (id, kind, fingerprint, channel_id, message_id, author_id, author_name,
		                      original_author_id, original_author_name, original_link, original_posted_at, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), string(r.Kind), r.Fingerprint, r.ChannelID, r.MessageID, r.AuthorID, r.AuthorName,
		r.OriginalAuthorID, r.OriginalAuthorName, r.OriginalLink, postedAt, now,
	)
	if err != nil {
		return fmt.Errorf("insert repost: %w", err)
	}
	r.ID = id.String()
	r.DetectedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListReposts returns up to limit reposts of a channel, newest first.
// An empty channelID lists all channels.
func (s *SQLite) ListReposts(ctx context.Context, channelID string, limit int) ([]model.RepostRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, fingerprint, channel_id, message_id, author_id, author_name,
		        original_author_id, original_author_name, original_link, original_posted_at, detected_at
		 FROM reposts
		 WHERE ? = '' OR channel_id = ?
		 ORDER BY detected_at DESC, rowid DESC
		 LIMIT ?`,
		channelID, channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query reposts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.RepostRecord
	for rows.Next() {
		r, err := scanRepost(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountReposts returns the number of reposts recorded in a channel.
// An empty channelID counts all channels.
func (s *SQLite) CountReposts(ctx context.Context, channelID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reposts WHERE ? = '' OR channel_id = ?`,
		channelID, channelID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reposts: %w", err)
	}
	return count, nil
}

// TopReposters returns the authors with the most reposts in a channel.
// An empty channelID covers all channels.
func (s *SQLite) TopReposters(ctx context.Context, channelID string, limit int) ([]model.ReposterCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT author_id, MAX(author_name), COUNT(*) AS n
		 FROM reposts
		 WHERE ? = '' OR channel_id = ?
		 GROUP BY author_id
		 ORDER BY n DESC, author_id
		 LIMIT ?`,
		channelID, channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top reposters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var top []model.ReposterCount
	for rows.Next() {
		var rc model.ReposterCount
		if err := rows.Scan(&rc.AuthorID, &rc.AuthorName, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan reposter: %w", err)
		}
		top = append(top, rc)
	}
	return top, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRepost(row scannable) (model.RepostRecord, error) {
	var r model.RepostRecord
	var kind, detected string
	var postedAt sql.NullString
	err := row.Scan(&r.ID, &kind, &r.Fingerprint, &r.ChannelID, &r.MessageID, &r.AuthorID, &r.AuthorName,
		&r.OriginalAuthorID, &r.OriginalAuthorName, &r.OriginalLink, &postedAt, &detected)
	if err != nil {
		return r, fmt.Errorf("scan repost: %w", err)
	}
	r.Kind = model.ContentKind(kind)
	if postedAt.Valid {
		r.OriginalPostedAt, _ = time.Parse(timeLayout, postedAt.String)
	}
	r.DetectedAt, _ = time.Parse(timeLayout, detected)
	return r, nil
}
