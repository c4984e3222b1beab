package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"clanbot/internal/event"
	logx "clanbot/pkg/logx"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS events (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    event TEXT NOT NULL CHECK (json_valid(event))
);
CREATE INDEX IF NOT EXISTS idx_events_start ON events (json_extract(event, '$.when.start'));
CREATE INDEX IF NOT EXISTS idx_events_end   ON events (json_extract(event, '$.when.end'));
`

// sqliteStore compares window boundaries lexically, which is sound because
// encodeEvent always writes RFC 3339 UTC timestamps.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite store ready", logx.String("path", cfg.Path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertEvent(ctx context.Context, ev *event.Event) (int64, error) {
	doc, err := encodeEvent(ev)
	if err != nil {
		return 0, err
	}
	if ev.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO events (event) VALUES (?)`, string(doc))
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE events SET event = ? WHERE id = ?`, string(doc), ev.ID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return ev.ID, nil
}

func (s *sqliteStore) FetchEvent(ctx context.Context, id int64) (*event.Event, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT event FROM events WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(id, []byte(raw))
}

func (s *sqliteStore) FetchEventsBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT id, event FROM events
		 WHERE json_extract(event, '$.when.start') <= ?
		   AND json_extract(event, '$.when.end')   >  ?
		 ORDER BY id`,
		iso(to), iso(from),
	)
}

func (s *sqliteStore) FetchGuildEvents(ctx context.Context, guildID string) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT id, event FROM events
		 WHERE json_extract(event, '$.guilds.creator.discordId') = ?1
		    OR EXISTS (
		        SELECT 1 FROM json_each(json_extract(event, '$.guilds.others')) g
		        WHERE json_extract(g.value, '$.discordId') = ?1)
		 ORDER BY id`,
		guildID,
	)
}

func (s *sqliteStore) FetchGuildEventsBetween(ctx context.Context, guildID string, from, to time.Time) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT id, event FROM events
		 WHERE (json_extract(event, '$.guilds.creator.discordId') = ?1
		    OR EXISTS (
		        SELECT 1 FROM json_each(json_extract(event, '$.guilds.others')) g
		        WHERE json_extract(g.value, '$.discordId') = ?1))
		   AND json_extract(event, '$.when.start') <= ?2
		   AND json_extract(event, '$.when.end')   >  ?3
		 ORDER BY id`,
		guildID, iso(to), iso(from),
	)
}

func (s *sqliteStore) FetchParticipantEvents(ctx context.Context, discordID string) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT id, event FROM events
		 WHERE EXISTS (
		     SELECT 1
		     FROM json_each(json_extract(event, '$.teams')) t,
		          json_each(json_extract(t.value, '$.participants')) p
		     WHERE json_extract(p.value, '$.discordId') = ?)
		 ORDER BY id`,
		discordID,
	)
}

func (s *sqliteStore) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) fetchMany(ctx context.Context, query string, args ...any) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		ev, err := decodeEvent(id, []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func iso(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
