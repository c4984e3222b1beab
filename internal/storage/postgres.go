package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clanbot/internal/event"
	logx "clanbot/pkg/logx"
)

const pgMigration = `
CREATE TABLE IF NOT EXISTS events (
    id    BIGSERIAL PRIMARY KEY,
    event JSONB NOT NULL,
    CONSTRAINT name_is_defined CHECK (event ? 'name' AND NOT event->>'name' IS NULL)
);
CREATE INDEX IF NOT EXISTS idx_events_name          ON events ((event->>'name'));
CREATE INDEX IF NOT EXISTS idx_events_start         ON events (((event->'when'->>'start')::timestamptz));
CREATE INDEX IF NOT EXISTS idx_events_end           ON events (((event->'when'->>'end')::timestamptz));
CREATE INDEX IF NOT EXISTS idx_events_creator_guild ON events ((event->'guilds'->'creator'->>'discordId'));
CREATE INDEX IF NOT EXISTS idx_events_other_guilds  ON events USING gin ((event->'guilds'->'others') jsonb_path_ops);
`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	st := &postgresStore{pool: pool, log: log}
	if _, err := pool.Exec(ctx, pgMigration); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("postgres store ready")
	return st, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) UpsertEvent(ctx context.Context, ev *event.Event) (int64, error) {
	doc, err := encodeEvent(ev)
	if err != nil {
		return 0, err
	}
	var id int64
	if ev.ID == 0 {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO events (event) VALUES ($1) RETURNING id`, doc,
		).Scan(&id)
	} else {
		err = s.pool.QueryRow(ctx,
			`UPDATE events SET event = $2 WHERE id = $1 RETURNING id`, ev.ID, doc,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *postgresStore) FetchEvent(ctx context.Context, id int64) (*event.Event, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT event FROM events WHERE id = $1`, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(id, raw)
}

func (s *postgresStore) FetchEventsBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT id, event FROM events
		 WHERE (event->'when'->>'start')::timestamptz <= $2
		   AND (event->'when'->>'end')::timestamptz   >  $1
		 ORDER BY id`,
		from.UTC(), to.UTC(),
	)
}

func (s *postgresStore) FetchGuildEvents(ctx context.Context, guildID string) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT id, event FROM events
		 WHERE event->'guilds'->'others' @> jsonb_build_array(jsonb_build_object('discordId', $1::text))
		    OR event->'guilds'->'creator'->>'discordId' = $1::text
		 ORDER BY id`,
		guildID,
	)
}

func (s *postgresStore) FetchGuildEventsBetween(ctx context.Context, guildID string, from, to time.Time) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT id, event FROM events
		 WHERE (event->'guilds'->'others' @> jsonb_build_array(jsonb_build_object('discordId', $1::text))
		    OR event->'guilds'->'creator'->>'discordId' = $1::text)
		   AND (event->'when'->>'start')::timestamptz <= $3
		   AND (event->'when'->>'end')::timestamptz   >  $2
		 ORDER BY id`,
		guildID, from.UTC(), to.UTC(),
	)
}

func (s *postgresStore) FetchParticipantEvents(ctx context.Context, discordID string) ([]*event.Event, error) {
	return s.fetchMany(ctx,
		`SELECT DISTINCT e.id, e.event FROM events e,
		        jsonb_array_elements(e.event->'teams') teams
		 WHERE teams->'participants' @> jsonb_build_array(jsonb_build_object('discordId', $1::text))
		 ORDER BY e.id`,
		discordID,
	)
}

func (s *postgresStore) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) fetchMany(ctx context.Context, query string, args ...any) ([]*event.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		ev, err := decodeEvent(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
