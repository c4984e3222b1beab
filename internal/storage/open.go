package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"clanbot/internal/event"
	logx "clanbot/pkg/logx"
)

// Store is the persistence API used by the commands and the scheduler.
// Events are stored as a single JSON document per row; queries reach into
// the document rather than a normalized schema.
type Store interface {
	// UpsertEvent inserts the event when its ID is zero and updates it
	// otherwise. It returns the row id.
	UpsertEvent(ctx context.Context, ev *event.Event) (int64, error)
	// FetchEvent returns ErrNotFound when no event has the given id.
	FetchEvent(ctx context.Context, id int64) (*event.Event, error)
	// FetchEventsBetween returns events whose window touches [from, to]:
	// start <= to and end > from.
	FetchEventsBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error)
	// FetchGuildEvents returns events the guild created or competes in.
	FetchGuildEvents(ctx context.Context, guildID string) ([]*event.Event, error)
	FetchGuildEventsBetween(ctx context.Context, guildID string, from, to time.Time) ([]*event.Event, error)
	// FetchParticipantEvents returns events in which the Discord user is
	// signed up on any team.
	FetchParticipantEvents(ctx context.Context, discordID string) ([]*event.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
	Close() error
}

// Open initializes the configured store and runs migrations.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "postgres", "pgx":
		return openPostgres(ctx, cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
