package storage

import (
	"encoding/json"
	"errors"
	"time"

	"clanbot/internal/event"
)

// ErrNotFound is returned by FetchEvent when no row has the given id.
var ErrNotFound = errors.New("event not found")

// Config configures storage.
//
// Driver values:
//   - "postgres": PostgreSQL via DSN, events stored as JSONB
//   - "sqlite": SQLite database file at Path, events stored as JSON text
type Config struct {
	Driver      string
	DSN         string        // postgres only
	Path        string        // sqlite only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// encodeEvent marshals an event for the document column. Window times are
// normalized to whole-second UTC so the sqlite backend can compare the
// stored RFC 3339 strings lexically.
func encodeEvent(ev *event.Event) ([]byte, error) {
	cp := *ev
	cp.When.Start = cp.When.Start.UTC().Truncate(time.Second)
	cp.When.End = cp.When.End.UTC().Truncate(time.Second)
	return json.Marshal(&cp)
}

func decodeEvent(id int64, raw []byte) (*event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	ev.ID = id
	return &ev, nil
}
