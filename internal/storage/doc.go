package storage

// Package storage persists events as JSON documents, one row per event.
//
// Two drivers are supported: PostgreSQL (JSONB column, queried with jsonb
// operators) and SQLite (TEXT column, queried with json_extract). Both
// expose the same Store interface, so callers never see the driver.
