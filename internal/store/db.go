// Package store is the persistence adapter: CRUD for rooms,
// participants, messages, and profiles over the workspace-owned
// chat.db, plus keyset pagination. Successful writes are announced on
// the change feed; backend errors are translated into the chaterr
// taxonomy. The store never touches the cache.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/CandidSocials/candidWebApp/internal/bus"
	"github.com/CandidSocials/candidWebApp/internal/chaterr"
	"github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite connection plus the change-feed sink.
type DB struct {
	*sql.DB
	feed *bus.Bus
}

// Open creates a new SQLite connection with WAL mode and recommended
// pragmas. Change events for committed writes are published on feed;
// a nil feed disables the change feed.
func Open(path string, feed *bus.Bus) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, feed: feed}, nil
}

// wrapErr translates a sqlite error into the shared taxonomy.
// Uniqueness violations are flagged so idempotent callers can recover
// by re-fetching.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	conflict := false
	if errors.As(err, &se) {
		if se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			conflict = true
		}
	}
	return &chaterr.PersistenceError{Op: op, Conflict: conflict, Err: err}
}

func notFoundRoom(id string) error {
	return &chaterr.NotFoundError{Kind: "room", ID: id}
}

func (db *DB) publish(topic string, payload any) {
	if db.feed == nil {
		return
	}
	db.feed.Publish(bus.Event{Topic: topic, Timestamp: nowTime(), Payload: payload})
}
