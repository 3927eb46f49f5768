package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// BookingKey identifies one lesson slot.
type BookingKey struct {
	InstructorID uint32
	Day          UnixTime
	Minute       MinuteOfDay
}

// Ledger remembers bookings made by earlier runs so a periodic job never books the same slot twice.
// It also stores the calendar OAuth token.
type Ledger struct {
	db *sql.DB
}

func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	ledger := &Ledger{db: db}
	if err := ledger.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	var dbVersion int
	err := l.db.QueryRow("SELECT version FROM db_version WHERE name='lessonsignup'").Scan(&dbVersion)
	if err != nil {
		_, err = l.db.Exec(`CREATE TABLE IF NOT EXISTS db_version (
			name TEXT PRIMARY KEY,
			version INTEGER
		)`)
		if err != nil {
			return fmt.Errorf("error creating db_version table: %w", err)
		}
		_, err = l.db.Exec(`INSERT OR IGNORE INTO db_version (name, version) VALUES ('lessonsignup', 0)`)
		if err != nil {
			return fmt.Errorf("error initializing db_version table: %w", err)
		}
		dbVersion = 0
	}

	if dbVersion == 0 {
		_, err = l.db.Exec(`CREATE TABLE IF NOT EXISTS tokens (
		account_name TEXT PRIMARY KEY,
		token TEXT)`)
		if err != nil {
			return fmt.Errorf("error creating tokens table: %w", err)
		}

		_, err = l.db.Exec(`CREATE TABLE IF NOT EXISTS bookings (
			instructor_id INTEGER,
			day INTEGER,
			minute INTEGER,
			booked_at TEXT,
			event_id TEXT DEFAULT '',
			PRIMARY KEY (instructor_id, day, minute)
		)`)
		if err != nil {
			return fmt.Errorf("error creating bookings table: %w", err)
		}

		_, err = l.db.Exec(`UPDATE db_version SET version = 1 WHERE name = 'lessonsignup'`)
		if err != nil {
			return fmt.Errorf("error updating db_version table: %w", err)
		}
	}
	return nil
}

func (l *Ledger) IsBooked(ctx context.Context, key BookingKey) (bool, error) {
	var count int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE instructor_id = ? AND day = ? AND minute = ?",
		key.InstructorID, int64(key.Day), int(key.Minute)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("error checking booking ledger: %w", err)
	}
	return count > 0, nil
}

func (l *Ledger) RecordBooking(ctx context.Context, key BookingKey, bookedAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `INSERT INTO bookings (instructor_id, day, minute, booked_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (instructor_id, day, minute) DO UPDATE SET booked_at = excluded.booked_at`,
		key.InstructorID, int64(key.Day), int(key.Minute), bookedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("error recording booking: %w", err)
	}
	return nil
}

func (l *Ledger) SetEventID(ctx context.Context, key BookingKey, eventID string) error {
	_, err := l.db.ExecContext(ctx, "UPDATE bookings SET event_id = ? WHERE instructor_id = ? AND day = ? AND minute = ?",
		eventID, key.InstructorID, int64(key.Day), int(key.Minute))
	if err != nil {
		return fmt.Errorf("error saving calendar event id: %w", err)
	}
	return nil
}

func (l *Ledger) SaveToken(accountName string, token *oauth2.Token) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return err
	}

	_, err = l.db.Exec("INSERT OR REPLACE INTO tokens (account_name, token) VALUES (?, ?)", accountName, tokenJSON)
	return err
}

// LoadToken returns nil when no token is stored for accountName.
func (l *Ledger) LoadToken(accountName string) (*oauth2.Token, error) {
	var tokenJSON []byte
	err := l.db.QueryRow("SELECT token FROM tokens WHERE account_name = ?", accountName).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error retrieving token from database: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("error unmarshaling token: %w", err)
	}
	return &token, nil
}
