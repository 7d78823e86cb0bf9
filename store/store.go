// Package store persists session state in a local sqlite database: the
// device credentials, the delivery watermark and the unresolved emergency
// receipts.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	openpush "github.com/openpush/go-openpush-api"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is a sqlite-backed implementation of both the credential and the
// delivery state contracts. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate state database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, string(schema))

	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored credentials, or zero credentials if none are
// stored.
func (s *Store) Load() (openpush.Credentials, error) {
	var creds openpush.Credentials

	err := s.db.QueryRow(`SELECT secret, device_id FROM credentials WHERE id = 1`).Scan(&creds.Secret, &creds.DeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return openpush.Credentials{}, nil
	} else if err != nil {
		return openpush.Credentials{}, err
	}

	return creds, nil
}

func (s *Store) Save(creds openpush.Credentials) error {
	_, err := s.db.Exec(
		`INSERT INTO credentials (id, secret, device_id) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET secret = excluded.secret, device_id = excluded.device_id`,
		creds.Secret, creds.DeviceID,
	)

	return err
}

func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`)

	return err
}

// LastMessageID returns the highest accepted message id, or 0 if the store
// is fresh.
func (s *Store) LastMessageID() (int64, error) {
	var id int64

	err := s.db.QueryRow(`SELECT last_message_id FROM engine_state WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *Store) SetLastMessageID(id int64) error {
	_, err := s.db.Exec(
		`INSERT INTO engine_state (id, last_message_id) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET last_message_id = excluded.last_message_id`,
		id,
	)

	return err
}

func (s *Store) AckStates() ([]openpush.AckState, error) {
	rows, err := s.db.Query(`SELECT receipt_id, message, acknowledged, next_retry_at, expires_at FROM ack_states`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []openpush.AckState

	for rows.Next() {
		var (
			state              openpush.AckState
			message            []byte
			nextRetry, expires string
		)

		if err := rows.Scan(&state.ReceiptID, &message, &state.Acknowledged, &nextRetry, &expires); err != nil {
			return nil, err
		}

		if err := json.Unmarshal(message, &state.Message); err != nil {
			return nil, fmt.Errorf("decode message for receipt %q: %w", state.ReceiptID, err)
		}

		if state.NextRetryAt, err = time.Parse(time.RFC3339Nano, nextRetry); err != nil {
			return nil, err
		}

		if state.ExpiresAt, err = time.Parse(time.RFC3339Nano, expires); err != nil {
			return nil, err
		}

		states = append(states, state)
	}

	return states, rows.Err()
}

// PutAckState inserts or replaces the state for its receipt. Times are kept
// at nanosecond precision so resumed schedules match persisted ones.
func (s *Store) PutAckState(state openpush.AckState) error {
	message, err := json.Marshal(state.Message)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO ack_states (receipt_id, message, acknowledged, next_retry_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (receipt_id) DO UPDATE SET
		     message = excluded.message,
		     acknowledged = excluded.acknowledged,
		     next_retry_at = excluded.next_retry_at,
		     expires_at = excluded.expires_at`,
		state.ReceiptID,
		message,
		state.Acknowledged,
		state.NextRetryAt.UTC().Format(time.RFC3339Nano),
		state.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)

	return err
}

func (s *Store) DeleteAckState(receiptID string) error {
	_, err := s.db.Exec(`DELETE FROM ack_states WHERE receipt_id = ?`, receiptID)

	return err
}
