package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

const lastIgnOffKey = "last_ign_off_time"

// SQLiteConfig contains SQLite connection configuration
type SQLiteConfig struct {
	// Path is the database file path
	Path string
	// WAL enables Write-Ahead Logging mode
	WAL bool
}

// SQLiteStore persists records in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// NewSQLiteStore opens the database and runs migrations
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) configurePragmas(ctx context.Context, wal bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS resume_records (
			policy_app_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			hmi_app_id INTEGER NOT NULL,
			app_name TEXT,
			is_media INTEGER NOT NULL DEFAULT 0,
			is_navigation INTEGER NOT NULL DEFAULT 0,
			hmi_level TEXT NOT NULL,
			audio_state TEXT NOT NULL,
			hash_id TEXT,
			ign_off_count INTEGER NOT NULL DEFAULT 0,
			time_stamp TEXT NOT NULL,
			device_mac TEXT,
			disconnected_before_ign_off INTEGER NOT NULL DEFAULT 0,
			content TEXT,
			PRIMARY KEY (policy_app_id, device_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resume_records_hmi_app_id ON resume_records(hmi_app_id)`,
		`CREATE TABLE IF NOT EXISTS last_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Load returns all records ordered by key
func (s *SQLiteStore) Load(ctx context.Context) ([]*types.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_app_id, device_id, hmi_app_id, app_name, is_media, is_navigation,
			hmi_level, audio_state, hash_id, ign_off_count, time_stamp, device_mac,
			disconnected_before_ign_off, content
		FROM resume_records
		ORDER BY policy_app_id, device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*types.Record
	for rows.Next() {
		var (
			r                   types.Record
			appName, hash, mac  sql.NullString
			content             sql.NullString
			timeStamp           string
			media, navi, discon bool
		)
		if err := rows.Scan(&r.PolicyAppID, &r.DeviceID, &r.HMIAppID, &appName, &media, &navi,
			&r.HMILevel, &r.AudioState, &hash, &r.IgnitionCycles, &timeStamp, &mac,
			&discon, &content); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.AppName = appName.String
		r.HashID = hash.String
		r.DeviceMAC = mac.String
		r.IsMedia = media
		r.IsNavigation = navi
		r.DisconnectedBeforeIgnOff = discon
		if r.TimeStamp, err = time.Parse(time.RFC3339Nano, timeStamp); err != nil {
			return nil, fmt.Errorf("failed to parse time_stamp of %s: %w", r.Key(), err)
		}
		if content.Valid && content.String != "" {
			if err := sonic.UnmarshalString(content.String, &r.Content); err != nil {
				return nil, fmt.Errorf("failed to decode content of %s: %w", r.Key(), err)
			}
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Save replaces the stored record set in one transaction
func (s *SQLiteStore) Save(ctx context.Context, records []*types.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resume_records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO resume_records (
			policy_app_id, device_id, hmi_app_id, app_name, is_media, is_navigation,
			hmi_level, audio_state, hash_id, ign_off_count, time_stamp, device_mac,
			disconnected_before_ign_off, content
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(policy_app_id, device_id) DO UPDATE SET
			hmi_app_id = excluded.hmi_app_id,
			app_name = excluded.app_name,
			is_media = excluded.is_media,
			is_navigation = excluded.is_navigation,
			hmi_level = excluded.hmi_level,
			audio_state = excluded.audio_state,
			hash_id = excluded.hash_id,
			ign_off_count = excluded.ign_off_count,
			time_stamp = excluded.time_stamp,
			device_mac = excluded.device_mac,
			disconnected_before_ign_off = excluded.disconnected_before_ign_off,
			content = excluded.content`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r == nil {
			continue
		}
		content, err := sonic.MarshalString(r.Content)
		if err != nil {
			return fmt.Errorf("failed to encode content of %s: %w", r.Key(), err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.PolicyAppID, r.DeviceID, r.HMIAppID, r.AppName, r.IsMedia, r.IsNavigation,
			string(r.HMILevel), string(r.AudioState), r.HashID, r.IgnitionCycles,
			r.TimeStamp.UTC().Format(time.RFC3339Nano), r.DeviceMAC,
			r.DisconnectedBeforeIgnOff, content,
		); err != nil {
			return fmt.Errorf("failed to save %s: %w", r.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// GetLastIgnOffTime returns the stored ignition-off time
func (s *SQLiteStore) GetLastIgnOffTime(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM last_state WHERE key = ?`, lastIgnOffKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read %s: %w", lastIgnOffKey, err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", lastIgnOffKey, err)
	}
	return t, nil
}

// SetLastIgnOffTime stores the ignition-off time
func (s *SQLiteStore) SetLastIgnOffTime(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastIgnOffKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", lastIgnOffKey, err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
