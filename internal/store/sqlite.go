package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/models"
)

// SQLiteStore keeps candle rows and the signal journal in one SQLite
// database. It satisfies the same append-only contract as CSVStore.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.NewValidationError("db_path", dbPath, "must not be empty")
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Raw candle rows, append-only, one row per fetched line
	CREATE TABLE IF NOT EXISTS candle_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		inst_id TEXT NOT NULL,
		bar TEXT NOT NULL,
		ts TEXT NOT NULL,
		open TEXT,
		high TEXT,
		low TEXT,
		close TEXT,
		vol TEXT,
		vol_ccy TEXT,
		vol_ccy_quote TEXT,
		confirm TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Evaluated signals
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		inst_id TEXT NOT NULL,
		bar TEXT NOT NULL,
		policy TEXT NOT NULL,
		side TEXT NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_candle_rows_series ON candle_rows(inst_id, bar, ts);
	CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) handle(instID, bar string) string {
	return fmt.Sprintf("sqlite://%s#%s", s.path, artifactName(instID, bar))
}

// ============================================================================
// Candle rows
// ============================================================================

// AppendRows implements CandleSink.
func (s *SQLiteStore) AppendRows(ctx context.Context, instID, bar string, rows [][]string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candle_rows (inst_id, bar, ts, open, high, low, close, vol, vol_ccy, vol_ccy_quote, confirm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, raw := range rows {
		r := models.NormalizeRow(raw)
		if _, err := stmt.ExecContext(ctx, instID, bar, r[0], r[1], r[2], r[3], r[4], r[5], r[6], r[7], r[8]); err != nil {
			return "", fmt.Errorf("failed to insert candle row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.handle(instID, bar), nil
}

// ReadCandles implements CandleReader.
func (s *SQLiteStore) ReadCandles(ctx context.Context, instID, bar string) (*models.CandleSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, vol, vol_ccy, vol_ccy_quote, confirm
		FROM candle_rows
		WHERE inst_id = ? AND bar = ?
		ORDER BY id ASC
	`, instID, bar)
	if err != nil {
		return nil, fmt.Errorf("failed to query candle rows: %w", err)
	}
	defer rows.Close()

	var raw [][]string
	for rows.Next() {
		var r [9]sql.NullString
		if err := rows.Scan(&r[0], &r[1], &r[2], &r[3], &r[4], &r[5], &r[6], &r[7], &r[8]); err != nil {
			return nil, fmt.Errorf("failed to scan candle row: %w", err)
		}
		line := make([]string, len(r))
		for i := range r {
			line[i] = r[i].String
		}
		raw = append(raw, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s %s: %w", instID, bar, errors.ErrArtifactNotFound)
	}
	return &models.CandleSeries{InstID: instID, Bar: bar, Rows: dedupeNewestFirst(raw)}, nil
}

// List returns one artifact per stored (instrument, bar) series.
func (s *SQLiteStore) List(ctx context.Context) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inst_id, bar, COUNT(*), MAX(created_at)
		FROM candle_rows
		GROUP BY inst_id, bar
		ORDER BY inst_id, bar
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var (
			instID, bar string
			count       int
			last        string
		)
		if err := rows.Scan(&instID, &bar, &count, &last); err != nil {
			return nil, fmt.Errorf("failed to scan series: %w", err)
		}
		out = append(out, Artifact{
			Name:    artifactName(instID, bar),
			Path:    s.handle(instID, bar),
			Rows:    count,
			ModTime: parseSQLiteTime(last),
		})
	}
	return out, rows.Err()
}

// ============================================================================
// Signal journal
// ============================================================================

// SaveSignal implements SignalJournal.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig models.Signal) (string, error) {
	// sorted map keys keep identical signals byte-identical
	payload, err := sonic.ConfigStd.Marshal(sig)
	if err != nil {
		return "", fmt.Errorf("failed to encode signal: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (id, created_at, inst_id, bar, policy, side, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, time.Now().UTC(), sig.InstID, sig.Bar, sig.Policy, string(sig.Side), string(payload))
	if err != nil {
		return "", fmt.Errorf("failed to save signal: %w", err)
	}
	return id, nil
}

// RecentSignals implements SignalJournal, newest first.
func (s *SQLiteStore) RecentSignals(ctx context.Context, limit int) ([]StoredSignal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, payload
		FROM signals
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []StoredSignal
	for rows.Next() {
		var (
			rec     StoredSignal
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if err := sonic.UnmarshalString(payload, &rec.Signal); err != nil {
			return nil, fmt.Errorf("failed to decode signal %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// parseSQLiteTime reads CURRENT_TIMESTAMP text.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
