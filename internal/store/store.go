// Package store keeps a SQLite log of poll runs and the items they found.
// The config file stays the source of truth for watermarks; the log only
// feeds the history command.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var errNotInitialized = errors.New("store is not initialized")

type Store struct {
	db *sql.DB
}

// Run is one invocation of the poll loop.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or if the process died
	Assets     int
	Failures   int
}

// ItemInput is an item reported by a run.
type ItemInput struct {
	AssetID     string
	AssetName   string
	Platform    string
	ItemID      string
	Title       string
	URL         string
	PublishedAt time.Time
	SeenAt      time.Time
}

// Item is a recorded item. FirstSeenAt and RunID come from the run that
// first reported it.
type Item struct {
	AssetID     string
	AssetName   string
	Platform    string
	ItemID      string
	Title       string
	URL         string
	PublishedAt time.Time
	FirstSeenAt time.Time
	RunID       string
}

// AssetStats aggregates recorded items per asset.
type AssetStats struct {
	AssetID       string
	AssetName     string
	Platform      string
	Items         int
	LastPublished time.Time
	LastSeen      time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Parallel polls share one connection so writes never hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun records the start of a poll run under a fresh id.
func (s *Store) StartRun(ctx context.Context, startedAt time.Time) (Run, error) {
	if s == nil || s.db == nil {
		return Run{}, errNotInitialized
	}
	run := Run{ID: uuid.NewString(), StartedAt: startedAt}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at) VALUES (?, ?)",
		run.ID, formatTime(startedAt),
	); err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun stamps a run with its end time and counts.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if run.FinishedAt.IsZero() {
		return errors.New("finished_at is required")
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, assets = ?, failures = ? WHERE id = ?",
		formatTime(run.FinishedAt), run.Assets, run.Failures, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %q", run.ID)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *Store) LastRun(ctx context.Context) (Run, bool, error) {
	if s == nil || s.db == nil {
		return Run{}, false, errNotInitialized
	}
	var (
		run              Run
		startedAt        string
		finishedAt       sql.NullString
		assets, failures int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, assets, failures
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &startedAt, &finishedAt, &assets, &failures)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("last run: %w", err)
	}
	run.Assets, run.Failures = assets, failures
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, false, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return Run{}, false, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, true, nil
}

// RecordItems stores the items a run reported. Items already recorded for
// the same asset keep their first sighting. Returns how many were new.
func (s *Store) RecordItems(ctx context.Context, runID string, items []ItemInput) (int, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin record: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (
			asset_id, asset_name, platform, item_id, title, url, published_at, first_seen_at, run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, item_id) DO NOTHING
	`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare record: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var runVal sql.NullString
	if runID != "" {
		runVal = sql.NullString{String: runID, Valid: true}
	}

	added := 0
	for _, in := range items {
		if strings.TrimSpace(in.AssetID) == "" || strings.TrimSpace(in.ItemID) == "" {
			_ = tx.Rollback()
			return 0, errors.New("asset_id and item_id are required")
		}
		if in.SeenAt.IsZero() {
			_ = tx.Rollback()
			return 0, errors.New("seen_at is required")
		}
		res, err := stmt.ExecContext(ctx,
			in.AssetID, in.AssetName, in.Platform, in.ItemID, in.Title, in.URL,
			formatTime(in.PublishedAt), formatTime(in.SeenAt), runVal,
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("record item %s: %w", in.ItemID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit record: %w", err)
	}
	return added, nil
}

// RecentItems returns items first seen at or after since, newest publication
// first. An empty assetID means every asset.
func (s *Store) RecentItems(ctx context.Context, since time.Time, assetID string) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	query := `
		SELECT asset_id, asset_name, platform, item_id, title, url, published_at, first_seen_at, run_id
		FROM items
		WHERE first_seen_at >= ?`
	args := []any{formatTime(since)}
	if assetID != "" {
		query += " AND asset_id = ?"
		args = append(args, assetID)
	}
	query += " ORDER BY published_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// AssetStats returns per-asset aggregates for items first seen since the given time.
func (s *Store) AssetStats(ctx context.Context, since time.Time) ([]AssetStats, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, MAX(asset_name), MAX(platform),
			COUNT(*) AS total,
			MAX(published_at) AS last_published,
			MAX(first_seen_at) AS last_seen
		FROM items
		WHERE first_seen_at >= ?
		GROUP BY asset_id
		ORDER BY MAX(asset_name), asset_id
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("asset stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []AssetStats
	for rows.Next() {
		var (
			as                      AssetStats
			lastPublished, lastSeen string
		)
		if err := rows.Scan(&as.AssetID, &as.AssetName, &as.Platform, &as.Items, &lastPublished, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan asset stats: %w", err)
		}
		if as.LastPublished, err = parseTime(lastPublished); err != nil {
			return nil, fmt.Errorf("parse last_published: %w", err)
		}
		if as.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		stats = append(stats, as)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset stats: %w", err)
	}
	return stats, nil
}

// PruneOld deletes items first seen more than retainDays ago and runs started
// before the same cutoff. Returns the number of items removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM items WHERE first_seen_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old items: %w", err)
	}
	// Remaining items pointing at pruned runs get run_id set to NULL.
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(scanner rowScanner) (Item, error) {
	var (
		it                     Item
		publishedAt, firstSeen string
		runID                  sql.NullString
	)
	if err := scanner.Scan(
		&it.AssetID,
		&it.AssetName,
		&it.Platform,
		&it.ItemID,
		&it.Title,
		&it.URL,
		&publishedAt,
		&firstSeen,
		&runID,
	); err != nil {
		return Item{}, fmt.Errorf("scan item: %w", err)
	}
	it.RunID = runID.String

	var err error
	if it.PublishedAt, err = parseTime(publishedAt); err != nil {
		return Item{}, fmt.Errorf("parse published_at: %w", err)
	}
	if it.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return Item{}, fmt.Errorf("parse first_seen_at: %w", err)
	}
	return it, nil
}

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
