package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/almastelek/PredMrkt/internal/domain"
	"github.com/almastelek/PredMrkt/internal/infra"
)

// Store is the SQLite event log plus metadata tables. Single writer (the
// ingest loop); readers may open a second Store on the same path since the
// database runs in WAL mode.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := infra.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS raw_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			venue       TEXT NOT NULL,
			channel     TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			market_id   TEXT NOT NULL,
			asset_id    TEXT,
			exchange_ts INTEGER,
			ingest_ts   INTEGER NOT NULL,
			payload     BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_raw_events_market
			ON raw_events (market_id, ingest_ts);`,
		`CREATE TABLE IF NOT EXISTS markets (
			market_id    TEXT PRIMARY KEY,
			venue        TEXT NOT NULL,
			title        TEXT,
			category     TEXT,
			volume_24h   REAL,
			liquidity    REAL,
			active       INTEGER,
			outcomes     TEXT,
			last_updated INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS tracked_markets (
			market_id TEXT PRIMARY KEY,
			venue     TEXT NOT NULL,
			added_at  INTEGER NOT NULL,
			pinned    INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS book_snapshots (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			market_id TEXT NOT NULL,
			asset_id  TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			best_bid  REAL,
			best_ask  REAL,
			mid_price REAL,
			spread    REAL,
			bids_json TEXT,
			asks_json TEXT,
			imbalance REAL
		);`,
		`CREATE TABLE IF NOT EXISTS sim_runs (
			run_id           TEXT PRIMARY KEY,
			strategy_name    TEXT NOT NULL,
			market_id        TEXT NOT NULL,
			params           TEXT,
			final_inventory  REAL,
			realized_pnl     REAL,
			fill_count       INTEGER,
			events_processed INTEGER,
			created_at       INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// RawEventRow is one append-only log entry: the venue's exact payload plus
// routing metadata extracted at ingest time.
type RawEventRow struct {
	Venue      string
	Channel    string
	EventType  string
	MarketID   string
	AssetID    string
	ExchangeTS int64
	IngestTS   int64
	Payload    []byte
}

// AppendRawEvents writes a batch inside one transaction.
func (s *Store) AppendRawEvents(ctx context.Context, rows []RawEventRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_events (venue, channel, event_type, market_id, asset_id, exchange_ts, ingest_ts, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Venue, r.Channel, r.EventType, r.MarketID, r.AssetID,
			nullableTS(r.ExchangeTS), r.IngestTS, r.Payload); err != nil {
			return fmt.Errorf("insert raw event: %w", err)
		}
	}

	return tx.Commit()
}

func nullableTS(ts int64) any {
	if ts == 0 {
		return nil
	}
	return ts
}

// LogStats summarizes the raw event log.
type LogStats struct {
	TotalEvents int64
	MinIngestTS int64
	MaxIngestTS int64
	ByMarket    []MarketCount
}

type MarketCount struct {
	MarketID string
	Count    int64
}

// Stats returns totals, the ingest time range, and per-market counts
// (top 20 by volume of events).
func (s *Store) Stats(ctx context.Context) (LogStats, error) {
	var st LogStats

	var minTS, maxTS sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(ingest_ts), MAX(ingest_ts) FROM raw_events").
		Scan(&st.TotalEvents, &minTS, &maxTS)
	if err != nil {
		return st, fmt.Errorf("log stats: %w", err)
	}
	st.MinIngestTS = minTS.Int64
	st.MaxIngestTS = maxTS.Int64

	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, COUNT(*) AS cnt FROM raw_events
		GROUP BY market_id ORDER BY cnt DESC LIMIT 20`)
	if err != nil {
		return st, fmt.Errorf("per-market stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mc MarketCount
		if err := rows.Scan(&mc.MarketID, &mc.Count); err != nil {
			return st, err
		}
		st.ByMarket = append(st.ByMarket, mc)
	}
	return st, rows.Err()
}

// UpsertMarkets refreshes the market metadata cache.
func (s *Store) UpsertMarkets(ctx context.Context, markets []domain.Market) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO markets (market_id, venue, title, category, volume_24h, liquidity, active, outcomes, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
			venue=excluded.venue, title=excluded.title, category=excluded.category,
			volume_24h=excluded.volume_24h, liquidity=excluded.liquidity,
			active=excluded.active, outcomes=excluded.outcomes, last_updated=excluded.last_updated`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range markets {
		outcomes, err := json.Marshal(m.Outcomes)
		if err != nil {
			return fmt.Errorf("marshal outcomes for %s: %w", m.MarketID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			m.MarketID, m.Venue, m.Title, m.Category,
			m.Volume24h, m.Liquidity, m.Active, string(outcomes), m.LastUpdated); err != nil {
			return fmt.Errorf("upsert market %s: %w", m.MarketID, err)
		}
	}
	return tx.Commit()
}

// GetMarket loads one market from the metadata cache.
func (s *Store) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	var m domain.Market
	var outcomes string
	err := s.db.QueryRowContext(ctx, `
		SELECT market_id, venue, title, category, volume_24h, liquidity, active, outcomes, last_updated
		FROM markets WHERE market_id = ?`, marketID).
		Scan(&m.MarketID, &m.Venue, &m.Title, &m.Category,
			&m.Volume24h, &m.Liquidity, &m.Active, &outcomes, &m.LastUpdated)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(outcomes), &m.Outcomes); err != nil {
		return m, fmt.Errorf("decode outcomes for %s: %w", marketID, err)
	}
	return m, nil
}

// SetTrackedMarkets replaces the tracked set. Pinned rows survive the
// replacement: unpinned rows are removed, markets already present keep
// their added_at and pinned flag.
func (s *Store) SetTrackedMarkets(ctx context.Context, marketIDs []string, venue string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tracked_markets WHERE pinned = 0"); err != nil {
		return fmt.Errorf("clear tracked: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, id := range marketIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tracked_markets (market_id, venue, added_at, pinned)
			VALUES (?, ?, ?, 0)
			ON CONFLICT(market_id) DO NOTHING`, id, venue, now); err != nil {
			return fmt.Errorf("track market %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// PinMarket marks a market as pinned so reselection never drops it.
func (s *Store) PinMarket(ctx context.Context, marketID, venue string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_markets (market_id, venue, added_at, pinned)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(market_id) DO UPDATE SET pinned=1`,
		marketID, venue, time.Now().UnixMilli())
	return err
}

// TrackedMarketIDs returns the currently tracked market ids.
func (s *Store) TrackedMarketIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT market_id FROM tracked_markets ORDER BY added_at ASC")
	if err != nil {
		return nil, fmt.Errorf("query tracked: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TrackedAssetIDs resolves the tracked markets to their outcome token ids
// via the markets cache. Markets without cached metadata are skipped.
func (s *Store) TrackedAssetIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.outcomes FROM tracked_markets t
		JOIN markets m ON m.market_id = t.market_id`)
	if err != nil {
		return nil, fmt.Errorf("query tracked assets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var outcomes []domain.Outcome
		if err := json.Unmarshal([]byte(raw), &outcomes); err != nil {
			continue
		}
		for _, o := range outcomes {
			if o.TokenID != "" {
				ids = append(ids, o.TokenID)
			}
		}
	}
	return ids, rows.Err()
}

// AppendBookSnapshot persists a derived book state row.
func (s *Store) AppendBookSnapshot(ctx context.Context, snap domain.BookSnapshot, mid, spread, imbalance float64) error {
	bids, err := json.Marshal(snap.Bids)
	if err != nil {
		return err
	}
	asks, err := json.Marshal(snap.Asks)
	if err != nil {
		return err
	}

	var bestBid, bestAsk any
	if len(snap.Bids) > 0 {
		bestBid = snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		bestAsk = snap.Asks[0].Price
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO book_snapshots (market_id, asset_id, timestamp, best_bid, best_ask, mid_price, spread, bids_json, asks_json, imbalance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.MarketID, snap.AssetID, snap.IngestTS,
		bestBid, bestAsk, mid, spread, string(bids), string(asks), imbalance)
	return err
}

// SimRun is a persisted strategy simulation result.
type SimRun struct {
	RunID           string
	StrategyName    string
	MarketID        string
	Params          map[string]any
	FinalInventory  float64
	RealizedPnL     float64
	FillCount       int
	EventsProcessed int
	CreatedAt       int64
}

// InsertSimRun records a finished simulation.
func (s *Store) InsertSimRun(ctx context.Context, run SimRun) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sim_runs (run_id, strategy_name, market_id, params, final_inventory, realized_pnl, fill_count, events_processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StrategyName, run.MarketID, string(params),
		run.FinalInventory, run.RealizedPnL, run.FillCount, run.EventsProcessed, run.CreatedAt)
	return err
}

// ListSimRuns returns past runs, newest first.
func (s *Store) ListSimRuns(ctx context.Context, limit int) ([]SimRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, strategy_name, market_id, params, final_inventory, realized_pnl, fill_count, events_processed, created_at
		FROM sim_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SimRun
	for rows.Next() {
		var r SimRun
		var params sql.NullString
		if err := rows.Scan(&r.RunID, &r.StrategyName, &r.MarketID, &params,
			&r.FinalInventory, &r.RealizedPnL, &r.FillCount, &r.EventsProcessed, &r.CreatedAt); err != nil {
			return nil, err
		}
		if params.Valid && params.String != "" {
			_ = json.Unmarshal([]byte(params.String), &r.Params)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// StreamRawEvents replays the log in insertion order, calling fn for each
// payload. The market filter matches in canonical form (no 0x, lowercase)
// because Gamma and the WS feed disagree on the prefix. A zero startTS or
// endTS leaves that bound open. fn returning false stops the stream.
func (s *Store) StreamRawEvents(ctx context.Context, marketID string, startTS, endTS int64, fn func(payload []byte, ingestTS int64) bool) error {
	query := "SELECT payload, ingest_ts FROM raw_events WHERE 1=1"
	var args []any
	if marketID != "" {
		query += " AND LOWER(REPLACE(TRIM(market_id), '0x', '')) = ?"
		args = append(args, canonicalMarketID(marketID))
	}
	if startTS > 0 {
		query += " AND ingest_ts >= ?"
		args = append(args, startTS)
	}
	if endTS > 0 {
		query += " AND ingest_ts <= ?"
		args = append(args, endTS)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query raw events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		var ingestTS int64
		if err := rows.Scan(&payload, &ingestTS); err != nil {
			return err
		}
		if !fn(payload, ingestTS) {
			return nil
		}
	}
	return rows.Err()
}

func canonicalMarketID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
