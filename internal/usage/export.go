package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Export is the document written by ExportJSON.
type Export struct {
	Summary  Summary         `json:"summary"`
	Forecast Forecast        `json:"forecast"`
	Alerts   []Alert         `json:"alerts"`
	History  []HistoryRecord `json:"history"`
}

func (t *Tracker) export() Export {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFunc()
	t.roll(now)
	return Export{
		Summary:  t.summary(now),
		Forecast: t.forecast(now),
		Alerts:   append([]Alert{}, t.alerts...),
		History:  append([]HistoryRecord{}, t.history...),
	}
}

// ExportJSON writes the summary, forecast, alerts and history as indented JSON.
func (t *Tracker) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t.export()); err != nil {
		return eris.Wrap(err, "usage: encode export")
	}
	return nil
}

const exportSchema = `
CREATE TABLE IF NOT EXISTS usage_windows (
	exported_at DATETIME NOT NULL,
	win         TEXT NOT NULL,
	start       DATETIME NOT NULL,
	requests    INTEGER NOT NULL,
	successes   INTEGER NOT NULL,
	failures    INTEGER NOT NULL,
	cost        REAL NOT NULL,
	tokens      INTEGER NOT NULL,
	budget      REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_providers (
	exported_at      DATETIME NOT NULL,
	provider         TEXT NOT NULL,
	requests         INTEGER NOT NULL,
	successes        INTEGER NOT NULL,
	failures         INTEGER NOT NULL,
	cost             REAL NOT NULL,
	tokens           INTEGER NOT NULL,
	avg_latency_ms   INTEGER NOT NULL,
	avg_confidence   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_history (
	id          TEXT PRIMARY KEY,
	request_id  TEXT,
	ts          DATETIME NOT NULL,
	provider    TEXT NOT NULL,
	url         TEXT NOT NULL,
	success     INTEGER NOT NULL,
	confidence  REAL NOT NULL,
	cost        REAL NOT NULL,
	tokens      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error_kind  TEXT
);

CREATE INDEX IF NOT EXISTS idx_usage_history_provider ON usage_history(provider);
CREATE INDEX IF NOT EXISTS idx_usage_history_ts ON usage_history(ts);
`

// ExportSQLite appends a snapshot of windows and providers to the SQLite
// database at path and upserts the history records.
func (t *Tracker) ExportSQLite(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "usage: open sqlite")
	}
	defer db.Close() //nolint:errcheck

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return eris.Wrap(err, "usage: sqlite pragma")
	}
	if _, err := db.ExecContext(ctx, exportSchema); err != nil {
		return eris.Wrap(err, "usage: sqlite migrate")
	}

	snap := t.export()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "usage: begin export")
	}
	defer tx.Rollback() //nolint:errcheck

	at := snap.Summary.GeneratedAt
	for _, w := range AllWindows() {
		p := snap.Summary.Windows[w]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_windows (exported_at, win, start, requests, successes, failures, cost, tokens, budget)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			at, string(w), p.Start, p.Requests, p.Successes, p.Failures, p.Cost, p.Tokens, p.Budget,
		); err != nil {
			return eris.Wrapf(err, "usage: insert %s window", w)
		}
	}

	for name, ps := range snap.Summary.Providers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_providers (exported_at, provider, requests, successes, failures, cost, tokens, avg_latency_ms, avg_confidence)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			at, name, ps.Requests, ps.Successes, ps.Failures, ps.Cost, ps.Tokens,
			ps.AvgLatency.Milliseconds(), ps.AvgConfidence,
		); err != nil {
			return eris.Wrapf(err, "usage: insert provider %s", name)
		}
	}

	for _, r := range snap.History {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO usage_history (id, request_id, ts, provider, url, success, confidence, cost, tokens, duration_ms, error_kind)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.RequestID, r.Timestamp, r.Provider, r.URL, r.Success, r.Confidence, r.Cost, r.Tokens,
			r.Duration.Milliseconds(), string(r.ErrorKind),
		); err != nil {
			return eris.Wrapf(err, "usage: insert history %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "usage: commit export")
	}
	return nil
}
