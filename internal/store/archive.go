package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // driver registration

	"sleuth/internal/logging"
	"sleuth/internal/types"
)

// Archive persists verification results to SQLite for post-run audit.
// Unlike the in-memory stores, archived results survive the process:
// verdicts are kept indefinitely.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (or creates) the audit database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("set journal_mode: %v", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS verification_results (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    investigation_id TEXT NOT NULL,
    fact_id          TEXT NOT NULL,
    status           TEXT NOT NULL,
    result_json      TEXT NOT NULL,
    archived_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_investigation ON verification_results(investigation_id);
CREATE INDEX IF NOT EXISTS idx_results_fact ON verification_results(fact_id);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Record archives one verification result.
func (a *Archive) Record(r *types.VerificationResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = a.db.Exec(
		`INSERT INTO verification_results (investigation_id, fact_id, status, result_json, archived_at)
         VALUES (?, ?, ?, ?, ?)`,
		r.InvestigationID, r.FactID, string(r.Status), string(payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("archive result for %s: %w", r.FactID, err)
	}
	return nil
}

// ListByInvestigation returns every archived result for an investigation,
// oldest first.
func (a *Archive) ListByInvestigation(investigationID string) ([]*types.VerificationResult, error) {
	rows, err := a.db.Query(
		`SELECT result_json FROM verification_results WHERE investigation_id = ? ORDER BY id`,
		investigationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []*types.VerificationResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		var r types.VerificationResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			// A single corrupt row is logged and skipped.
			logging.StoreError("corrupt archived result, skipping: %v", err)
			continue
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}
