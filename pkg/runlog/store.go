package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store keeps epoch records in a SQLite database.
type Store struct {
	db *sql.DB
}

// Entry is one stored epoch record.
type Entry struct {
	RunID string
	Model string
	Epoch int
	At    time.Time
	Stats json.RawMessage
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS epochs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts REAL NOT NULL,
			run_id TEXT NOT NULL,
			model TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			stats TEXT NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating run log table: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert appends the record of one epoch.
func (s *Store) Insert(runID, model string, epoch int, record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	_, err = s.db.Exec("INSERT INTO epochs(ts, run_id, model, epoch, stats) VALUES(?,?,?,?,?)",
		float64(time.Now().UnixMilli())/1000.0, runID, model, epoch, string(b))
	if err != nil {
		return fmt.Errorf("inserting epoch %d: %w", epoch, err)
	}
	return nil
}

// Run returns the records of a run in epoch order.
func (s *Store) Run(runID string) ([]Entry, error) {
	rows, err := s.db.Query("SELECT ts, run_id, model, epoch, stats FROM epochs WHERE run_id = ? ORDER BY epoch, id", runID)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			ts    float64
			stats string
		)
		if err := rows.Scan(&ts, &e.RunID, &e.Model, &e.Epoch, &stats); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(int64(ts * 1000))
		e.Stats = json.RawMessage(stats)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
