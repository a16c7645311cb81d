// File: internal/records/records.go

// Package records keeps the operator-facing trail of registration attempts:
// an append-only CSV journal, optional Postgres archival, and XML/JSON
// exports. The journal deliberately stores passwords in the clear, the same
// way the session cache does; it is the operator's recovery record for
// accounts whose signup stopped at the manual challenge.
package records

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultJournalFile = "registrations.csv"

// journalHeader is the CSV column order. Existing journals are append-only,
// so the order must never change.
var journalHeader = []string{"timestamp", "email", "name", "password", "status", "session_id", "run_id"}

// Record is one registration attempt.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Password  string    `json:"password"`
	Status    string    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
}

func (r Record) row() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Email,
		r.Name,
		r.Password,
		r.Status,
		r.SessionID,
		r.RunID,
	}
}

func recordFromRow(row []string) (Record, error) {
	if len(row) < len(journalHeader) {
		return Record{}, fmt.Errorf("journal row has %d fields, want %d", len(row), len(journalHeader))
	}
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return Record{}, fmt.Errorf("parsing journal timestamp %q: %w", row[0], err)
	}
	return Record{
		Timestamp: ts,
		Email:     row[1],
		Name:      row[2],
		Password:  row[3],
		Status:    row[4],
		SessionID: row[5],
		RunID:     row[6],
	}, nil
}

// Journal is the append-only CSV file of registration attempts. Appends are
// serialized; the file gets its header row on first write.
type Journal struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewJournal opens a journal at path, creating nothing until the first
// append. An empty path falls back to registrations.csv in the working
// directory.
func NewJournal(path string, logger *zap.Logger) *Journal {
	if path == "" {
		path = defaultJournalFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		path: path,
		log:  logger.Named("records"),
	}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one record, creating the file and header when needed.
func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating journal directory: %w", err)
		}
	}

	info, err := os.Stat(j.path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(journalHeader); err != nil {
			return fmt.Errorf("writing journal header: %w", err)
		}
	}
	if err := w.Write(rec.row()); err != nil {
		return fmt.Errorf("writing journal row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}

	j.log.Debug("Registration record appended.",
		zap.String("email", rec.Email),
		zap.String("status", rec.Status))
	return nil
}

// List reads every record in journal order. A journal that does not exist
// yet reads as empty. Rows that fail to parse are skipped with a warning so
// one bad line cannot hide the rest of the trail.
func (j *Journal) List() ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	var out []Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == journalHeader[0] {
			continue
		}
		rec, err := recordFromRow(row)
		if err != nil {
			j.log.Warn("Skipping unreadable journal row.", zap.Int("line", i+1), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
