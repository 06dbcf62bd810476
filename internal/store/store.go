// Package store keeps the station's local history: session outcomes, QC
// results and saved session logs.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
)

// Store manages persistence of session/QC records and session logs.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at the given directory (typically .dinoflash/).
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) historyDir() string {
	return filepath.Join(s.root, "history")
}

func (s *Store) logsDir() string {
	return filepath.Join(s.root, "logs")
}

// AddSession appends a session record.
func (s *Store) AddSession(r SessionRecord) error {
	return s.appendRecord("sessions.json", r)
}

// AddQC appends a QC record.
func (s *Store) AddQC(r QCRecord) error {
	return s.appendRecord("qc_results.json", r)
}

// Sessions returns all session records.
func (s *Store) Sessions() ([]SessionRecord, error) {
	var records []SessionRecord
	err := s.loadRecords("sessions.json", &records)
	return records, err
}

// QCResults returns all QC records.
func (s *Store) QCResults() ([]QCRecord, error) {
	var records []QCRecord
	err := s.loadRecords("qc_results.json", &records)
	return records, err
}

// SessionLogs returns all saved session log entries.
func (s *Store) SessionLogs() ([]SessionLog, error) {
	var records []SessionLog
	err := s.loadRecords("session_logs.json", &records)
	return records, err
}

// SaveSessionLog writes lines to a new file under the logs directory and
// records it.
func (s *Store) SaveSessionLog(sessionID, port string, at time.Time, lines []string) (SessionLog, error) {
	dir, err := s.LogsDir()
	if err != nil {
		return SessionLog{}, errors.Trace(err)
	}
	name := fmt.Sprintf("session_%s_%s.log", at.Format("20060102_150405"), shortID(sessionID))
	path := filepath.Join(dir, name)
	body := strings.Join(lines, "\n")
	if len(lines) > 0 {
		body += "\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return SessionLog{}, errors.Annotatef(err, "writing %s", path)
	}
	entry := SessionLog{SessionID: sessionID, Port: port, Timestamp: at, Lines: len(lines), LogFile: path}
	return entry, errors.Trace(s.appendRecord("session_logs.json", entry))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// LogsDir returns the path to the logs directory, creating it if needed.
func (s *Store) LogsDir() (string, error) {
	dir := s.logsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *Store) appendRecord(filename string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.historyDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, filename)

	// Read existing records
	var records []json.RawMessage
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &records)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	records = append(records, raw)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	// Write then rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) loadRecords(filename string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.historyDir(), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, dest)
}
