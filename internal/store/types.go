package store

import "time"

// SessionRecord captures the outcome of one provisioning session.
type SessionRecord struct {
	ID              string    `json:"id"`
	Port            string    `json:"port"`
	Mode            string    `json:"mode"`
	TargetVersion   string    `json:"target_version"`
	FlashVersion    string    `json:"flash_version,omitempty"`
	Build           string    `json:"build,omitempty"`
	WirelessAddress string    `json:"wireless_address,omitempty"`
	WirelessName    string    `json:"wireless_name,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Success         bool      `json:"success"`
	Failure         string    `json:"failure,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Duration        string    `json:"duration"`
}

// QCSubTest is one evaluated sub-test of a QC run.
type QCSubTest struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Details  string   `json:"details,omitempty"`
	Balance  *float64 `json:"balance,omitempty"`
	Balanced bool     `json:"balanced,omitempty"`
}

// QCRecord captures the result of a wireless QC run.
type QCRecord struct {
	SessionID       string      `json:"session_id"`
	WirelessAddress string      `json:"wireless_address"`
	WirelessName    string      `json:"wireless_name"`
	Timestamp       time.Time   `json:"timestamp"`
	Success         bool        `json:"success"`
	Failure         string      `json:"failure,omitempty"`
	Summary         string      `json:"summary,omitempty"`
	Results         []QCSubTest `json:"results,omitempty"`
	Duration        string      `json:"duration"`
}

// SessionLog points at the saved log of a session.
type SessionLog struct {
	SessionID string    `json:"session_id"`
	Port      string    `json:"port"`
	Timestamp time.Time `json:"timestamp"`
	Lines     int       `json:"lines"`
	LogFile   string    `json:"log_file"`
}
