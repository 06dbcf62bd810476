package session

import (
	"time"

	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/qc"
	"github.com/buckleypaul/dinoflash/internal/store"
)

// Outcome is the final record of a provisioning session.
type Outcome struct {
	ID     string
	Port   string
	Mode   provision.Mode
	Target string
	// FlashVersion is the identity the firmware was chosen for. It differs
	// from Target when a burn failed and an existing record was reused.
	FlashVersion    hwversion.Version
	Build           string
	WirelessAddress string
	WirelessName    string
	Started         time.Time
	Duration        time.Duration
	Err             error
}

// Success reports whether the session completed.
func (o Outcome) Success() bool { return o.Err == nil }

// Reason is the failure taxonomy name, empty on success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	if k := provision.Kind(o.Err); k != "" {
		return string(k)
	}
	return "error"
}

// Record converts the outcome for the history store and sinks.
func (o Outcome) Record() store.SessionRecord {
	r := store.SessionRecord{
		ID:              o.ID,
		Port:            o.Port,
		Mode:            string(o.Mode),
		TargetVersion:   o.Target,
		Build:           o.Build,
		WirelessAddress: o.WirelessAddress,
		WirelessName:    o.WirelessName,
		Timestamp:       o.Started,
		Success:         o.Success(),
		Failure:         o.Reason(),
		Duration:        o.Duration.Round(100 * time.Millisecond).String(),
	}
	if !o.FlashVersion.IsZero() {
		r.FlashVersion = o.FlashVersion.String()
	}
	if o.Err != nil {
		r.Reason = o.Err.Error()
	}
	return r
}

func qcRecord(sessionID string, started time.Time, report qc.Report, err error) store.QCRecord {
	r := store.QCRecord{
		SessionID:       sessionID,
		WirelessAddress: report.Address,
		WirelessName:    report.Name,
		Timestamp:       started,
		Success:         err == nil,
		Duration:        report.Duration.Round(100 * time.Millisecond).String(),
	}
	if len(report.Lines) > 0 {
		r.Summary = report.Summary()
	}
	if err != nil {
		r.Failure = string(provision.Kind(err))
		if r.Failure == "" {
			r.Failure = err.Error()
		}
	}
	for _, l := range report.Lines {
		r.Results = append(r.Results, store.QCSubTest{
			Name:     l.Name,
			Passed:   l.Passed,
			Details:  l.Details,
			Balance:  l.Balance,
			Balanced: l.Balanced,
		})
	}
	return r
}
