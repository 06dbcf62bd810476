package session

import (
	"context"

	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/alert"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/qc"
)

// RunQC runs wireless QC against the device this session provisioned. The
// ready target captured by telemetry is consumed; if it was already used,
// QC waits for the device to announce itself again. The result is
// published whatever the verdict.
func (s *Session) RunQC(ctx context.Context) (qc.Report, error) {
	if !s.enter() {
		return qc.Report{}, provision.Wrap(provision.Cancelled, ErrClosed)
	}
	defer s.steps.Done()
	if !s.provisioned {
		return qc.Report{}, errors.New("session has no provisioned device")
	}
	started := s.deps.Clock.Now()
	s.logf(provision.QC, provision.Info, "Starting wireless QC")

	report, err := s.deps.QC.Run(ctx, s.ready, s)
	if report.Address == "" {
		report.Address = s.outcome.WirelessAddress
		report.Name = s.outcome.WirelessName
	}

	s.Emit(provision.Event{
		Kind:     provision.KindQCResult,
		Severity: severityOf(err),
		Category: provision.QC,
		Message:  qcMessage(report, err),
		Payload:  report,
	})
	if err != nil {
		s.deps.Alert.Play(alert.Failure)
	} else {
		s.deps.Alert.Play(alert.Success)
	}

	pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if perr := s.deps.Sink.PublishQC(pctx, qcRecord(s.ID, started, report, err)); perr != nil {
		logger.Warningf("publishing QC result: %v", perr)
	}
	return report, err
}

func qcMessage(r qc.Report, err error) string {
	if err != nil {
		return "QC FAILED: " + err.Error()
	}
	return "QC PASSED: " + r.Summary()
}
