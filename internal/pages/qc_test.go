package pages

import (
	"strings"
	"testing"

	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/qc"
	"github.com/buckleypaul/dinoflash/internal/station"
)

func passingReport() qc.Report {
	return qc.Evaluate([]qc.SubTest{
		{Name: "speaker", Status: "PASS", Evaluation: &qc.Evaluation{RMSLeft: 1.0, RMSRight: 1.05}},
		{Name: "mic", Status: "PASS"},
	})
}

func TestQCRunKeyStartsRun(t *testing.T) {
	ctl := &fakeController{}
	p := NewQCPage(ctl)
	p.SetSize(100, 30)

	_, cmd := p.Update(keyRune("r"))
	if cmd == nil {
		t.Fatal("expected command")
	}
	if ctl.qcCalls != 1 || !p.running {
		t.Fatalf("expected running QC, calls=%d", ctl.qcCalls)
	}

	// Second press while running is ignored.
	p.Update(keyRune("r"))
	if ctl.qcCalls != 1 {
		t.Fatalf("expected one QC call, got %d", ctl.qcCalls)
	}

	p.Update(keyRune("x"))
	if ctl.stopCalls != 1 {
		t.Fatalf("expected stop, got %d", ctl.stopCalls)
	}
}

func TestQCShowsPassingReport(t *testing.T) {
	p := NewQCPage(&fakeController{})
	p.SetSize(100, 30)
	p.Update(keyRune("r"))

	p.Update(station.QCDoneMsg{Report: passingReport()})
	if p.running {
		t.Fatal("expected run finished")
	}
	view := p.View()
	for _, want := range []string{"PASS", "2/2 tests passed", "speaker"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestQCShowsFailedReport(t *testing.T) {
	p := NewQCPage(&fakeController{})
	p.SetSize(100, 30)

	report := qc.Evaluate([]qc.SubTest{{Name: "speaker", Status: "FAIL", Details: "no signal"}})
	p.Update(station.QCDoneMsg{Report: report, Err: provision.Wrapf(provision.QCFailed, "%s", report.Summary())})
	if p.report == nil {
		t.Fatal("expected report kept for a QC failure")
	}
	view := p.View()
	if !strings.Contains(view, "FAIL") || !strings.Contains(view, "no signal") {
		t.Fatalf("expected failing line in view:\n%s", view)
	}
}

func TestQCShowsInfrastructureError(t *testing.T) {
	p := NewQCPage(&fakeController{})
	p.SetSize(100, 30)

	p.Update(station.QCDoneMsg{Err: provision.Wrapf(provision.DeviceNotFound, "not advertising")})
	if p.report != nil {
		t.Fatal("expected no report for a discovery failure")
	}
	if !strings.Contains(p.View(), "device not found") {
		t.Fatalf("expected error in view:\n%s", p.View())
	}
}

func TestQCTracksReadyDevice(t *testing.T) {
	p := NewQCPage(&fakeController{})
	p.SetSize(100, 30)

	p.Update(station.EventMsg{Event: provision.Event{
		Kind:     provision.KindDeviceReady,
		Category: provision.Serial,
		Address:  "AA:BB:CC:DD:EE:FF",
		Name:     "Dino-01",
	}})
	if !strings.Contains(p.View(), "Dino-01") {
		t.Fatal("expected device name in view")
	}

	p.Update(station.EventMsg{Event: provision.Logf(provision.Wireless, provision.Info, "Scanning")})
	p.Update(station.EventMsg{Event: provision.Logf(provision.Flash, provision.Info, "Flashing")})
	if p.log.len() != 1 {
		t.Fatalf("expected only wireless lines, got %d", p.log.len())
	}
}

func TestQCChainedStart(t *testing.T) {
	p := NewQCPage(&fakeController{})

	_, cmd := p.Update(qcStartedMsg{})
	if !p.running || cmd == nil {
		t.Fatal("expected chained run to show as running")
	}
}
