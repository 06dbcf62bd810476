package qc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Balance bounds, inclusive.
const (
	BalanceMin = 0.9
	BalanceMax = 1.1

	balanceEpsilon = 0.001
	// boundTolerance absorbs float error at the inclusive bounds.
	boundTolerance = 1e-9
)

// Evaluation carries the paired amplitude metrics of a sub-test.
type Evaluation struct {
	RMSLeft  float64 `json:"rms_L"`
	RMSRight float64 `json:"rms_R"`
}

// SubTest is one result record pushed by the device.
type SubTest struct {
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	Details    string      `json:"details,omitempty"`
	Evaluation *Evaluation `json:"evaluation_data,omitempty"`
}

// Passed takes the device's verdict verbatim.
func (s SubTest) Passed() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), "pass")
}

// Balance returns left/right with right floored at a small epsilon.
func Balance(left, right float64) float64 {
	return left / math.Max(right, balanceEpsilon)
}

// Balanced reports whether b lies within [BalanceMin, BalanceMax].
func Balanced(b float64) bool {
	return b >= BalanceMin-boundTolerance && b <= BalanceMax+boundTolerance
}

// DecodeResults parses a notification payload holding one result object or
// an array of them.
func DecodeResults(payload []byte) ([]SubTest, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.NotValidf("empty result payload")
	}
	if payload[0] == '[' {
		var out []SubTest
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, errors.Annotate(err, "decoding results")
		}
		return out, nil
	}
	var one SubTest
	if err := json.Unmarshal(payload, &one); err != nil {
		return nil, errors.Annotate(err, "decoding result")
	}
	return []SubTest{one}, nil
}

// Line is an evaluated sub-test.
type Line struct {
	SubTest
	Passed   bool     `json:"passed"`
	Balance  *float64 `json:"balance,omitempty"`
	Balanced bool     `json:"balanced,omitempty"`
}

// Report is the QC outcome for one device.
type Report struct {
	Address  string        `json:"address"`
	Name     string        `json:"name"`
	Lines    []Line        `json:"results"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
}

// Evaluate applies the verdict rules: the report passes iff there is at
// least one result and every sub-test passed.
func Evaluate(results []SubTest) Report {
	r := Report{Passed: len(results) > 0}
	for _, st := range results {
		line := Line{SubTest: st, Passed: st.Passed()}
		if st.Evaluation != nil {
			b := Balance(st.Evaluation.RMSLeft, st.Evaluation.RMSRight)
			line.Balance = &b
			line.Balanced = Balanced(b)
		}
		if !line.Passed {
			r.Passed = false
		}
		r.Lines = append(r.Lines, line)
	}
	return r
}

// PassedCount returns the number of passing sub-tests.
func (r Report) PassedCount() int {
	n := 0
	for _, l := range r.Lines {
		if l.Passed {
			n++
		}
	}
	return n
}

// Summary renders "N/M tests passed".
func (r Report) Summary() string {
	return fmt.Sprintf("%d/%d tests passed", r.PassedCount(), len(r.Lines))
}

// Describe renders one sub-test for the session log.
func (l Line) Describe() string {
	status := "FAIL"
	if l.Passed {
		status = "PASS"
	}
	s := fmt.Sprintf("%s: %s", l.Name, status)
	if l.Details != "" {
		s += " (" + l.Details + ")"
	}
	if l.Balance != nil {
		verdict := "unbalanced"
		if l.Balanced {
			verdict = "balanced"
		}
		s += fmt.Sprintf(" L/R %.3f %s", *l.Balance, verdict)
	}
	return s
}
