// Package health grades a discovery result for monitoring checks.
package health

import (
	"fmt"

	"github.com/sigreer/jbod/internal/registry"
	"github.com/sigreer/jbod/internal/ses"
	"github.com/sigreer/jbod/internal/topology"
)

// State is a Nagios compatible check state; its value is the exit code.
type State int

const (
	OK       State = 0
	Warning  State = 1
	Critical State = 2
	Unknown  State = 3
)

func (s State) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding is one problem found during a check.
type Finding struct {
	State     State  `json:"state"`
	Enclosure string `json:"enclosure,omitempty"`
	Target    string `json:"target"`
	Element   *int   `json:"element,omitempty"`
	Message   string `json:"message"`
}

// Report is the graded result of one discovery.
type Report struct {
	State      State     `json:"state"`
	Enclosures int       `json:"enclosures"`
	Elements   int       `json:"elements"`
	Findings   []Finding `json:"findings,omitempty"`
}

// Summary is a one line description suitable for a check plugin.
func (r *Report) Summary() string {
	if len(r.Findings) == 0 {
		return fmt.Sprintf("JBOD %s - %d enclosures, %d elements", r.State, r.Enclosures, r.Elements)
	}
	return fmt.Sprintf("JBOD %s - %d enclosures, %d problems", r.State, r.Enclosures, len(r.Findings))
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.State > r.State {
		r.State = f.State
	}
}

// Evaluate grades outcomes. A failed target is a warning unless every target
// failed, which is unknown. Element status codes map to warning or
// critical; predicted failures on slots are warnings.
func Evaluate(outcomes registry.Outcomes) *Report {
	r := &Report{State: OK}
	if len(outcomes) == 0 {
		r.add(Finding{State: Unknown, Message: "no enclosure targets found"})
		return r
	}

	failed := 0
	for _, oc := range outcomes {
		if oc.Err != nil {
			failed++
			r.add(Finding{State: Warning, Target: oc.Target, Message: oc.Err.Error()})
			continue
		}
		r.Enclosures++
		r.Elements += len(oc.Enclosure.Elements)
		evaluateEnclosure(r, oc.Enclosure)
	}
	if failed == len(outcomes) {
		r.State = Unknown
	}
	return r
}

func evaluateEnclosure(r *Report, enc *topology.Enclosure) {
	for i := range enc.Elements {
		el := &enc.Elements[i]
		state, reason := grade(el)
		if state == OK {
			continue
		}
		index := el.Index
		r.add(Finding{
			State:     state,
			Enclosure: enc.ID,
			Target:    enc.Target,
			Element:   &index,
			Message:   fmt.Sprintf("%s: %s", el.Label(), reason),
		})
	}
}

func grade(el *topology.Element) (State, string) {
	st := el.Status
	switch st.Code {
	case ses.StatusCritical, ses.StatusUnrecoverable:
		return Critical, "status " + st.Code.String()
	case ses.StatusNoncritical:
		return Warning, "status " + st.Code.String()
	}
	if st.Slot != nil && st.Slot.FaultSensed {
		return Critical, "fault sensed"
	}
	if st.PredictedFailure && el.Type.IsSlot() {
		return Warning, "predicted failure"
	}
	return OK, ""
}
