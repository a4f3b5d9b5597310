package led

import (
	"fmt"
	"strings"
)

// Reason classifies a ControlError.
type Reason int

const (
	// ReasonUnsupported means the element cannot carry the indicator.
	ReasonUnsupported Reason = iota
	// ReasonAckNotObserved means the write succeeded but the status page
	// never showed the requested state.
	ReasonAckNotObserved
	// ReasonWriteFailed means the write failed or timed out; Observed holds
	// the state read back afterwards.
	ReasonWriteFailed
	// ReasonIndeterminate means the state could not be read back.
	ReasonIndeterminate
)

var reasonNames = map[Reason]string{
	ReasonUnsupported:    "unsupported",
	ReasonAckNotObserved: "ack not observed",
	ReasonWriteFailed:    "write failed",
	ReasonIndeterminate:  "indeterminate",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ControlError reports an indicator change that was not confirmed.
type ControlError struct {
	Ref       Ref
	Indicator Indicator
	On        bool
	Reason    Reason
	// Observed is the state last read back, nil when unknown.
	Observed *bool
	Err      error
}

func (e *ControlError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "set %s %s on %s: %s", e.Indicator, onOff(e.On), e.Ref, e.Reason)
	if e.Observed != nil {
		fmt.Fprintf(&b, " (enclosure reports %s)", onOff(*e.Observed))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ControlError) Unwrap() error { return e.Err }

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
