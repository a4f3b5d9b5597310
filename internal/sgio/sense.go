package sgio

import "fmt"

// SenseKey names from SPC
var senseKeys = [...]string{
	"no sense", "recovered error", "not ready", "medium error",
	"hardware error", "illegal request", "unit attention", "data protect",
	"blank check", "vendor specific", "copy aborted", "aborted command",
	"reserved", "volume overflow", "miscompare", "completed",
}

// Sense is the decoded part of SCSI sense data that callers act on.
type Sense struct {
	Key  uint8
	ASC  uint8
	ASCQ uint8
}

func (s Sense) String() string {
	return fmt.Sprintf("%s (asc 0x%02x ascq 0x%02x)", senseKeys[s.Key&0x0f], s.ASC, s.ASCQ)
}

// parseSense decodes fixed and descriptor format sense data.
func parseSense(b []byte) (Sense, bool) {
	if len(b) < 1 {
		return Sense{}, false
	}
	switch b[0] & 0x7f {
	case 0x70, 0x71:
		if len(b) < 14 {
			if len(b) >= 3 {
				return Sense{Key: b[2] & 0x0f}, true
			}
			return Sense{}, false
		}
		return Sense{Key: b[2] & 0x0f, ASC: b[12], ASCQ: b[13]}, true
	case 0x72, 0x73:
		if len(b) < 4 {
			return Sense{}, false
		}
		return Sense{Key: b[1] & 0x0f, ASC: b[2], ASCQ: b[3]}, true
	}
	return Sense{}, false
}

// CommandError reports a command the device or the driver did not complete.
type CommandError struct {
	Op           byte
	Status       uint8
	HostStatus   uint16
	DriverStatus uint16
	Sense        *Sense
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("scsi op 0x%02x failed: status 0x%02x host 0x%02x driver 0x%02x",
		e.Op, e.Status, e.HostStatus, e.DriverStatus)
	if e.Sense != nil {
		msg += ": " + e.Sense.String()
	}
	return msg
}

// TimedOut reports whether the driver gave up on the command.
func (e *CommandError) TimedOut() bool {
	const didTimeOut = 0x03
	return e.HostStatus == didTimeOut
}
