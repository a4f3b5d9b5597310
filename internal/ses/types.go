package ses

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrElementCountMismatch = errors.New("element count does not match status records")
	ErrUnsupportedElement   = errors.New("element does not support the requested control")
	ErrIndexOutOfRange      = errors.New("element index out of range")
	ErrDuplicateIntent      = errors.New("more than one intent for the same element")
)

// ElementType is the SES element type code carried in type descriptor headers.
type ElementType uint8

const (
	TypeUnspecified         ElementType = 0x00
	TypeDeviceSlot          ElementType = 0x01
	TypePowerSupply         ElementType = 0x02
	TypeCooling             ElementType = 0x03
	TypeTemperatureSensor   ElementType = 0x04
	TypeDoor                ElementType = 0x05
	TypeAudibleAlarm        ElementType = 0x06
	TypeESCElectronics      ElementType = 0x07
	TypeSCCElectronics      ElementType = 0x08
	TypeNonvolatileCache    ElementType = 0x09
	TypeInvalidOpReason     ElementType = 0x0A
	TypeUPS                 ElementType = 0x0B
	TypeDisplay             ElementType = 0x0C
	TypeKeyPad              ElementType = 0x0D
	TypeEnclosure           ElementType = 0x0E
	TypeSCSIPortTransceiver ElementType = 0x0F
	TypeLanguage            ElementType = 0x10
	TypeCommunicationPort   ElementType = 0x11
	TypeVoltageSensor       ElementType = 0x12
	TypeCurrentSensor       ElementType = 0x13
	TypeSCSITargetPort      ElementType = 0x14
	TypeSCSIInitiatorPort   ElementType = 0x15
	TypeSimpleSubenclosure  ElementType = 0x16
	TypeArrayDeviceSlot     ElementType = 0x17
	TypeSASExpander         ElementType = 0x18
	TypeSASConnector        ElementType = 0x19
)

var elementTypeNames = map[ElementType]string{
	TypeUnspecified:         "unspecified",
	TypeDeviceSlot:          "device slot",
	TypePowerSupply:         "power supply",
	TypeCooling:             "cooling",
	TypeTemperatureSensor:   "temperature sensor",
	TypeDoor:                "door",
	TypeAudibleAlarm:        "audible alarm",
	TypeESCElectronics:      "enclosure services controller electronics",
	TypeSCCElectronics:      "scc controller electronics",
	TypeNonvolatileCache:    "nonvolatile cache",
	TypeInvalidOpReason:     "invalid operation reason",
	TypeUPS:                 "uninterruptible power supply",
	TypeDisplay:             "display",
	TypeKeyPad:              "key pad entry",
	TypeEnclosure:           "enclosure",
	TypeSCSIPortTransceiver: "scsi port/transceiver",
	TypeLanguage:            "language",
	TypeCommunicationPort:   "communication port",
	TypeVoltageSensor:       "voltage sensor",
	TypeCurrentSensor:       "current sensor",
	TypeSCSITargetPort:      "scsi target port",
	TypeSCSIInitiatorPort:   "scsi initiator port",
	TypeSimpleSubenclosure:  "simple subenclosure",
	TypeArrayDeviceSlot:     "array device slot",
	TypeSASExpander:         "sas expander",
	TypeSASConnector:        "sas connector",
}

func (t ElementType) String() string {
	if n, ok := elementTypeNames[t]; ok {
		return n
	}
	if t >= 0x80 {
		return fmt.Sprintf("vendor specific 0x%02x", uint8(t))
	}
	return fmt.Sprintf("reserved 0x%02x", uint8(t))
}

// IsSlot reports whether elements of this type hold a disk and carry
// identify and fault indicators.
func (t ElementType) IsSlot() bool {
	return t == TypeDeviceSlot || t == TypeArrayDeviceSlot
}

// hasAdditionalStatus reports whether the type is reported on the additional
// element status page when descriptors omit the element index.
func (t ElementType) hasAdditionalStatus() bool {
	switch t {
	case TypeDeviceSlot, TypeArrayDeviceSlot, TypeSASExpander, TypeESCElectronics,
		TypeSCSITargetPort, TypeSCSIInitiatorPort:
		return true
	}
	return false
}

// StatusCode is the element status code held in bits 3-0 of byte 0.
type StatusCode uint8

const (
	StatusUnsupported   StatusCode = 0x0
	StatusOK            StatusCode = 0x1
	StatusCritical      StatusCode = 0x2
	StatusNoncritical   StatusCode = 0x3
	StatusUnrecoverable StatusCode = 0x4
	StatusNotInstalled  StatusCode = 0x5
	StatusUnknown       StatusCode = 0x6
	StatusNotAvailable  StatusCode = 0x7
	StatusNoAccess      StatusCode = 0x8
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnsupported:
		return "unsupported"
	case StatusOK:
		return "ok"
	case StatusCritical:
		return "critical"
	case StatusNoncritical:
		return "noncritical"
	case StatusUnrecoverable:
		return "unrecoverable"
	case StatusNotInstalled:
		return "not installed"
	case StatusUnknown:
		return "unknown"
	case StatusNotAvailable:
		return "not available"
	case StatusNoAccess:
		return "no access allowed"
	}
	return fmt.Sprintf("reserved 0x%x", uint8(s))
}

// Record is one raw 4-byte status or control element record.
type Record [recordLen]byte

// Code returns the element status code of a status record.
func (r Record) Code() StatusCode {
	return StatusCode(r[0] & 0x0f)
}

// MarshalText renders the type by name in JSON output.
func (t ElementType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// MarshalText renders the status code by name in JSON output.
func (s StatusCode) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
