package ses

import (
	"encoding/binary"
	"fmt"
)

const selectBit = 1 << 7

// Slot control bit positions shared by device slot and array device slot
// elements. Status and control records use the same positions for both.
const (
	slotIdentifyByte = 2
	slotIdentifyBit  = 1
	slotFaultByte    = 3
	slotFaultBit     = 5
)

// ControlIntent requests a change to one element. Nil fields are left as
// reported by the latest status read.
type ControlIntent struct {
	Index    int
	Identify *bool
	Fault    *bool
}

// Snapshot pairs a configuration page with a status page read after it.
type Snapshot struct {
	Config *ConfigurationPage
	Status *StatusPage
}

// Check verifies the status page matches the configuration layout.
func (s Snapshot) Check() error {
	if s.Config == nil || s.Status == nil {
		return fmt.Errorf("ses: incomplete snapshot")
	}
	return s.Status.Check(s.Config)
}

// Element returns the type and interpreted status of one individual element.
func (s Snapshot) Element(index int) (ElementType, ElementStatus, error) {
	t, _, ok := s.Config.Locate(index)
	if !ok {
		return 0, ElementStatus{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	r, err := s.Status.Element(s.Config, index)
	if err != nil {
		return 0, ElementStatus{}, err
	}
	return t.Type, Interpret(t.Type, r), nil
}

// EncodeControlPage builds an enclosure control page from the latest status
// read. Every record is copied from the status page; addressed elements get
// SELECT set and their requested bits changed. With no intents the records
// are identical to the status records.
func EncodeControlPage(snap Snapshot, intents []ControlIntent) ([]byte, error) {
	if err := snap.Check(); err != nil {
		return nil, err
	}

	records := append([]Record(nil), snap.Status.Records...)
	seen := make(map[int]bool, len(intents))
	for _, in := range intents {
		if seen[in.Index] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateIntent, in.Index)
		}
		seen[in.Index] = true

		t, _, ok := snap.Config.Locate(in.Index)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, in.Index)
		}
		if !t.Type.IsSlot() {
			return nil, fmt.Errorf("%w: element %d is a %s", ErrUnsupportedElement, in.Index, t.Type)
		}
		pos, _ := recordIndex(snap.Config, in.Index)
		r := records[pos]
		if r.Code() == StatusUnsupported {
			return nil, fmt.Errorf("%w: element %d reports status unsupported", ErrUnsupportedElement, in.Index)
		}
		if in.Identify == nil && in.Fault == nil {
			continue
		}
		r[0] |= selectBit
		if in.Identify != nil {
			setBit(&r[slotIdentifyByte], slotIdentifyBit, *in.Identify)
		}
		if in.Fault != nil {
			setBit(&r[slotFaultByte], slotFaultBit, *in.Fault)
		}
		records[pos] = r
	}

	out := make([]byte, HeaderLen+len(records)*recordLen)
	out[0] = byte(PageEnclosureStatus)
	// Byte 1 of a control page requests INFO, NON-CRIT, CRIT and UNRECOV
	// indications. Records are copied from status but these are not: echoing
	// them would re-assert the enclosure's own condition on every write.
	out[1] = 0
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)-4))
	binary.BigEndian.PutUint32(out[4:8], snap.Status.Generation)
	for i, r := range records {
		copy(out[HeaderLen+i*recordLen:], r[:])
	}
	return out, nil
}

// SlotIndicators reports the identify and fault request bits of a slot
// element as read back from a status page.
func SlotIndicators(r Record) (identify, fault bool) {
	return flag(r[slotIdentifyByte], slotIdentifyBit), flag(r[slotFaultByte], slotFaultBit)
}

func setBit(b *byte, bit uint, on bool) {
	if on {
		*b |= 1 << bit
	} else {
		*b &^= 1 << bit
	}
}
