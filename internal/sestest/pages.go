// Package sestest builds SES diagnostic pages and simulates an enclosure
// behind a transport, for tests of the packages that consume SES.
package sestest

import (
	"encoding/binary"
)

// Page codes
const (
	PageConfiguration     uint8 = 0x01
	PageEnclosureStatus   uint8 = 0x02
	PageElementDescriptor uint8 = 0x07
	PageAdditionalStatus  uint8 = 0x0A
)

// Element type codes
const (
	TypeDeviceSlot        uint8 = 0x01
	TypePowerSupply       uint8 = 0x02
	TypeCooling           uint8 = 0x03
	TypeTemperatureSensor uint8 = 0x04
	TypeESCElectronics    uint8 = 0x07
	TypeEnclosure         uint8 = 0x0E
	TypeVoltageSensor     uint8 = 0x12
	TypeCurrentSensor     uint8 = 0x13
	TypeArrayDeviceSlot   uint8 = 0x17
	TypeSASExpander       uint8 = 0x18
)

// Element status codes
const (
	StatusUnsupported  uint8 = 0x0
	StatusOK           uint8 = 0x1
	StatusCritical     uint8 = 0x2
	StatusNotInstalled uint8 = 0x5
)

// Element is one individual element of a simulated enclosure.
type Element struct {
	Status      [4]byte
	Description string
	// SASAddress of the attached disk; zero means the slot is empty.
	SASAddress uint64
}

// Group is one type descriptor header with its elements.
type Group struct {
	Type         uint8
	SubEnclosure uint8
	Text         string
	Overall      [4]byte
	Elements     []Element
}

// Enclosure describes the pages a simulated enclosure returns.
type Enclosure struct {
	LogicalID  uint64
	Vendor     string
	Product    string
	Revision   string
	Serial     string
	Generation uint32
	Groups     []Group

	// IndexIncludesOverall makes the additional element status page count
	// overall elements in its element index fields.
	IndexIncludesOverall bool
	// OmitElementIndex produces additional status descriptors without
	// element indexes.
	OmitElementIndex bool
}

// SlotRecord builds a device slot status record.
func SlotRecord(code uint8, identify, fault bool) [4]byte {
	var r [4]byte
	r[0] = code & 0x0f
	if identify {
		r[2] |= 1 << 1
	}
	if fault {
		r[3] |= 1 << 5
	}
	return r
}

// FanRecord builds a cooling status record for the given RPM.
func FanRecord(code uint8, rpm int, speedCode uint8) [4]byte {
	v := rpm / 10
	return [4]byte{code & 0x0f, byte(v>>8) & 0x07, byte(v), speedCode & 0x07}
}

// TempRecord builds a temperature sensor status record from a raw reading,
// which is degrees Celsius plus 20; raw 0 means no reading.
func TempRecord(code uint8, raw uint8) [4]byte {
	return [4]byte{code & 0x0f, 0, raw, 0}
}

// VoltageRecord builds a voltage sensor record in units of 10 mV.
func VoltageRecord(code uint8, centivolts int16) [4]byte {
	var r [4]byte
	r[0] = code & 0x0f
	binary.BigEndian.PutUint16(r[2:], uint16(centivolts))
	return r
}

// PSURecord builds a power supply status record.
func PSURecord(code uint8, fail bool) [4]byte {
	r := [4]byte{code & 0x0f, 0, 0, 0}
	if fail {
		r[3] |= 1 << 6
	}
	return r
}

func header(code uint8, specific uint8, gen uint32, body []byte) []byte {
	out := make([]byte, 8, 8+len(body))
	out[0] = code
	out[1] = specific
	binary.BigEndian.PutUint16(out[2:], uint16(4+len(body)))
	binary.BigEndian.PutUint32(out[4:], gen)
	return append(out, body...)
}

func padded(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

// ConfigPage returns the configuration page (0x01).
func (e *Enclosure) ConfigPage() []byte {
	var body []byte
	desc := make([]byte, 40)
	desc[0] = 0x11 // one enclosure services process, id 1
	desc[1] = 0
	desc[2] = byte(len(e.Groups))
	desc[3] = 36
	binary.BigEndian.PutUint64(desc[4:], e.LogicalID)
	copy(desc[12:], padded(e.Vendor, 8))
	copy(desc[20:], padded(e.Product, 16))
	copy(desc[36:], padded(e.Revision, 4))
	body = append(body, desc...)
	for _, g := range e.Groups {
		body = append(body, g.Type, byte(len(g.Elements)), g.SubEnclosure, byte(len(g.Text)))
	}
	for _, g := range e.Groups {
		body = append(body, g.Text...)
	}
	return header(PageConfiguration, 0, e.Generation, body)
}

// StatusPage returns the enclosure status page (0x02).
func (e *Enclosure) StatusPage() []byte {
	var body []byte
	for _, g := range e.Groups {
		body = append(body, g.Overall[:]...)
		for _, el := range g.Elements {
			body = append(body, el.Status[:]...)
		}
	}
	return header(PageEnclosureStatus, 0, e.Generation, body)
}

// DescriptorPage returns the element descriptor page (0x07).
func (e *Enclosure) DescriptorPage() []byte {
	var body []byte
	add := func(s string) {
		d := make([]byte, 4, 4+len(s))
		binary.BigEndian.PutUint16(d[2:], uint16(len(s)))
		body = append(body, append(d, s...)...)
	}
	for _, g := range e.Groups {
		add(g.Text)
		for _, el := range g.Elements {
			add(el.Description)
		}
	}
	return header(PageElementDescriptor, 0, e.Generation, body)
}

// AdditionalPage returns the additional element status page (0x0A) with a
// SAS descriptor for every device and array device slot.
func (e *Enclosure) AdditionalPage() []byte {
	var body []byte
	index := 0
	for gi, g := range e.Groups {
		for i, el := range g.Elements {
			idx := index + i
			if e.IndexIncludesOverall {
				idx += gi + 1
			}
			if g.Type != TypeDeviceSlot && g.Type != TypeArrayDeviceSlot {
				continue
			}
			body = append(body, sasDescriptor(el, idx, i, !e.OmitElementIndex, e.IndexIncludesOverall)...)
		}
		index += len(g.Elements)
	}
	return header(PageAdditionalStatus, 0, e.Generation, body)
}

func sasDescriptor(el Element, index, slot int, eip, eiioe bool) []byte {
	phy := make([]byte, 28)
	if el.SASAddress != 0 {
		phy[0] = 1 << 4 // end device
		phy[3] = 1 << 3 // SSP target
		binary.BigEndian.PutUint64(phy[4:], 0x500605b000000000)
		binary.BigEndian.PutUint64(phy[12:], el.SASAddress)
	}
	proto := []byte{1, 0, 0, byte(slot)}
	proto = append(proto, phy...)

	var d []byte
	if eip {
		var flags byte
		if eiioe {
			flags = 0x01
		}
		d = []byte{0x10 | 0x06, byte(2 + len(proto)), flags, byte(index)}
	} else {
		d = []byte{0x06, byte(len(proto))}
	}
	return append(d, proto...)
}
