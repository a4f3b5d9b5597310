package ses

import (
	"encoding/binary"
	"fmt"
)

// Protocol identifiers used on the additional element status page.
const (
	ProtocolFibreChannel uint8 = 0x0
	ProtocolSAS          uint8 = 0x6
	ProtocolPCIe         uint8 = 0xB
)

const sasPhyDescriptorLen = 28

// SASPhy is one phy descriptor of a SAS device slot.
type SASPhy struct {
	PhyID              uint8  `json:"phy_id"`
	DeviceType         uint8  `json:"device_type"`
	SASAddress         uint64 `json:"sas_address"`
	AttachedSASAddress uint64 `json:"attached_sas_address"`
	SSPTarget          bool   `json:"ssp_target,omitempty"`
	STPTarget          bool   `json:"stp_target,omitempty"`
	SATADevice         bool   `json:"sata_device,omitempty"`
}

// AdditionalStatus is one descriptor of the additional element status page.
type AdditionalStatus struct {
	// Index is the individual element index the descriptor belongs to.
	Index    int   `json:"index"`
	Invalid  bool  `json:"invalid,omitempty"`
	Protocol uint8 `json:"protocol"`

	// SlotNumber is the device slot number reported by SAS descriptors that
	// carry an element index; nil otherwise.
	SlotNumber *int `json:"slot_number,omitempty"`

	Phys []SASPhy `json:"phys,omitempty"`

	// ExpanderAddress is set for SAS expander elements.
	ExpanderAddress uint64 `json:"expander_address,omitempty"`

	// Payload holds the protocol specific bytes for protocols this package
	// does not decode.
	Payload []byte `json:"-"`
}

// SASAddresses returns the non-zero device SAS addresses of all phys.
func (a AdditionalStatus) SASAddresses() []uint64 {
	var out []uint64
	for _, p := range a.Phys {
		if p.SASAddress != 0 {
			out = append(out, p.SASAddress)
		}
	}
	return out
}

// AdditionalStatusPage is the decoded additional element status page (0x0A).
type AdditionalStatusPage struct {
	Generation  uint32
	Descriptors []AdditionalStatus
}

// ByIndex returns the descriptor for the individual element index.
func (p *AdditionalStatusPage) ByIndex(index int) (AdditionalStatus, bool) {
	if p == nil {
		return AdditionalStatus{}, false
	}
	for _, d := range p.Descriptors {
		if d.Index == index {
			return d, true
		}
	}
	return AdditionalStatus{}, false
}

// DecodeAdditionalStatusPage decodes page 0x0A. Descriptors that carry an
// element index are placed by it; the index is translated to individual
// numbering when the enclosure reports that it counts overall elements.
// Descriptors without an element index are assigned in order to the
// elements whose types carry additional status.
func DecodeAdditionalStatusPage(b []byte, cfg *ConfigurationPage) (*AdditionalStatusPage, error) {
	h, b, err := decodeHeader(PageAdditionalStatus, b)
	if err != nil {
		return nil, err
	}
	page := &AdditionalStatusPage{Generation: h.Generation}

	implicit := implicitIndexes(cfg)
	seq := 0
	off := HeaderLen
	for off < len(b) {
		if off+2 > len(b) {
			return nil, protoErr(PageAdditionalStatus, off, "descriptor header truncated")
		}
		d0 := b[off]
		dlen := 2 + int(b[off+1])
		if off+dlen > len(b) {
			return nil, protoErr(PageAdditionalStatus, off+1, "descriptor length %d overruns page", dlen)
		}
		desc := AdditionalStatus{
			Invalid:  flag(d0, 7),
			Protocol: d0 & 0x0f,
		}
		eip := flag(d0, 4)
		var payload []byte
		if eip {
			if dlen < 4 {
				return nil, protoErr(PageAdditionalStatus, off+1, "descriptor too short for element index")
			}
			idx, ok := translateIndex(cfg, int(b[off+3]), b[off+2]&0x03)
			if !ok {
				return nil, protoErr(PageAdditionalStatus, off+3, "element index %d does not name an individual element", b[off+3])
			}
			desc.Index = idx
			payload = b[off+4 : off+dlen]
		} else {
			if seq >= len(implicit) {
				return nil, protoErr(PageAdditionalStatus, off, "more descriptors than elements with additional status")
			}
			desc.Index = implicit[seq]
			payload = b[off+2 : off+dlen]
		}
		seq++

		if desc.Protocol == ProtocolSAS {
			if err := decodeSAS(&desc, cfg, payload, eip, off+dlen-len(payload)); err != nil {
				return nil, err
			}
		} else {
			desc.Payload = append([]byte(nil), payload...)
		}
		page.Descriptors = append(page.Descriptors, desc)
		off += dlen
	}
	return page, nil
}

func decodeSAS(desc *AdditionalStatus, cfg *ConfigurationPage, p []byte, eip bool, base int) error {
	if len(p) < 2 {
		return protoErr(PageAdditionalStatus, base, "SAS descriptor too short")
	}
	numPhys := int(p[0])
	descType := p[1] >> 6

	t, _, _ := cfg.Locate(desc.Index)
	switch descType {
	case 0:
		if len(p) < 4 {
			return protoErr(PageAdditionalStatus, base, "SAS device descriptor too short")
		}
		if eip {
			n := int(p[3])
			desc.SlotNumber = &n
		}
		off := 4
		for i := 0; i < numPhys; i++ {
			if off+sasPhyDescriptorLen > len(p) {
				return protoErr(PageAdditionalStatus, base+off, "phy descriptor %d truncated", i)
			}
			ph := p[off : off+sasPhyDescriptorLen]
			desc.Phys = append(desc.Phys, SASPhy{
				DeviceType:         (ph[0] >> 4) & 0x07,
				SSPTarget:          flag(ph[3], 3),
				STPTarget:          flag(ph[3], 2),
				SATADevice:         flag(ph[3], 0),
				AttachedSASAddress: binary.BigEndian.Uint64(ph[4:12]),
				SASAddress:         binary.BigEndian.Uint64(ph[12:20]),
				PhyID:              ph[20],
			})
			off += sasPhyDescriptorLen
		}
	case 1:
		if t.Type == TypeSASExpander && len(p) >= 12 {
			desc.ExpanderAddress = binary.BigEndian.Uint64(p[4:12])
		}
		desc.Payload = append([]byte(nil), p...)
	default:
		desc.Payload = append([]byte(nil), p...)
	}
	return nil
}

// translateIndex maps a reported element index to individual numbering.
// eiioe 1 and 3 mean the enclosure counted overall elements as well.
func translateIndex(cfg *ConfigurationPage, reported int, eiioe uint8) (int, bool) {
	if eiioe&0x01 == 0 {
		if reported >= cfg.ElementCount() {
			return 0, false
		}
		return reported, true
	}
	for i, t := range cfg.Types {
		overall := t.Start + i
		if reported == overall {
			return 0, false
		}
		if reported < overall+1+t.Count {
			return reported - i - 1, true
		}
	}
	return 0, false
}

func implicitIndexes(cfg *ConfigurationPage) []int {
	var out []int
	for _, t := range cfg.Types {
		if !t.Type.hasAdditionalStatus() {
			continue
		}
		for i := 0; i < t.Count; i++ {
			out = append(out, t.Start+i)
		}
	}
	return out
}

// FormatSASAddress renders a SAS address as 16 lower-case hex digits.
func FormatSASAddress(addr uint64) string {
	return fmt.Sprintf("%016x", addr)
}
