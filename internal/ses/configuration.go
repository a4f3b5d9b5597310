package ses

import (
	"encoding/binary"
	"fmt"
)

// enclosureDescriptorMin is the fixed part of an enclosure descriptor:
// 4-byte header, logical identifier, vendor, product and revision.
const enclosureDescriptorMin = 40

// SubEnclosure is one enclosure descriptor from the configuration page.
// The primary subenclosure is always first.
type SubEnclosure struct {
	ID             uint8  `json:"id"`
	ProcessID      uint8  `json:"process_id"`
	ProcessCount   uint8  `json:"process_count"`
	TypeHeaders    int    `json:"-"`
	LogicalID      uint64 `json:"logical_id"`
	Vendor         string `json:"vendor"`
	Product        string `json:"product"`
	Revision       string `json:"revision"`
	VendorSpecific []byte `json:"-"`
}

// LogicalIDString formats the enclosure logical identifier the way sysfs and
// sg_ses print SAS addresses.
func (s SubEnclosure) LogicalIDString() string {
	return fmt.Sprintf("%016x", s.LogicalID)
}

// TypeDescriptor is one type descriptor header together with its text.
type TypeDescriptor struct {
	Type         ElementType `json:"type"`
	Count        int         `json:"count"`
	SubEnclosure uint8       `json:"subenclosure"`
	Text         string      `json:"text,omitempty"`

	// Start is the index of the first individual element of this type when
	// individual elements are numbered across all types, overall elements
	// excluded.
	Start int `json:"start"`
}

// ConfigurationPage is the decoded configuration diagnostic page (0x01).
type ConfigurationPage struct {
	Generation    uint32           `json:"generation"`
	SubEnclosures []SubEnclosure   `json:"subenclosures"`
	Types         []TypeDescriptor `json:"types"`
}

// ElementCount returns the number of individual elements declared by all
// type descriptor headers.
func (c *ConfigurationPage) ElementCount() int {
	n := 0
	for _, t := range c.Types {
		n += t.Count
	}
	return n
}

// RecordCount returns the number of status records the enclosure status page
// must carry: one overall record plus one per individual element, per type.
func (c *ConfigurationPage) RecordCount() int {
	return len(c.Types) + c.ElementCount()
}

// Locate maps an individual element index to its type descriptor and the
// element's ordinal within that type.
func (c *ConfigurationPage) Locate(index int) (TypeDescriptor, int, bool) {
	if index < 0 {
		return TypeDescriptor{}, 0, false
	}
	for _, t := range c.Types {
		if index < t.Start+t.Count {
			return t, index - t.Start, true
		}
	}
	return TypeDescriptor{}, 0, false
}

// Primary returns the primary subenclosure descriptor.
func (c *ConfigurationPage) Primary() SubEnclosure {
	if len(c.SubEnclosures) == 0 {
		return SubEnclosure{}
	}
	return c.SubEnclosures[0]
}

// DecodeConfigurationPage decodes the configuration page which declares the
// element type groups, their element counts and type names.
func DecodeConfigurationPage(b []byte) (*ConfigurationPage, error) {
	h, b, err := decodeHeader(PageConfiguration, b)
	if err != nil {
		return nil, err
	}
	page := &ConfigurationPage{Generation: h.Generation}

	off := HeaderLen
	subs := int(h.Specific) + 1
	totalHeaders := 0
	for i := 0; i < subs; i++ {
		if off+4 > len(b) {
			return nil, protoErr(PageConfiguration, off, "enclosure descriptor %d truncated", i)
		}
		dlen := 4 + int(b[off+3])
		if dlen < enclosureDescriptorMin {
			return nil, protoErr(PageConfiguration, off+3, "enclosure descriptor length %d below minimum", dlen)
		}
		if off+dlen > len(b) {
			return nil, protoErr(PageConfiguration, off, "enclosure descriptor %d overruns page", i)
		}
		d := b[off : off+dlen]
		sub := SubEnclosure{
			ProcessID:    (d[0] >> 4) & 0x07,
			ProcessCount: d[0] & 0x07,
			ID:           d[1],
			TypeHeaders:  int(d[2]),
			LogicalID:    binary.BigEndian.Uint64(d[4:12]),
			Vendor:       trimText(d[12:20]),
			Product:      trimText(d[20:36]),
			Revision:     trimText(d[36:40]),
		}
		if dlen > enclosureDescriptorMin {
			sub.VendorSpecific = append([]byte(nil), d[enclosureDescriptorMin:]...)
		}
		totalHeaders += sub.TypeHeaders
		page.SubEnclosures = append(page.SubEnclosures, sub)
		off += dlen
	}

	textLens := make([]int, 0, totalHeaders)
	start := 0
	for i := 0; i < totalHeaders; i++ {
		if off+4 > len(b) {
			return nil, protoErr(PageConfiguration, off, "type descriptor header %d truncated", i)
		}
		td := TypeDescriptor{
			Type:         ElementType(b[off]),
			Count:        int(b[off+1]),
			SubEnclosure: b[off+2],
			Start:        start,
		}
		start += td.Count
		textLens = append(textLens, int(b[off+3]))
		page.Types = append(page.Types, td)
		off += 4
	}

	for i, n := range textLens {
		if off+n > len(b) {
			return nil, protoErr(PageConfiguration, off, "type descriptor text %d overruns page", i)
		}
		page.Types[i].Text = trimText(b[off : off+n])
		off += n
	}

	return page, nil
}
