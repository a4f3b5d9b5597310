package ses

import "encoding/binary"

// ElementDescriptorPage holds the descriptive text of every element, as
// reported by the element descriptor page (0x07).
type ElementDescriptorPage struct {
	Generation uint32
	// Overall is indexed by type descriptor position.
	Overall []string
	// Elements is indexed by individual element index.
	Elements []string
}

// Description returns the text for the element index, or "".
func (p *ElementDescriptorPage) Description(index int) string {
	if p == nil || index < 0 || index >= len(p.Elements) {
		return ""
	}
	return p.Elements[index]
}

// DecodeElementDescriptorPage decodes page 0x07 using the type layout of the
// configuration page. The page carries one descriptor per status record.
func DecodeElementDescriptorPage(b []byte, cfg *ConfigurationPage) (*ElementDescriptorPage, error) {
	h, b, err := decodeHeader(PageElementDescriptor, b)
	if err != nil {
		return nil, err
	}
	page := &ElementDescriptorPage{
		Generation: h.Generation,
		Overall:    make([]string, 0, len(cfg.Types)),
		Elements:   make([]string, 0, cfg.ElementCount()),
	}

	off := HeaderLen
	next := func() (string, error) {
		if off+4 > len(b) {
			return "", protoErr(PageElementDescriptor, off, "descriptor header truncated")
		}
		n := int(binary.BigEndian.Uint16(b[off+2 : off+4]))
		if off+4+n > len(b) {
			return "", protoErr(PageElementDescriptor, off+2, "descriptor length %d overruns page", n)
		}
		text := trimText(b[off+4 : off+4+n])
		off += 4 + n
		return text, nil
	}

	for _, t := range cfg.Types {
		text, err := next()
		if err != nil {
			return nil, err
		}
		page.Overall = append(page.Overall, text)
		for i := 0; i < t.Count; i++ {
			text, err := next()
			if err != nil {
				return nil, err
			}
			page.Elements = append(page.Elements, text)
		}
	}
	return page, nil
}
