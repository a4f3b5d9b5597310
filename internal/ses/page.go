package ses

import (
	"encoding/binary"
	"fmt"
)

// PageCode identifies an SES diagnostic page.
type PageCode uint8

const (
	PageSupportedDiagnostics PageCode = 0x00
	PageConfiguration        PageCode = 0x01
	PageEnclosureStatus      PageCode = 0x02 // control page shares the code
	PageElementDescriptor    PageCode = 0x07
	PageAdditionalStatus     PageCode = 0x0A
)

func (p PageCode) String() string {
	switch p {
	case PageSupportedDiagnostics:
		return "supported diagnostic pages"
	case PageConfiguration:
		return "configuration"
	case PageEnclosureStatus:
		return "enclosure status"
	case PageElementDescriptor:
		return "element descriptor"
	case PageAdditionalStatus:
		return "additional element status"
	}
	return fmt.Sprintf("page 0x%02x", uint8(p))
}

// HeaderLen is the size of the common page header including the generation code.
const HeaderLen = 8

// recordLen is the size of one status or control element record.
const recordLen = 4

// Header is the common header shared by every page this package decodes.
type Header struct {
	Code       PageCode
	Specific   uint8 // byte 1, page dependent
	Length     int   // bytes following byte 3
	Generation uint32
}

// ProtocolError reports a malformed page. Offset is the byte offset in the
// page at which decoding stopped.
type ProtocolError struct {
	Page   PageCode
	Offset int
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ses: malformed %s page at offset %d: %s", e.Page, e.Offset, e.Reason)
}

func protoErr(page PageCode, off int, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Page: page, Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// decodeHeader validates the page code and length and returns the header
// together with the page body trimmed to the declared length.
func decodeHeader(want PageCode, b []byte) (Header, []byte, error) {
	if len(b) < 4 {
		return Header{}, nil, protoErr(want, len(b), "short page header (%d bytes)", len(b))
	}
	h := Header{
		Code:     PageCode(b[0]),
		Specific: b[1],
		Length:   int(binary.BigEndian.Uint16(b[2:4])),
	}
	if h.Code != want {
		return Header{}, nil, protoErr(want, 0, "unexpected page code 0x%02x", uint8(h.Code))
	}
	end := 4 + h.Length
	if end > len(b) {
		return Header{}, nil, protoErr(want, 2, "page length %d exceeds buffer of %d bytes", h.Length, len(b))
	}
	if end < HeaderLen {
		return Header{}, nil, protoErr(want, 2, "page length %d too short for generation code", h.Length)
	}
	h.Generation = binary.BigEndian.Uint32(b[4:8])
	return h, b[:end], nil
}

// PageLength returns the total size of the page at the start of b as
// declared by its header, or 0 if b is too short to tell.
func PageLength(b []byte) int {
	if len(b) < 4 {
		return 0
	}
	return 4 + int(binary.BigEndian.Uint16(b[2:4]))
}

// DecodeSupportedPages lists the page codes reported by page 0x00.
func DecodeSupportedPages(b []byte) ([]PageCode, error) {
	if len(b) < 4 {
		return nil, protoErr(PageSupportedDiagnostics, len(b), "short page header (%d bytes)", len(b))
	}
	if PageCode(b[0]) != PageSupportedDiagnostics {
		return nil, protoErr(PageSupportedDiagnostics, 0, "unexpected page code 0x%02x", b[0])
	}
	end := PageLength(b)
	if end > len(b) {
		return nil, protoErr(PageSupportedDiagnostics, 2, "page length %d exceeds buffer of %d bytes", end-4, len(b))
	}
	pages := make([]PageCode, 0, end-4)
	for _, c := range b[4:end] {
		pages = append(pages, PageCode(c))
	}
	return pages, nil
}

func trimText(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	start := 0
	for start < end && (b[start] == ' ' || b[start] == 0) {
		start++
	}
	return string(b[start:end])
}

func flag(b byte, bit uint) bool {
	return b&(1<<bit) != 0
}
