package ses

import "fmt"

// Enclosure status page byte 1 flags.
const (
	FlagUnrecoverable uint8 = 1 << 0
	FlagCritical      uint8 = 1 << 1
	FlagNoncritical   uint8 = 1 << 2
	FlagInfo          uint8 = 1 << 3
	FlagInvalidOp     uint8 = 1 << 4
)

// StatusPage is an enclosure status page decoded into opaque records. The
// records keep page order: for every type descriptor header, the overall
// record followed by the individual records. Records are given meaning by
// Interpret once the configuration page is known.
type StatusPage struct {
	Code       PageCode `json:"code"`
	Flags      uint8    `json:"flags"`
	Generation uint32   `json:"generation"`
	Records    []Record `json:"-"`
}

// DecodeStatusPage splits a status page of the given code into its header
// and 4-byte element records.
func DecodeStatusPage(code PageCode, b []byte) (*StatusPage, error) {
	h, b, err := decodeHeader(code, b)
	if err != nil {
		return nil, err
	}
	body := b[HeaderLen:]
	if len(body)%recordLen != 0 {
		return nil, protoErr(code, HeaderLen+len(body)-len(body)%recordLen,
			"%d trailing bytes after last element record", len(body)%recordLen)
	}
	page := &StatusPage{
		Code:       h.Code,
		Flags:      h.Specific,
		Generation: h.Generation,
		Records:    make([]Record, len(body)/recordLen),
	}
	for i := range page.Records {
		copy(page.Records[i][:], body[i*recordLen:])
	}
	return page, nil
}

// Clone returns a deep copy of the page.
func (s *StatusPage) Clone() *StatusPage {
	c := *s
	c.Records = append([]Record(nil), s.Records...)
	return &c
}

// Check verifies that the page carries exactly the records declared by cfg.
func (s *StatusPage) Check(cfg *ConfigurationPage) error {
	if want := cfg.RecordCount(); want != len(s.Records) {
		return fmt.Errorf("%w: configuration declares %d records (%d types, %d elements), status page has %d",
			ErrElementCountMismatch, want, len(cfg.Types), cfg.ElementCount(), len(s.Records))
	}
	return nil
}

// recordIndex converts an individual element index into a position in
// Records, skipping the overall record of every type up to and including
// the element's own.
func recordIndex(cfg *ConfigurationPage, index int) (int, bool) {
	for i, t := range cfg.Types {
		if index < t.Start+t.Count {
			if index < t.Start {
				return 0, false
			}
			return index + i + 1, true
		}
	}
	return 0, false
}

// Element returns the individual record for the element index.
func (s *StatusPage) Element(cfg *ConfigurationPage, index int) (Record, error) {
	pos, ok := recordIndex(cfg, index)
	if !ok || pos >= len(s.Records) {
		return Record{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return s.Records[pos], nil
}

// Overall returns the overall record of the i'th type descriptor.
func (s *StatusPage) Overall(cfg *ConfigurationPage, typeIdx int) (Record, bool) {
	if typeIdx < 0 || typeIdx >= len(cfg.Types) {
		return Record{}, false
	}
	pos := cfg.Types[typeIdx].Start + typeIdx
	if pos >= len(s.Records) {
		return Record{}, false
	}
	return s.Records[pos], true
}
