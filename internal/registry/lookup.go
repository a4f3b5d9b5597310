package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/sysfs"
	"github.com/sigreer/jbod/internal/topology"
)

// ErrNotFound means no slot matched the query. It is a normal outcome.
var ErrNotFound = errors.New("slot not found")

// Query names a slot either by the disk in it or by enclosure and element
// index.
type Query struct {
	// Device is /dev/sdX, sdX, /dev/sgN, a /dev/disk/by-* link, a SAS
	// address, an HCTL or a disk serial number.
	Device string

	// Enclosure is an enclosure ID, target path or sg name; used with Index
	// when HasIndex is set.
	Enclosure string
	Index     int
	HasIndex  bool
}

func (q Query) String() string {
	if q.HasIndex {
		return fmt.Sprintf("%s:%d", q.Enclosure, q.Index)
	}
	return q.Device
}

// ParseQuery reads ENCLOSURE:INDEX or a device reference.
func ParseQuery(s string) Query {
	s = strings.TrimSpace(s)
	q := Query{Device: s}
	if i := strings.LastIndex(s, ":"); i > 0 && i < len(s)-1 {
		if n, err := strconv.Atoi(s[i+1:]); err == nil && n >= 0 {
			q.Enclosure = s[:i]
			q.Index = n
			q.HasIndex = true
		}
	}
	return q
}

// FindSlot looks the query up in the most recent discovery.
func (r *Registry) FindSlot(q Query) (*topology.Enclosure, *topology.Element, error) {
	enc, el, err := Find(r.Last().Enclosures(), q)
	if errors.Is(err, ErrNotFound) {
		r.log.Debug("slot lookup found nothing", zap.Stringer("query", q))
	}
	return enc, el, err
}

// Find looks a slot up among enclosures. A coordinate is tried first; if it
// names no known enclosure the whole string is tried as a device reference.
func Find(encs []*topology.Enclosure, q Query) (*topology.Enclosure, *topology.Element, error) {
	if q.HasIndex {
		for _, enc := range encs {
			if !matchesEnclosure(enc, q.Enclosure) {
				continue
			}
			el, ok := enc.Element(q.Index)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s has no element %d", ErrNotFound, enc.ID, q.Index)
			}
			return enc, el, nil
		}
	}

	if q.Device == "" {
		return nil, nil, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	name := sysfs.Canonical(q.Device)
	addr, isAddr := sysfs.ParseSASAddress(q.Device)
	for _, enc := range encs {
		for _, el := range enc.Slots() {
			if matchesDevice(el.Binding, q.Device, name, addr, isAddr) {
				return enc, el, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, q)
}

func matchesEnclosure(enc *topology.Enclosure, ref string) bool {
	return strings.EqualFold(enc.ID, strings.TrimPrefix(strings.ToLower(ref), "0x")) ||
		enc.Target == ref ||
		filepath.Base(enc.Target) == ref
}

func matchesDevice(b *topology.SlotBinding, raw, name string, addr uint64, isAddr bool) bool {
	if b == nil {
		return false
	}
	if b.Device != "" && filepath.Base(b.Device) == name {
		return true
	}
	if b.SGDevice != "" && filepath.Base(b.SGDevice) == name {
		return true
	}
	if b.HCTL != "" && b.HCTL == raw {
		return true
	}
	if b.Serial != "" && b.Serial == raw {
		return true
	}
	if isAddr {
		for _, s := range b.SASAddresses {
			if a, ok := sysfs.ParseSASAddress(s); ok && a == addr {
				return true
			}
		}
	}
	return false
}
