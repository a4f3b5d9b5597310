package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/sigreer/jbod/internal/ses"
	"github.com/sigreer/jbod/internal/sysfs"
)

// Transport carries SES diagnostic pages to and from one enclosure.
type Transport interface {
	ReceiveDiagnostic(ctx context.Context, page uint8) ([]byte, error)
	SendDiagnostic(ctx context.Context, data []byte) error
}

// SerialReader is implemented by transports that can read the enclosure
// unit serial number.
type SerialReader interface {
	UnitSerial(ctx context.Context) (string, error)
}

// Resolver maps SAS addresses to host device names. Snapshot is called once
// per build.
type Resolver interface {
	Snapshot() (*sysfs.Index, error)
}

// Enclosure is a point-in-time view of one enclosure. It is never updated
// after Build returns it.
type Enclosure struct {
	// ID is the enclosure logical identifier, or the target path when the
	// enclosure reports none.
	ID            string             `json:"id"`
	Target        string             `json:"target"`
	Vendor        string             `json:"vendor"`
	Product       string             `json:"product"`
	Revision      string             `json:"revision"`
	Serial        string             `json:"serial,omitempty"`
	Generation    uint32             `json:"generation"`
	SubEnclosures []ses.SubEnclosure `json:"subenclosures"`
	Groups        []ElementGroup     `json:"groups"`
	Elements      []Element          `json:"elements"`
	Warnings      []string           `json:"warnings,omitempty"`
	ReadAt        time.Time          `json:"read_at"`
}

// ElementGroup is one element type group of the enclosure.
type ElementGroup struct {
	Type         ses.ElementType   `json:"type"`
	SubEnclosure uint8             `json:"subenclosure"`
	Count        int               `json:"count"`
	Start        int               `json:"start"`
	Text         string            `json:"text,omitempty"`
	Description  string            `json:"description,omitempty"`
	Overall      ses.ElementStatus `json:"overall"`
}

// Element is one individual element. Index is stable across polls as long
// as the enclosure configuration does not change.
type Element struct {
	Index        int               `json:"index"`
	Ordinal      int               `json:"ordinal"`
	Type         ses.ElementType   `json:"type"`
	SubEnclosure uint8             `json:"subenclosure"`
	Description  string            `json:"description,omitempty"`
	Raw          ses.Record        `json:"-"`
	Status       ses.ElementStatus `json:"status"`
	Binding      *SlotBinding      `json:"binding,omitempty"`
}

// SlotBinding associates a slot element with the disk in it.
type SlotBinding struct {
	SlotNumber   *int     `json:"slot_number,omitempty"`
	SASAddresses []string `json:"sas_addresses,omitempty"`
	Device       string   `json:"device,omitempty"`    // /dev/sdX
	SGDevice     string   `json:"sg_device,omitempty"` // /dev/sgN
	HCTL         string   `json:"hctl,omitempty"`
	Vendor       string   `json:"vendor,omitempty"`
	Model        string   `json:"model,omitempty"`
	Serial       string   `json:"serial,omitempty"`
}

// Label returns the element description, or a name derived from its type
// and position when the enclosure gives none.
func (e *Element) Label() string {
	if e.Description != "" {
		return e.Description
	}
	return fmt.Sprintf("%s %d", e.Type, e.Ordinal)
}

// Slot returns the slot number reported by the enclosure, falling back to
// the element's position within its group.
func (e *Element) Slot() int {
	if e.Binding != nil && e.Binding.SlotNumber != nil {
		return *e.Binding.SlotNumber
	}
	return e.Ordinal
}

// Populated reports whether a slot element holds a disk.
func (e *Element) Populated() bool {
	if !e.Type.IsSlot() {
		return false
	}
	if e.Status.Code == ses.StatusNotInstalled {
		return false
	}
	return e.Status.Installed() || (e.Binding != nil && len(e.Binding.SASAddresses) > 0)
}

// Element returns the element with the given index.
func (e *Enclosure) Element(index int) (*Element, bool) {
	if index < 0 || index >= len(e.Elements) {
		return nil, false
	}
	return &e.Elements[index], true
}

// ElementsOfType returns the elements of type t in index order.
func (e *Enclosure) ElementsOfType(types ...ses.ElementType) []*Element {
	var out []*Element
	for i := range e.Elements {
		for _, t := range types {
			if e.Elements[i].Type == t {
				out = append(out, &e.Elements[i])
				break
			}
		}
	}
	return out
}

// Slots returns all device slot and array device slot elements.
func (e *Enclosure) Slots() []*Element {
	return e.ElementsOfType(ses.TypeDeviceSlot, ses.TypeArrayDeviceSlot)
}

// TransportError reports a failed exchange with a target.
type TransportError struct {
	Target string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Target, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BuildError reports why a topology could not be built. Err is a
// *TransportError, a *ses.ProtocolError or wraps ses.ErrElementCountMismatch.
type BuildError struct {
	Target string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build topology for %s: %v", e.Target, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
