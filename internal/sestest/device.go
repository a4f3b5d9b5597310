package sestest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrGenerationMismatch is returned when a control page carries a stale
// expected generation code.
var ErrGenerationMismatch = errors.New("sestest: generation code mismatch")

// Device simulates an SES enclosure behind a transport. It applies identify
// and fault requests from control pages to its status records.
type Device struct {
	mu  sync.Mutex
	enc *Enclosure

	// Delay is applied to every call; the call returns ctx.Err() if the
	// context ends first.
	Delay time.Duration
	// SendDelay is applied to SendDiagnostic in addition to Delay.
	SendDelay time.Duration
	// ReceiveErr fails reads of the given pages.
	ReceiveErr map[uint8]error
	// SendErr fails every write.
	SendErr error
	// IgnoreControl accepts control pages without applying them.
	IgnoreControl bool
	// ApplyAfterReads defers applying a control page until this many status
	// reads have happened after the write.
	ApplyAfterReads int
	// Serial is returned by UnitSerial when set.
	Serial string

	pending     func()
	pendingLeft int

	inflight    int
	maxInflight int
	sends       [][]byte
	reads       map[uint8]int
}

// NewDevice returns a device serving the given enclosure.
func NewDevice(enc *Enclosure) *Device {
	return &Device{enc: enc, reads: make(map[uint8]int), Serial: enc.Serial}
}

func (d *Device) enter(ctx context.Context, extra time.Duration) error {
	d.mu.Lock()
	d.inflight++
	if d.inflight > d.maxInflight {
		d.maxInflight = d.inflight
	}
	delay := d.Delay + extra
	d.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) leave() {
	d.mu.Lock()
	d.inflight--
	d.mu.Unlock()
}

// ReceiveDiagnostic returns the requested page.
func (d *Device) ReceiveDiagnostic(ctx context.Context, page uint8) ([]byte, error) {
	defer d.leave()
	if err := d.enter(ctx, 0); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads[page]++
	if err := d.ReceiveErr[page]; err != nil {
		return nil, err
	}
	switch page {
	case PageConfiguration:
		return d.enc.ConfigPage(), nil
	case PageEnclosureStatus:
		if d.pending != nil {
			if d.pendingLeft <= 0 {
				d.pending()
				d.pending = nil
			} else {
				d.pendingLeft--
			}
		}
		return d.enc.StatusPage(), nil
	case PageElementDescriptor:
		return d.enc.DescriptorPage(), nil
	case PageAdditionalStatus:
		return d.enc.AdditionalPage(), nil
	}
	return nil, fmt.Errorf("sestest: page 0x%02x not supported", page)
}

// SendDiagnostic applies an enclosure control page.
func (d *Device) SendDiagnostic(ctx context.Context, data []byte) error {
	defer d.leave()
	if err := d.enter(ctx, d.SendDelay); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends = append(d.sends, append([]byte(nil), data...))
	if d.SendErr != nil {
		return d.SendErr
	}
	if len(data) < 8 || data[0] != PageEnclosureStatus {
		return fmt.Errorf("sestest: not a control page")
	}
	if binary.BigEndian.Uint32(data[4:8]) != d.enc.Generation {
		return ErrGenerationMismatch
	}
	if d.IgnoreControl {
		return nil
	}
	apply := d.applyLocked(data[8:])
	if d.ApplyAfterReads > 0 {
		d.pending = apply
		d.pendingLeft = d.ApplyAfterReads
		return nil
	}
	apply()
	return nil
}

func (d *Device) applyLocked(records []byte) func() {
	type change struct {
		g, i int
		rec  [4]byte
	}
	var changes []change
	pos := 0
	for gi, g := range d.enc.Groups {
		pos++ // overall
		for i := range g.Elements {
			if (pos+1)*4 > len(records) {
				break
			}
			r := records[pos*4 : pos*4+4]
			pos++
			if r[0]&0x80 == 0 {
				continue
			}
			if g.Type != TypeDeviceSlot && g.Type != TypeArrayDeviceSlot {
				continue
			}
			st := g.Elements[i].Status
			st[2] = st[2]&^0x02 | r[2]&0x02
			st[3] = st[3]&^0x20 | r[3]&0x20
			changes = append(changes, change{gi, i, st})
		}
	}
	return func() {
		for _, c := range changes {
			d.enc.Groups[c.g].Elements[c.i].Status = c.rec
		}
	}
}

// UnitSerial returns the configured unit serial number.
func (d *Device) UnitSerial(ctx context.Context) (string, error) {
	if d.Serial == "" {
		return "", errors.New("sestest: no serial")
	}
	return d.Serial, nil
}

// Record returns the current status record of an element.
func (d *Device) Record(group, element int) [4]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enc.Groups[group].Elements[element].Status
}

// SetRecord replaces the status record of an element.
func (d *Device) SetRecord(group, element int, r [4]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enc.Groups[group].Elements[element].Status = r
}

// Sends returns copies of every control page written so far.
func (d *Device) Sends() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.sends...)
}

// Reads returns how many times a page was read.
func (d *Device) Reads(page uint8) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[page]
}

// MaxInflight returns the highest number of concurrent calls observed.
func (d *Device) MaxInflight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInflight
}

// ResetMaxInflight restarts MaxInflight tracking from the current load.
func (d *Device) ResetMaxInflight() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxInflight = d.inflight
}

// Close is a no-op.
func (d *Device) Close() error { return nil }
