// Package sgio issues SES diagnostic commands to enclosure devices through
// the Linux SCSI generic (sg) driver.
package sgio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// SCSI operation codes used by this package
const (
	opInquiry                  = 0x12
	opReceiveDiagnosticResults = 0x1c
	opSendDiagnostic           = 0x1d
)

const (
	// MaxPageLen is the allocation length used for diagnostic page reads.
	MaxPageLen = 65532

	// DefaultTimeout bounds a single command when the caller sets none.
	DefaultTimeout = 10 * time.Second

	vpdUnitSerial = 0x80
	inquiryLen    = 36
	senseLen      = 32
)

// Common errors
var (
	ErrUnsupported = errors.New("sgio: SCSI generic passthrough is only available on linux")
	ErrNotSG       = errors.New("sgio: not a SCSI generic device")
)

type direction int32

// Data transfer directions from <scsi/sg.h>
const (
	dxferNone    direction = -1
	dxferToDev   direction = -2
	dxferFromDev direction = -3
)

// Device is an open sg node. Commands on one device are serialized; a
// caller whose context ends stops waiting while the in-flight command runs
// to completion under the device lock.
type Device struct {
	path    string
	timeout time.Duration
	f       *os.File

	mu sync.Mutex
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// Close releases the device node.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// ReceiveDiagnostic issues RECEIVE DIAGNOSTIC RESULTS for page and returns the
// page trimmed to its declared length.
func (d *Device) ReceiveDiagnostic(ctx context.Context, page uint8) ([]byte, error) {
	buf := make([]byte, MaxPageLen)
	n, err := d.exec(ctx, receiveDiagnosticCDB(page, MaxPageLen), dxferFromDev, buf)
	if err != nil {
		return nil, fmt.Errorf("receive diagnostic page 0x%02x: %w", page, err)
	}
	buf = buf[:n]
	if len(buf) >= 4 {
		if want := 4 + (int(buf[2])<<8 | int(buf[3])); want < len(buf) {
			buf = buf[:want]
		}
	}
	return buf, nil
}

// SendDiagnostic issues SEND DIAGNOSTIC with the page format bit set and the
// given page as parameter list.
func (d *Device) SendDiagnostic(ctx context.Context, data []byte) error {
	if len(data) > 0xffff {
		return fmt.Errorf("send diagnostic: parameter list of %d bytes too long", len(data))
	}
	if _, err := d.exec(ctx, sendDiagnosticCDB(len(data)), dxferToDev, data); err != nil {
		return fmt.Errorf("send diagnostic page 0x%02x: %w", firstByte(data), err)
	}
	return nil
}

// Identity is the standard INQUIRY identification of a device.
type Identity struct {
	PeripheralType uint8
	Vendor         string
	Product        string
	Revision       string
}

// Inquiry issues a standard INQUIRY.
func (d *Device) Inquiry(ctx context.Context) (Identity, error) {
	buf := make([]byte, inquiryLen)
	n, err := d.exec(ctx, inquiryCDB(false, 0, inquiryLen), dxferFromDev, buf)
	if err != nil {
		return Identity{}, fmt.Errorf("inquiry: %w", err)
	}
	return parseInquiry(buf[:n])
}

// UnitSerial reads the unit serial number VPD page (0x80).
func (d *Device) UnitSerial(ctx context.Context) (string, error) {
	buf := make([]byte, 255)
	n, err := d.exec(ctx, inquiryCDB(true, vpdUnitSerial, len(buf)), dxferFromDev, buf)
	if err != nil {
		return "", fmt.Errorf("inquiry vpd 0x80: %w", err)
	}
	return parseUnitSerial(buf[:n])
}

type result struct {
	n   int
	err error
}

func (d *Device) exec(ctx context.Context, cdb []byte, dir direction, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := d.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout < time.Millisecond {
		return 0, context.DeadlineExceeded
	}

	done := make(chan result, 1)
	go func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.f == nil {
			done <- result{err: os.ErrClosed}
			return
		}
		n, err := d.ioctl(cdb, dir, buf, uint32(timeout/time.Millisecond))
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func receiveDiagnosticCDB(page uint8, alloc int) []byte {
	return []byte{opReceiveDiagnosticResults, 0x01, page, byte(alloc >> 8), byte(alloc), 0}
}

func sendDiagnosticCDB(paramLen int) []byte {
	return []byte{opSendDiagnostic, 0x10, 0, byte(paramLen >> 8), byte(paramLen), 0}
}

func inquiryCDB(evpd bool, page uint8, alloc int) []byte {
	cdb := []byte{opInquiry, 0, 0, byte(alloc >> 8), byte(alloc), 0}
	if evpd {
		cdb[1] = 0x01
		cdb[2] = page
	}
	return cdb
}

func parseInquiry(b []byte) (Identity, error) {
	if len(b) < inquiryLen {
		return Identity{}, fmt.Errorf("inquiry: short response (%d bytes)", len(b))
	}
	return Identity{
		PeripheralType: b[0] & 0x1f,
		Vendor:         strings.TrimSpace(string(b[8:16])),
		Product:        strings.TrimSpace(string(b[16:32])),
		Revision:       strings.TrimSpace(string(b[32:36])),
	}, nil
}

func parseUnitSerial(b []byte) (string, error) {
	if len(b) < 4 || b[1] != vpdUnitSerial {
		return "", fmt.Errorf("inquiry vpd 0x80: malformed response")
	}
	end := 4 + int(b[3])
	if end > len(b) {
		end = len(b)
	}
	return strings.TrimSpace(strings.Trim(string(b[4:end]), "\x00")), nil
}

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
