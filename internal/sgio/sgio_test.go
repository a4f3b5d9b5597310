package sgio

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCDBs(t *testing.T) {
	assert.Equal(t, []byte{0x1c, 0x01, 0x02, 0xff, 0xfc, 0x00}, receiveDiagnosticCDB(0x02, MaxPageLen))
	assert.Equal(t, []byte{0x1d, 0x10, 0x00, 0x01, 0x04, 0x00}, sendDiagnosticCDB(260))
	assert.Equal(t, []byte{0x12, 0x00, 0x00, 0x00, 0x24, 0x00}, inquiryCDB(false, 0, 36))
	assert.Equal(t, []byte{0x12, 0x01, 0x80, 0x00, 0xff, 0x00}, inquiryCDB(true, 0x80, 255))
}

func TestParseInquiry(t *testing.T) {
	b := make([]byte, 36)
	b[0] = 0x0d
	copy(b[8:], "LSI     ")
	copy(b[16:], "SAS2X36         ")
	copy(b[32:], "0717")
	id, err := parseInquiry(b)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x0d), id.PeripheralType)
	assert.Equal(t, "LSI", id.Vendor)
	assert.Equal(t, "SAS2X36", id.Product)
	assert.Equal(t, "0717", id.Revision)

	_, err = parseInquiry(b[:20])
	assert.Error(t, err)
}

func TestParseUnitSerial(t *testing.T) {
	b := append([]byte{0x0d, 0x80, 0x00, 0x0a}, []byte("  SN123456")...)
	sn, err := parseUnitSerial(b)
	require.NoError(t, err)
	assert.Equal(t, "SN123456", sn)

	_, err = parseUnitSerial([]byte{0x0d, 0x83, 0, 0})
	assert.Error(t, err)
}

func TestParseSense(t *testing.T) {
	fixed := make([]byte, 18)
	fixed[0] = 0x70
	fixed[2] = 0x05
	fixed[12] = 0x24
	s, ok := parseSense(fixed)
	require.True(t, ok)
	assert.Equal(t, Sense{Key: 0x05, ASC: 0x24}, s)
	assert.Contains(t, s.String(), "illegal request")

	s, ok = parseSense([]byte{0x72, 0x06, 0x29, 0x00})
	require.True(t, ok)
	assert.Equal(t, uint8(0x06), s.Key)

	_, ok = parseSense(nil)
	assert.False(t, ok)
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Op: 0x1d, Status: 0x02, HostStatus: 0x03, Sense: &Sense{Key: 0x05, ASC: 0x35, ASCQ: 0x01}}
	assert.True(t, err.TimedOut())
	assert.Contains(t, err.Error(), "scsi op 0x1d")
	assert.Contains(t, err.Error(), "asc 0x35")
}

func TestExecHonoursContext(t *testing.T) {
	d := &Device{path: "/dev/null", f: os.Stdin}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.ReceiveDiagnostic(ctx, 0x02)
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	err = d.SendDiagnostic(ctx, []byte{0x02, 0, 0, 4, 0, 0, 0, 0})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedDevice(t *testing.T) {
	d := &Device{path: "/dev/sg99"}
	assert.NoError(t, d.Close())
	_, err := d.ReceiveDiagnostic(context.Background(), 0x01)
	assert.ErrorIs(t, err, os.ErrClosed)
}
