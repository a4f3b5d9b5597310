package registry

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/sigreer/jbod/internal/topology"
)

// conn wraps a cached transport and notes when a command failed because the
// device behind it no longer exists.
type conn struct {
	topology.Transport
	gone bool
}

// serialConn is a conn whose transport can read the unit serial number.
type serialConn struct {
	*conn
	serial topology.SerialReader
}

func (c *serialConn) UnitSerial(ctx context.Context) (string, error) {
	s, err := c.serial.UnitSerial(ctx)
	return s, c.check(err)
}

func track(t topology.Transport) (*conn, topology.Transport) {
	c := &conn{Transport: t}
	if sr, ok := t.(topology.SerialReader); ok {
		return c, &serialConn{conn: c, serial: sr}
	}
	return c, c
}

func (c *conn) ReceiveDiagnostic(ctx context.Context, page uint8) ([]byte, error) {
	b, err := c.Transport.ReceiveDiagnostic(ctx, page)
	return b, c.check(err)
}

func (c *conn) SendDiagnostic(ctx context.Context, data []byte) error {
	return c.check(c.Transport.SendDiagnostic(ctx, data))
}

func (c *conn) check(err error) error {
	if deviceGone(err) {
		c.gone = true
	}
	return err
}

func deviceGone(err error) bool {
	return errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, os.ErrClosed)
}
