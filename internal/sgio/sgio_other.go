//go:build !linux

package sgio

import "time"

// Open always fails outside linux.
func Open(path string, timeout time.Duration) (*Device, error) {
	return nil, ErrUnsupported
}

func (d *Device) ioctl(cdb []byte, dir direction, buf []byte, timeoutMS uint32) (int, error) {
	return 0, ErrUnsupported
}
