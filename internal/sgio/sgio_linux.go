//go:build linux

package sgio

import (
	"fmt"
	"os"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	sgIO            = 0x2285
	sgGetVersionNum = 0x2282
	sgInfoOKMask    = 0x1
	sgInfoOK        = 0x0
)

// sgIoHdr mirrors sg_io_hdr_t from <scsi/sg.h>.
type sgIoHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSbLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

// Open opens an sg node and checks that the sg driver answers on it.
// timeout bounds each command; zero selects DefaultTimeout.
func Open(path string, timeout time.Duration) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	v, err := unix.IoctlGetInt(int(f.Fd()), sgGetVersionNum)
	if err != nil || v < 30000 {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotSG, path)
	}
	return &Device{path: path, timeout: timeout, f: f}, nil
}

func (d *Device) ioctl(cdb []byte, dir direction, buf []byte, timeoutMS uint32) (int, error) {
	sense := make([]byte, senseLen)
	hdr := sgIoHdr{
		interfaceID:    'S',
		dxferDirection: int32(dir),
		cmdLen:         uint8(len(cdb)),
		mxSbLen:        uint8(len(sense)),
		dxferLen:       uint32(len(buf)),
		cmdp:           uintptr(unsafe.Pointer(&cdb[0])),
		sbp:            uintptr(unsafe.Pointer(&sense[0])),
		timeout:        timeoutMS,
	}
	if len(buf) > 0 {
		hdr.dxferp = uintptr(unsafe.Pointer(&buf[0]))
	} else {
		hdr.dxferDirection = int32(dxferNone)
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), sgIO, uintptr(unsafe.Pointer(&hdr)))
	runtime.KeepAlive(cdb)
	runtime.KeepAlive(buf)
	runtime.KeepAlive(sense)
	if errno != 0 {
		return 0, os.NewSyscallError("SG_IO", errno)
	}

	if hdr.info&sgInfoOKMask != sgInfoOK {
		cerr := &CommandError{
			Op:           cdb[0],
			Status:       hdr.status,
			HostStatus:   hdr.hostStatus,
			DriverStatus: hdr.driverStatus,
		}
		if s, ok := parseSense(sense[:hdr.sbLenWr]); ok {
			cerr.Sense = &s
		}
		return 0, cerr
	}
	return len(buf) - int(hdr.resid), nil
}
