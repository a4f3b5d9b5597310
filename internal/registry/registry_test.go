package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/jbod/internal/sestest"
	"github.com/sigreer/jbod/internal/sysfs"
	"github.com/sigreer/jbod/internal/topology"
)

type staticResolver struct{ idx *sysfs.Index }

func (r staticResolver) Snapshot() (*sysfs.Index, error) { return r.idx, nil }

func enclosure(id uint64, disks ...uint64) *sestest.Enclosure {
	var slots []sestest.Element
	for i, addr := range disks {
		slots = append(slots, sestest.Element{
			Status:      sestest.SlotRecord(sestest.StatusOK, false, false),
			Description: fmt.Sprintf("Slot %02d", i),
			SASAddress:  addr,
		})
	}
	return &sestest.Enclosure{
		LogicalID:  id,
		Vendor:     "LSI",
		Product:    "SAS2X36",
		Revision:   "0717",
		Generation: 1,
		Groups: []sestest.Group{
			{Type: sestest.TypeArrayDeviceSlot, Elements: slots},
			{Type: sestest.TypeTemperatureSensor, Elements: []sestest.Element{{Status: sestest.TempRecord(sestest.StatusOK, 50)}}},
		},
	}
}

func newRegistry(devices map[string]*sestest.Device, timeout time.Duration) *Registry {
	idx := sysfs.NewIndex(
		&sysfs.Device{Name: "sdb", Path: "/dev/sdb", SGName: "sg5", SGPath: "/dev/sg5", SASAddress: 0x5000c50000000001, Serial: "ZA1"},
		&sysfs.Device{Name: "sdc", Path: "/dev/sdc", HCTL: "1:0:7:0", SASAddress: 0x5000c50000000002},
		&sysfs.Device{Name: "sdd", Path: "/dev/sdd", SASAddress: 0x5000c50000000003},
	)
	open := func(path string) (topology.Transport, error) {
		d, ok := devices[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return d, nil
	}
	return New(topology.NewBuilder(staticResolver{idx}, timeout), open, 4)
}

func TestDiscoverIsolatesFailures(t *testing.T) {
	slow := sestest.NewDevice(enclosure(0x5003048000000002))
	slow.Delay = 500 * time.Millisecond
	devices := map[string]*sestest.Device{
		"/dev/sg1": sestest.NewDevice(enclosure(0x5003048000000001, 0x5000c50000000001)),
		"/dev/sg2": slow,
		"/dev/sg3": sestest.NewDevice(enclosure(0x5003048000000003, 0x5000c50000000003)),
	}
	r := newRegistry(devices, 50*time.Millisecond)

	start := time.Now()
	out := r.Discover(context.Background(), []string{"/dev/sg1", "/dev/sg2", "/dev/sg3"})
	assert.Less(t, time.Since(start), 400*time.Millisecond, "slow target must not hold up the others")

	require.Len(t, out, 3)
	assert.Equal(t, "/dev/sg1", out[0].Target)
	require.NoError(t, out[0].Err)
	assert.Equal(t, "5003048000000001", out[0].Enclosure.ID)

	assert.Equal(t, "/dev/sg2", out[1].Target)
	assert.Nil(t, out[1].Enclosure)
	var terr *topology.TransportError
	require.ErrorAs(t, out[1].Err, &terr)
	assert.ErrorIs(t, out[1].Err, context.DeadlineExceeded)

	assert.Equal(t, "/dev/sg3", out[2].Target)
	require.NoError(t, out[2].Err)
	assert.Equal(t, "5003048000000003", out[2].Enclosure.ID)

	assert.Len(t, out.Enclosures(), 2)
	assert.Error(t, out.Err())
	assert.Contains(t, out.Err().Error(), "/dev/sg2")
	assert.Equal(t, out, r.Last())
}

func TestDiscoverOpenFailure(t *testing.T) {
	r := newRegistry(map[string]*sestest.Device{}, time.Second)
	out := r.Discover(context.Background(), []string{"/dev/sg7"})
	require.Len(t, out, 1)
	var berr *topology.BuildError
	require.ErrorAs(t, out[0].Err, &berr)
	assert.ErrorIs(t, out[0].Err, os.ErrNotExist)
	assert.Empty(t, out.Enclosures())
}

func TestDiscoverAllHealthy(t *testing.T) {
	devices := map[string]*sestest.Device{
		"/dev/sg1": sestest.NewDevice(enclosure(0x5003048000000001)),
	}
	out := newRegistry(devices, time.Second).Discover(context.Background(), []string{"/dev/sg1"})
	assert.NoError(t, out.Err())
}

func TestAcquireSerializes(t *testing.T) {
	devices := map[string]*sestest.Device{"/dev/sg1": sestest.NewDevice(enclosure(1))}
	r := newRegistry(devices, time.Second)

	_, release, err := r.Acquire(context.Background(), "/dev/sg1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = r.Acquire(ctx, "/dev/sg1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other targets are unaffected
	devices["/dev/sg2"] = sestest.NewDevice(enclosure(2))
	_, release2, err := r.Acquire(context.Background(), "/dev/sg2")
	require.NoError(t, err)
	release2()

	release()
	release() // second call is a no-op
	tr, release3, err := r.Acquire(context.Background(), "/dev/sg1")
	require.NoError(t, err)
	assert.Same(t, devices["/dev/sg1"], tr.(*serialConn).Transport)
	release3()

	assert.NoError(t, r.Close())
}

func TestAcquireSerializesByIdentity(t *testing.T) {
	shared := sestest.NewDevice(enclosure(0x5003048000000001))
	devices := map[string]*sestest.Device{
		"/dev/sg1": shared,
		"/dev/sg2": shared,
		"/dev/sg3": sestest.NewDevice(enclosure(0x5003048000000003)),
	}
	r := newRegistry(devices, time.Second)
	require.NoError(t, r.Discover(context.Background(), []string{"/dev/sg1", "/dev/sg2", "/dev/sg3"}).Err())

	_, release, err := r.Acquire(context.Background(), "/dev/sg1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = r.Acquire(ctx, "/dev/sg2")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second path to the same enclosure")

	_, release3, err := r.Acquire(context.Background(), "/dev/sg3")
	require.NoError(t, err)
	release3()

	release()
	_, release2, err := r.Acquire(context.Background(), "/dev/sg2")
	require.NoError(t, err)
	release2()

	// the failed acquire gave its target token back
	_, release2, err = r.Acquire(context.Background(), "/dev/sg2")
	require.NoError(t, err)
	release2()
}

func TestDiscoverReopensGoneDevice(t *testing.T) {
	gone := sestest.NewDevice(enclosure(0x5003048000000001))
	gone.ReceiveErr = map[uint8]error{sestest.PageConfiguration: os.NewSyscallError("SG_IO", syscall.ENODEV)}
	fresh := sestest.NewDevice(enclosure(0x5003048000000001))

	var opens int
	open := func(path string) (topology.Transport, error) {
		opens++
		if opens == 1 {
			return gone, nil
		}
		return fresh, nil
	}
	r := New(topology.NewBuilder(staticResolver{sysfs.NewIndex()}, time.Second), open, 1)

	out := r.Discover(context.Background(), []string{"/dev/sg1"})
	assert.ErrorIs(t, out[0].Err, syscall.ENODEV)

	for i := 0; i < 2; i++ {
		out = r.Discover(context.Background(), []string{"/dev/sg1"})
		require.NoError(t, out.Err())
	}
	assert.Equal(t, 2, opens, "reopened once after the device went away")
}

func TestDiscoverKeepsTransportOnOtherErrors(t *testing.T) {
	dev := sestest.NewDevice(enclosure(0x5003048000000001))
	dev.ReceiveErr = map[uint8]error{sestest.PageConfiguration: errors.New("check condition")}

	var opens int
	open := func(path string) (topology.Transport, error) {
		opens++
		return dev, nil
	}
	r := New(topology.NewBuilder(staticResolver{sysfs.NewIndex()}, time.Second), open, 1)

	r.Discover(context.Background(), []string{"/dev/sg1"})
	r.Discover(context.Background(), []string{"/dev/sg1"})
	assert.Equal(t, 1, opens)
}

func TestFindSlot(t *testing.T) {
	devices := map[string]*sestest.Device{
		"/dev/sg1": sestest.NewDevice(enclosure(0x5003048000000001, 0x5000c50000000001, 0x5000c50000000002)),
		"/dev/sg2": sestest.NewDevice(enclosure(0x5003048000000002, 0, 0x5000c50000000003)),
	}
	r := newRegistry(devices, time.Second)
	require.NoError(t, r.Discover(context.Background(), []string{"/dev/sg1", "/dev/sg2"}).Err())

	cases := []struct {
		query string
		enc   string
		index int
	}{
		{"/dev/sdb", "5003048000000001", 0},
		{"sdb", "5003048000000001", 0},
		{"/dev/sg5", "5003048000000001", 0},
		{"ZA1", "5003048000000001", 0},
		{"1:0:7:0", "5003048000000001", 1},
		{"0x5000c50000000003", "5003048000000002", 1},
		{"5003048000000002:0", "5003048000000002", 0},
		{"0x5003048000000001:1", "5003048000000001", 1},
		{"/dev/sg2:1", "5003048000000002", 1},
		{"sg1:1", "5003048000000001", 1},
	}
	for _, c := range cases {
		enc, el, err := r.FindSlot(ParseQuery(c.query))
		require.NoError(t, err, c.query)
		assert.Equal(t, c.enc, enc.ID, c.query)
		assert.Equal(t, c.index, el.Index, c.query)
	}

	for _, q := range []string{"/dev/sdz", "5003048000000001:9", "", "unknown:0"} {
		_, _, err := r.FindSlot(ParseQuery(q))
		assert.ErrorIs(t, err, ErrNotFound, q)
	}
}

func TestFindByDiskByIDLink(t *testing.T) {
	dir := t.TempDir()
	sdb := filepath.Join(dir, "sdb")
	require.NoError(t, os.WriteFile(sdb, nil, 0o644))
	link := filepath.Join(dir, "wwn-0x5000c50000000001")
	require.NoError(t, os.Symlink(sdb, link))

	devices := map[string]*sestest.Device{
		"/dev/sg1": sestest.NewDevice(enclosure(0x5003048000000001, 0x5000c50000000001)),
	}
	r := newRegistry(devices, time.Second)
	r.Discover(context.Background(), []string{"/dev/sg1"})

	_, el, err := r.FindSlot(ParseQuery(link))
	require.NoError(t, err)
	assert.Equal(t, 0, el.Index)
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery("500304800000007f:12")
	assert.True(t, q.HasIndex)
	assert.Equal(t, "500304800000007f", q.Enclosure)
	assert.Equal(t, 12, q.Index)
	assert.Equal(t, "500304800000007f:12", q.String())

	q = ParseQuery("/dev/disk/by-path/pci-0000:03:00.0-sas-phy3-lun-0")
	assert.False(t, q.HasIndex)
	assert.Equal(t, "/dev/disk/by-path/pci-0000:03:00.0-sas-phy3-lun-0", q.Device)

	q = ParseQuery(" /dev/sdb ")
	assert.False(t, q.HasIndex)
	assert.Equal(t, "/dev/sdb", q.String())
}

func TestTargets(t *testing.T) {
	got, err := Targets([]string{"/dev/sg9"}, sysfs.FS{Root: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/sg9"}, got)

	_, err = Targets(nil, sysfs.FS{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	root := t.TempDir()
	dir := filepath.Join(root, "class", "scsi_generic", "sg3", "device")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "type"), []byte("13\n"), 0o644))
	got, err = Targets(nil, sysfs.FS{Root: root, DevRoot: "/dev"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/sg3"}, got)
}

func TestOutcomesErrNil(t *testing.T) {
	var o Outcomes
	assert.NoError(t, o.Err())
	o = Outcomes{{Target: "a", Err: errors.New("x")}, {Target: "b", Err: errors.New("y")}}
	assert.Contains(t, o.Err().Error(), "2 errors occurred")
}
