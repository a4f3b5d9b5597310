// Package sysfs reads SCSI disk and enclosure information from sysfs without
// issuing commands to the devices, so sleeping drives stay asleep.
package sysfs

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FS reads sysfs below Root and names device nodes below DevRoot.
type FS struct {
	Root    string
	DevRoot string
}

// Default is the host sysfs.
var Default = FS{Root: "/sys", DevRoot: "/dev"}

// Device is a SCSI disk as seen in sysfs.
type Device struct {
	Name       string `json:"name"`           // sdg
	Path       string `json:"path"`           // /dev/sdg
	SGName     string `json:"sg_name"`        // sg7
	SGPath     string `json:"sg_path"`        // /dev/sg7
	HCTL       string `json:"hctl,omitempty"` // 10:0:3:0
	SASAddress uint64 `json:"sas_address,omitempty"`
	WWN        string `json:"wwn,omitempty"`
	Vendor     string `json:"vendor,omitempty"`
	Model      string `json:"model,omitempty"`
	Serial     string `json:"serial,omitempty"`
	State      string `json:"state,omitempty"`
}

// Index looks devices up by SAS address and by kernel name.
type Index struct {
	bySAS  map[uint64]*Device
	byName map[string]*Device
	all    []*Device
}

// NewIndex builds an index over the given devices.
func NewIndex(devices ...*Device) *Index {
	idx := &Index{
		bySAS:  make(map[uint64]*Device),
		byName: make(map[string]*Device),
	}
	for _, d := range devices {
		idx.all = append(idx.all, d)
		if d.SASAddress != 0 {
			idx.bySAS[d.SASAddress] = d
		}
		if d.Name != "" {
			idx.byName[d.Name] = d
		}
		if d.SGName != "" {
			idx.byName[d.SGName] = d
		}
	}
	return idx
}

// BySASAddress returns the disk whose target port has the given address.
func (i *Index) BySASAddress(addr uint64) (*Device, bool) {
	if i == nil || addr == 0 {
		return nil, false
	}
	d, ok := i.bySAS[addr]
	return d, ok
}

// ByName returns the disk for sdX or sgN, with or without the /dev prefix.
func (i *Index) ByName(name string) (*Device, bool) {
	if i == nil {
		return nil, false
	}
	d, ok := i.byName[filepath.Base(name)]
	return d, ok
}

// Devices returns every indexed device.
func (i *Index) Devices() []*Device {
	if i == nil {
		return nil
	}
	return i.all
}

// Snapshot reads all sd devices and indexes them. It is rebuilt on every
// call; device names move across reboots and hot-plug.
func (fs FS) Snapshot() (*Index, error) {
	entries, err := os.ReadDir(filepath.Join(fs.Root, "block"))
	if err != nil {
		return nil, err
	}
	var devices []*Device
	for _, entry := range entries {
		name := entry.Name()
		// Skip non-disk devices (loop, dm, nvme, etc.)
		if !strings.HasPrefix(name, "sd") {
			continue
		}
		if dev := fs.readDevice(name); dev != nil {
			devices = append(devices, dev)
		}
	}
	return NewIndex(devices...), nil
}

func (fs FS) readDevice(name string) *Device {
	devicePath := filepath.Join(fs.Root, "block", name, "device")
	if _, err := os.Stat(devicePath); err != nil {
		return nil
	}

	dev := &Device{
		Name:   name,
		Path:   filepath.Join(fs.DevRoot, name),
		Vendor: readAttr(devicePath, "vendor"),
		Model:  readAttr(devicePath, "model"),
		State:  readAttr(devicePath, "state"),
	}

	if wwid := readAttr(devicePath, "wwid"); wwid != "" {
		// Format: naa.XXXXXXXX or t10.XXXXX etc
		wwid = strings.TrimPrefix(wwid, "naa.")
		dev.WWN = strings.TrimPrefix(wwid, "t10.")
	}

	if addr, ok := ParseSASAddress(readAttr(devicePath, "sas_address")); ok {
		dev.SASAddress = addr
	}

	// VPD page 80 is binary, serial starts after 4-byte header
	if data, err := os.ReadFile(filepath.Join(devicePath, "vpd_pg80")); err == nil && len(data) > 4 {
		dev.Serial = strings.Map(func(r rune) rune {
			if r >= 32 && r < 127 {
				return r
			}
			return -1
		}, strings.TrimSpace(string(data[4:])))
	}

	if entries, err := os.ReadDir(filepath.Join(devicePath, "scsi_device")); err == nil && len(entries) > 0 {
		dev.HCTL = entries[0].Name()
	}
	if entries, err := os.ReadDir(filepath.Join(devicePath, "scsi_generic")); err == nil && len(entries) > 0 {
		dev.SGName = entries[0].Name()
		dev.SGPath = filepath.Join(fs.DevRoot, dev.SGName)
	}
	return dev
}

// Target is an sg node whose SCSI peripheral type is enclosure services.
type Target struct {
	Path       string `json:"path"`
	HCTL       string `json:"hctl,omitempty"`
	Vendor     string `json:"vendor,omitempty"`
	Model      string `json:"model,omitempty"`
	Revision   string `json:"revision,omitempty"`
	SASAddress uint64 `json:"sas_address,omitempty"`
}

// peripheralTypeEnclosure is the SCSI peripheral device type of SES devices.
const peripheralTypeEnclosure = 13

// EnclosureTargets lists sg nodes that front enclosure services devices,
// ordered by sg number.
func (fs FS) EnclosureTargets() ([]Target, error) {
	base := filepath.Join(fs.Root, "class", "scsi_generic")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n int
		t Target
	}
	var found []numbered
	for _, entry := range entries {
		name := entry.Name()
		n, err := strconv.Atoi(strings.TrimPrefix(name, "sg"))
		if err != nil {
			continue
		}
		devicePath := filepath.Join(base, name, "device")
		typ, err := strconv.Atoi(readAttr(devicePath, "type"))
		if err != nil || typ != peripheralTypeEnclosure {
			continue
		}
		t := Target{
			Path:     filepath.Join(fs.DevRoot, name),
			Vendor:   readAttr(devicePath, "vendor"),
			Model:    readAttr(devicePath, "model"),
			Revision: readAttr(devicePath, "rev"),
		}
		if addr, ok := ParseSASAddress(readAttr(devicePath, "sas_address")); ok {
			t.SASAddress = addr
		}
		if link, err := os.Readlink(devicePath); err == nil {
			t.HCTL = filepath.Base(link)
		}
		found = append(found, numbered{n, t})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	targets := make([]Target, 0, len(found))
	for _, f := range found {
		targets = append(targets, f.t)
	}
	return targets, nil
}

// ParseSASAddress accepts the forms sysfs, sg_ses and users print:
// 0x5000c500a1b2c3d4, 5000c500a1b2c3d4, 5000-c500-a1b2-c3d4.
func ParseSASAddress(s string) (uint64, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, ":", "")
	if len(s) == 0 || len(s) > 16 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Canonical reduces a device reference to its kernel name, following
// /dev/disk/by-* symlinks. Names that do not resolve are returned as their
// base name.
func Canonical(ref string) string {
	if strings.Contains(ref, "/") {
		if resolved, err := filepath.EvalSymlinks(ref); err == nil {
			ref = resolved
		}
	}
	return filepath.Base(ref)
}
