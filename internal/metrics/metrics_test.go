package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/jbod/internal/registry"
	"github.com/sigreer/jbod/internal/ses"
	"github.com/sigreer/jbod/internal/topology"
)

func element(index int, t ses.ElementType, desc string, r ses.Record) topology.Element {
	return topology.Element{Index: index, Type: t, Description: desc, Raw: r, Status: ses.Interpret(t, r)}
}

func testEnclosure() *topology.Enclosure {
	slot := 4
	return &topology.Enclosure{
		ID:       "500304800000007f",
		Target:   "/dev/sg4",
		Vendor:   "LSI",
		Product:  "SAS2X36",
		Revision: "0717",
		Serial:   "X1",
		Groups: []topology.ElementGroup{
			{Type: ses.TypeArrayDeviceSlot, Count: 2},
			{Type: ses.TypeTemperatureSensor, Count: 2, Start: 2},
			{Type: ses.TypeCooling, Count: 1, Start: 4},
		},
		Elements: []topology.Element{
			func() topology.Element {
				el := element(0, ses.TypeArrayDeviceSlot, "Slot 00", ses.Record{0x01, 0, 0x02, 0x20})
				el.Binding = &topology.SlotBinding{SlotNumber: &slot, Device: "/dev/sdb", SASAddresses: []string{"0x5000c500a1b2c3d1"}}
				return el
			}(),
			element(1, ses.TypeArrayDeviceSlot, "", ses.Record{0x05, 0, 0, 0}),
			element(2, ses.TypeTemperatureSensor, "Temp A", ses.Record{0x01, 0, 58, 0}),
			element(3, ses.TypeTemperatureSensor, "Temp B", ses.Record{0x01, 0, 0, 0}),
			element(4, ses.TypeCooling, "Fan 1", ses.Record{0x01, 0x01, 0xc2, 0x03}),
		},
	}
}

func find(facts []Fact, name string) []Fact {
	var out []Fact
	for _, f := range facts {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

func TestProject(t *testing.T) {
	facts := Project(testEnclosure())

	require.NotEmpty(t, facts)
	assert.Equal(t, Fact{EnclosureInfo, []string{"500304800000007f", "LSI", "SAS2X36", "0717", "X1", "/dev/sg4"}, 1}, facts[0])

	assert.Equal(t, []Fact{
		{EnclosureElements, []string{"500304800000007f", "array device slot"}, 2},
		{EnclosureElements, []string{"500304800000007f", "temperature sensor"}, 2},
		{EnclosureElements, []string{"500304800000007f", "cooling"}, 1},
	}, find(facts, EnclosureElements))

	status := find(facts, ElementStatus)
	require.Len(t, status, 5)
	assert.Equal(t, []string{"500304800000007f", "1", "array device slot", "array device slot 0"}, status[1].Labels)
	assert.Equal(t, float64(ses.StatusNotInstalled), status[1].Value)

	assert.Equal(t, []Fact{{Temperature, []string{"500304800000007f", "2", "Temp A"}, 38}}, find(facts, Temperature))
	assert.Equal(t, []Fact{{FanSpeed, []string{"500304800000007f", "4", "Fan 1"}, 4500}}, find(facts, FanSpeed))

	assert.Equal(t, []Fact{
		{SlotPopulated, []string{"500304800000007f", "0", "4", "/dev/sdb"}, 1},
		{SlotPopulated, []string{"500304800000007f", "1", "0", ""}, 0},
	}, find(facts, SlotPopulated))
	assert.Equal(t, 1.0, find(facts, SlotIdentify)[0].Value)
	assert.Equal(t, 1.0, find(facts, SlotFault)[0].Value)
	assert.Equal(t, 0.0, find(facts, SlotFault)[1].Value)
}

func TestProjectOmitsAbsentTemperature(t *testing.T) {
	for _, f := range Project(testEnclosure()) {
		if f.Name == Temperature {
			assert.NotEqual(t, "Temp B", f.Labels[2], "raw 0 must not be reported")
		}
	}
}

func TestProjectOmitsStoppedFan(t *testing.T) {
	enc := testEnclosure()
	enc.Elements[4] = element(4, ses.TypeCooling, "Fan 1", ses.Record{0x01, 0, 0, 0})
	facts := Project(enc)
	assert.Empty(t, find(facts, FanSpeed), "raw speed 0 is not a reading")
	assert.Len(t, find(facts, ElementStatus), 5)
}

func TestProjectIsDeterministic(t *testing.T) {
	assert.Equal(t, Project(testEnclosure()), Project(testEnclosure()))
}

func TestProjectAll(t *testing.T) {
	enc := testEnclosure()
	alias := testEnclosure()
	alias.Target = "/dev/sg9"
	outcomes := registry.Outcomes{
		{Target: "/dev/sg4", Enclosure: enc},
		{Target: "/dev/sg5", Err: errors.New("timeout")},
		{Target: "/dev/sg9", Enclosure: alias},
	}

	facts := ProjectAll(outcomes)
	assert.Equal(t, Fact{Name: Enclosures, Value: 1}, facts[0])
	assert.Equal(t, []Fact{
		{DiscoverySuccess, []string{"/dev/sg4"}, 1},
		{DiscoverySuccess, []string{"/dev/sg5"}, 0},
		{DiscoverySuccess, []string{"/dev/sg9"}, 1},
	}, find(facts, DiscoverySuccess))
	info := find(facts, EnclosureInfo)
	require.Len(t, info, 1)
	assert.Equal(t, "/dev/sg4", info[0].Labels[5])
}

func TestDescsCoverFacts(t *testing.T) {
	labels := make(map[string]int)
	for _, d := range Descs() {
		labels[d.Name] = len(d.Labels)
	}
	for _, f := range ProjectAll(registry.Outcomes{{Target: "/dev/sg4", Enclosure: testEnclosure()}}) {
		n, ok := labels[f.Name]
		require.True(t, ok, f.Name)
		assert.Len(t, f.Labels, n, f.Name)
	}
}
