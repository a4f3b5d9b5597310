// Package metrics projects enclosure topologies onto flat metric facts. It
// knows nothing about exposition formats.
package metrics

import (
	"strconv"

	"github.com/sigreer/jbod/internal/registry"
	"github.com/sigreer/jbod/internal/ses"
	"github.com/sigreer/jbod/internal/topology"
)

// Metric names.
const (
	EnclosureInfo     = "jbod_enclosure_info"
	EnclosureElements = "jbod_enclosure_elements"
	ElementStatus     = "jbod_element_status"
	Temperature       = "jbod_temperature_celsius"
	FanSpeed          = "jbod_fan_rpm"
	Voltage           = "jbod_voltage_volts"
	Current           = "jbod_current_amps"
	SlotPopulated     = "jbod_slot_populated"
	SlotIdentify      = "jbod_slot_identify"
	SlotFault         = "jbod_slot_fault"
	Enclosures        = "jbod_enclosures"
	DiscoverySuccess  = "jbod_discovery_success"
)

// Desc describes one metric: its help text and label names in the order
// facts carry them.
type Desc struct {
	Name   string
	Help   string
	Labels []string
}

var (
	sensorLabels = []string{"enclosure", "index", "description"}
	slotLabels   = []string{"enclosure", "index", "slot", "device"}
)

var descs = []Desc{
	{EnclosureInfo, "Enclosure identity, always 1.", []string{"enclosure", "vendor", "product", "revision", "serial", "target"}},
	{EnclosureElements, "Number of individual elements per element type.", []string{"enclosure", "type"}},
	{ElementStatus, "SES element status code (1 ok, 2 critical, 3 noncritical, 4 unrecoverable, 5 not installed).", []string{"enclosure", "index", "type", "description"}},
	{Temperature, "Temperature sensor reading in degrees Celsius.", sensorLabels},
	{FanSpeed, "Fan speed in revolutions per minute.", sensorLabels},
	{Voltage, "Voltage sensor reading in volts.", sensorLabels},
	{Current, "Current sensor reading in amperes.", sensorLabels},
	{SlotPopulated, "Whether a disk is present in the slot.", slotLabels},
	{SlotIdentify, "Whether the slot identify indicator is on.", slotLabels},
	{SlotFault, "Whether the slot fault indicator is on.", slotLabels},
	{Enclosures, "Number of enclosures discovered.", nil},
	{DiscoverySuccess, "Whether the last discovery of a target succeeded.", []string{"target"}},
}

// Descs returns the description of every metric Project and ProjectAll
// can produce.
func Descs() []Desc {
	return append([]Desc(nil), descs...)
}

// Fact is one sample. Label values follow the order of the metric's Desc.
type Fact struct {
	Name   string
	Labels []string
	Value  float64
}

// Project returns the facts of one enclosure in element index order. Absent
// readings produce no fact.
func Project(enc *topology.Enclosure) []Fact {
	out := []Fact{{
		Name:   EnclosureInfo,
		Labels: []string{enc.ID, enc.Vendor, enc.Product, enc.Revision, enc.Serial, enc.Target},
		Value:  1,
	}}

	counts := make(map[ses.ElementType]int)
	var order []ses.ElementType
	for _, g := range enc.Groups {
		if _, ok := counts[g.Type]; !ok {
			order = append(order, g.Type)
		}
		counts[g.Type] += g.Count
	}
	for _, t := range order {
		out = append(out, Fact{EnclosureElements, []string{enc.ID, t.String()}, float64(counts[t])})
	}

	for i := range enc.Elements {
		el := &enc.Elements[i]
		index := strconv.Itoa(el.Index)
		out = append(out, Fact{ElementStatus, []string{enc.ID, index, el.Type.String(), el.Label()}, float64(el.Status.Code)})

		sensor := []string{enc.ID, index, el.Label()}
		st := el.Status
		switch {
		case st.Temperature != nil:
			if st.Temperature.Celsius != nil {
				out = append(out, Fact{Temperature, sensor, *st.Temperature.Celsius})
			}
		case st.Cooling != nil:
			if st.Cooling.RPM != nil {
				out = append(out, Fact{FanSpeed, sensor, *st.Cooling.RPM})
			}
		case st.Voltage != nil:
			if st.Voltage.Volts != nil {
				out = append(out, Fact{Voltage, sensor, *st.Voltage.Volts})
			}
		case st.Current != nil:
			if st.Current.Amps != nil {
				out = append(out, Fact{Current, sensor, *st.Current.Amps})
			}
		case st.Slot != nil:
			device := ""
			if el.Binding != nil {
				device = el.Binding.Device
			}
			labels := []string{enc.ID, index, strconv.Itoa(el.Slot()), device}
			out = append(out,
				Fact{SlotPopulated, labels, boolValue(el.Populated())},
				Fact{SlotIdentify, labels, boolValue(st.Slot.Identify)},
				Fact{SlotFault, labels, boolValue(st.Slot.Fault())},
			)
		}
	}
	return out
}

// ProjectAll returns the facts of a whole discovery: the enclosure count,
// one success fact per target, then the facts of each enclosure in target
// order. An enclosure reachable through several targets is projected once,
// from the first target that reached it.
func ProjectAll(outcomes registry.Outcomes) []Fact {
	var encs []*topology.Enclosure
	seen := make(map[string]bool)
	for _, enc := range outcomes.Enclosures() {
		if seen[enc.ID] {
			continue
		}
		seen[enc.ID] = true
		encs = append(encs, enc)
	}

	out := []Fact{{Name: Enclosures, Value: float64(len(encs))}}
	for _, oc := range outcomes {
		out = append(out, Fact{DiscoverySuccess, []string{oc.Target}, boolValue(oc.Err == nil)})
	}
	for _, enc := range encs {
		out = append(out, Project(enc)...)
	}
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
