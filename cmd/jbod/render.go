package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/sigreer/jbod/internal/registry"
	"github.com/sigreer/jbod/internal/ses"
	"github.com/sigreer/jbod/internal/topology"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// targetError is the JSON form of a failed target.
type targetError struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// listOutput is the JSON form of the list command.
type listOutput struct {
	Enclosures []*topology.Enclosure `json:"enclosures"`
	Errors     []targetError         `json:"errors,omitempty"`
}

func newListOutput(outcomes registry.Outcomes) listOutput {
	out := listOutput{Enclosures: outcomes.Enclosures()}
	if out.Enclosures == nil {
		out.Enclosures = []*topology.Enclosure{}
	}
	for _, oc := range outcomes {
		if oc.Err != nil {
			out.Errors = append(out.Errors, targetError{Target: oc.Target, Error: oc.Err.Error()})
		}
	}
	return out
}

func renderEnclosures(w io.Writer, encs []*topology.Enclosure) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTARGET\tVENDOR\tPRODUCT\tREV\tSERIAL\tSLOTS\tPOPULATED\tWARNINGS\tREAD")
	for _, enc := range encs {
		slots := enc.Slots()
		populated := 0
		for _, s := range slots {
			if s.Populated() {
				populated++
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			enc.ID, enc.Target, dash(enc.Vendor), dash(enc.Product), dash(enc.Revision),
			dash(enc.Serial), len(slots), populated, len(enc.Warnings), humanize.Time(enc.ReadAt))
	}
	return tw.Flush()
}

func renderDisks(w io.Writer, encs []*topology.Enclosure) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ENCLOSURE\tINDEX\tSLOT\tDESCRIPTION\tSTATUS\tDEVICE\tSG\tSERIAL\tSAS ADDRESS\tIDENT\tFAULT")
	for _, enc := range encs {
		for _, el := range enc.Slots() {
			device, sg, serial, addr := "-", "-", "-", "-"
			if b := el.Binding; b != nil {
				device, sg, serial = dash(b.Device), dash(b.SGDevice), dash(b.Serial)
				if len(b.SASAddresses) > 0 {
					addr = strings.Join(b.SASAddresses, ",")
				}
			}
			ident, fault := "-", "-"
			if s := el.Status.Slot; s != nil {
				ident, fault = onOff(s.Identify), onOff(s.Fault())
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				enc.ID, el.Index, el.Slot(), el.Label(), el.Status.Code,
				device, sg, serial, addr, ident, fault)
		}
	}
	return tw.Flush()
}

func renderFans(w io.Writer, encs []*topology.Enclosure) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ENCLOSURE\tINDEX\tDESCRIPTION\tSTATUS\tRPM")
	for _, enc := range encs {
		for _, el := range enc.ElementsOfType(ses.TypeCooling) {
			rpm := "-"
			if c := el.Status.Cooling; c != nil && c.RPM != nil {
				rpm = humanize.Comma(int64(*c.RPM))
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", enc.ID, el.Index, el.Label(), el.Status.Code, rpm)
		}
	}
	return tw.Flush()
}

func renderSensors(w io.Writer, encs []*topology.Enclosure) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ENCLOSURE\tINDEX\tTYPE\tDESCRIPTION\tSTATUS\tREADING")
	for _, enc := range encs {
		sensors := enc.ElementsOfType(ses.TypeTemperatureSensor, ses.TypeVoltageSensor, ses.TypeCurrentSensor)
		for _, el := range sensors {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
				enc.ID, el.Index, el.Type, el.Label(), el.Status.Code, reading(el.Status))
		}
	}
	return tw.Flush()
}

// reading formats a sensor value with its unit, or "-" when absent.
func reading(s ses.ElementStatus) string {
	var v *float64
	unit := ""
	switch {
	case s.Temperature != nil:
		v, unit = s.Temperature.Celsius, "°C"
	case s.Voltage != nil:
		v, unit = s.Voltage.Volts, "V"
	case s.Current != nil:
		v, unit = s.Current.Amps, "A"
	}
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + " " + unit
}

func renderErrors(w io.Writer, outcomes registry.Outcomes) {
	for _, oc := range outcomes {
		if oc.Err != nil {
			fmt.Fprintf(w, "Warning: %s: %v\n", oc.Target, oc.Err)
		}
	}
}
