package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/jbod/internal/registry"
	"github.com/sigreer/jbod/internal/ses"
	"github.com/sigreer/jbod/internal/topology"
)

func el(index int, t ses.ElementType, r ses.Record) topology.Element {
	return topology.Element{Index: index, Ordinal: index, Type: t, Raw: r, Status: ses.Interpret(t, r)}
}

func enclosure(elements ...topology.Element) *topology.Enclosure {
	return &topology.Enclosure{ID: "500304800000007f", Target: "/dev/sg3", Elements: elements}
}

func TestEvaluateHealthy(t *testing.T) {
	r := Evaluate(registry.Outcomes{{Target: "/dev/sg3", Enclosure: enclosure(
		el(0, ses.TypeArrayDeviceSlot, ses.Record{0x01, 0, 0, 0}),
		el(1, ses.TypeArrayDeviceSlot, ses.Record{0x05, 0, 0, 0}),
	)}})
	assert.Equal(t, OK, r.State)
	assert.Empty(t, r.Findings)
	assert.Equal(t, "JBOD OK - 1 enclosures, 2 elements", r.Summary())
}

func TestEvaluateGrades(t *testing.T) {
	cases := []struct {
		name string
		el   topology.Element
		want State
	}{
		{"noncritical fan", el(0, ses.TypeCooling, ses.Record{0x03, 0, 0, 0}), Warning},
		{"critical psu", el(0, ses.TypePowerSupply, ses.Record{0x02, 0, 0, 0}), Critical},
		{"unrecoverable", el(0, ses.TypeTemperatureSensor, ses.Record{0x04, 0, 50, 0}), Critical},
		{"predicted failure", el(0, ses.TypeArrayDeviceSlot, ses.Record{0x41, 0, 0, 0}), Warning},
		{"fault sensed", el(0, ses.TypeArrayDeviceSlot, ses.Record{0x01, 0, 0, 0x40}), Critical},
		{"fault requested only", el(0, ses.TypeArrayDeviceSlot, ses.Record{0x01, 0, 0, 0x20}), OK},
	}
	for _, c := range cases {
		r := Evaluate(registry.Outcomes{{Target: "/dev/sg3", Enclosure: enclosure(c.el)}})
		assert.Equal(t, c.want, r.State, c.name)
		if c.want != OK {
			require.Len(t, r.Findings, 1, c.name)
			assert.Equal(t, 0, *r.Findings[0].Element)
		}
	}
}

func TestEvaluateTargetFailures(t *testing.T) {
	ok := registry.Outcome{Target: "/dev/sg3", Enclosure: enclosure(el(0, ses.TypeArrayDeviceSlot, ses.Record{0x01}))}
	bad := registry.Outcome{Target: "/dev/sg4", Err: errors.New("timeout")}

	r := Evaluate(registry.Outcomes{ok, bad})
	assert.Equal(t, Warning, r.State)
	assert.Equal(t, 1, r.Enclosures)
	assert.Contains(t, r.Summary(), "1 problems")

	r = Evaluate(registry.Outcomes{bad})
	assert.Equal(t, Unknown, r.State)

	r = Evaluate(nil)
	assert.Equal(t, Unknown, r.State)
}

func TestStateText(t *testing.T) {
	b, err := Critical.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", string(b))
	assert.Equal(t, "UNKNOWN", State(9).String())
}
