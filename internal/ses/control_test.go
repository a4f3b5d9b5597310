package ses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestEncodeControlPageNoIntents(t *testing.T) {
	enc := fixture()
	status := enc.StatusPage()
	snap := mustSnapshot(t, enc)

	out, err := EncodeControlPage(snap, nil)
	require.NoError(t, err)
	require.Len(t, out, len(status))
	assert.Equal(t, status[HeaderLen:], out[HeaderLen:], "records must be copied verbatim")
	assert.Equal(t, status[2:8], out[2:8], "length and generation code")
	assert.Equal(t, byte(PageEnclosureStatus), out[0])
}

func TestEncodeControlPageIdentify(t *testing.T) {
	enc := fixture()
	status := enc.StatusPage()
	snap := mustSnapshot(t, enc)

	out, err := EncodeControlPage(snap, []ControlIntent{{Index: 0, Identify: boolPtr(true)}})
	require.NoError(t, err)

	// element 0 is the first individual record, after the overall record
	pos := HeaderLen + 4
	assert.Equal(t, status[pos]|0x80, out[pos], "select bit")
	assert.Equal(t, status[pos+1], out[pos+1])
	assert.Equal(t, status[pos+2]|0x02, out[pos+2], "identify request")
	assert.Equal(t, status[pos+3], out[pos+3])

	for i := HeaderLen; i < len(out); i++ {
		if i >= pos && i < pos+4 {
			continue
		}
		assert.Equal(t, status[i], out[i], "byte %d changed", i)
	}
}

func TestEncodeControlPageClearAndFault(t *testing.T) {
	enc := fixture()
	snap := mustSnapshot(t, enc)

	out, err := EncodeControlPage(snap, []ControlIntent{
		{Index: 1, Identify: boolPtr(false)},
		{Index: 0, Fault: boolPtr(true)},
	})
	require.NoError(t, err)

	st, err := DecodeStatusPage(PageEnclosureStatus, out)
	require.NoError(t, err)

	r0, err := st.Element(snap.Config, 0)
	require.NoError(t, err)
	identify, fault := SlotIndicators(r0)
	assert.False(t, identify)
	assert.True(t, fault)

	r1, err := st.Element(snap.Config, 1)
	require.NoError(t, err)
	identify, fault = SlotIndicators(r1)
	assert.False(t, identify)
	assert.False(t, fault)
	assert.NotZero(t, r1[0]&0x80)
}

func TestEncodeControlPageRejects(t *testing.T) {
	snap := mustSnapshot(t, fixture())

	_, err := EncodeControlPage(snap, []ControlIntent{{Index: 3, Identify: boolPtr(true)}})
	assert.ErrorIs(t, err, ErrUnsupportedElement, "fan element")

	_, err = EncodeControlPage(snap, []ControlIntent{{Index: 99, Identify: boolPtr(true)}})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = EncodeControlPage(snap, []ControlIntent{
		{Index: 0, Identify: boolPtr(true)},
		{Index: 0, Fault: boolPtr(true)},
	})
	assert.ErrorIs(t, err, ErrDuplicateIntent)

	snap.Status.Records[1] = Record{byte(StatusUnsupported), 0, 0, 0}
	_, err = EncodeControlPage(snap, []ControlIntent{{Index: 0, Identify: boolPtr(true)}})
	assert.ErrorIs(t, err, ErrUnsupportedElement)

	snap.Status.Records = snap.Status.Records[:len(snap.Status.Records)-1]
	_, err = EncodeControlPage(snap, nil)
	assert.ErrorIs(t, err, ErrElementCountMismatch)
}

func TestEncodeControlPageClearsHeaderFlags(t *testing.T) {
	snap := mustSnapshot(t, fixture())
	snap.Status.Flags = FlagInvalidOp | FlagCritical | FlagInfo

	out, err := EncodeControlPage(snap, nil)
	require.NoError(t, err)
	assert.Zero(t, out[1], "status conditions are not echoed as requests")
}
