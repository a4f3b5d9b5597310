package ses

import (
	"testing"

	"github.com/sigreer/jbod/internal/sestest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() *sestest.Enclosure {
	return &sestest.Enclosure{
		LogicalID:  0x500304800000007f,
		Vendor:     "LSI",
		Product:    "SAS2X36",
		Revision:   "0717",
		Generation: 7,
		Groups: []sestest.Group{
			{
				Type: sestest.TypeArrayDeviceSlot,
				Text: "Drive Slots",
				Elements: []sestest.Element{
					{Status: sestest.SlotRecord(sestest.StatusOK, false, false), Description: "Slot 00", SASAddress: 0x5000c500a1b2c3d1},
					{Status: sestest.SlotRecord(sestest.StatusOK, true, false), Description: "Slot 01", SASAddress: 0x5000c500a1b2c3d2},
					{Status: sestest.SlotRecord(sestest.StatusNotInstalled, false, false), Description: "Slot 02"},
				},
			},
			{
				Type: sestest.TypeCooling,
				Text: "Fans",
				Elements: []sestest.Element{
					{Status: sestest.FanRecord(sestest.StatusOK, 3070, 3), Description: "Fan 1"},
					{Status: sestest.FanRecord(sestest.StatusNotInstalled, 0, 0), Description: "Fan 2"},
				},
			},
			{
				Type: sestest.TypeTemperatureSensor,
				Text: "Temperature Sensors",
				Elements: []sestest.Element{
					{Status: sestest.TempRecord(sestest.StatusOK, 45), Description: "Temp 1"},
					{Status: sestest.TempRecord(sestest.StatusOK, 0), Description: "Temp 2"},
				},
			},
			{
				Type: sestest.TypeVoltageSensor,
				Text: "Voltage",
				Elements: []sestest.Element{
					{Status: sestest.VoltageRecord(sestest.StatusOK, 1205), Description: "12V"},
				},
			},
		},
	}
}

func mustSnapshot(t *testing.T, enc *sestest.Enclosure) Snapshot {
	t.Helper()
	cfg, err := DecodeConfigurationPage(enc.ConfigPage())
	require.NoError(t, err)
	st, err := DecodeStatusPage(PageEnclosureStatus, enc.StatusPage())
	require.NoError(t, err)
	return Snapshot{Config: cfg, Status: st}
}

func TestDecodeConfigurationPage(t *testing.T) {
	cfg, err := DecodeConfigurationPage(fixture().ConfigPage())
	require.NoError(t, err)

	assert.Equal(t, uint32(7), cfg.Generation)
	require.Len(t, cfg.SubEnclosures, 1)
	sub := cfg.Primary()
	assert.Equal(t, "LSI", sub.Vendor)
	assert.Equal(t, "SAS2X36", sub.Product)
	assert.Equal(t, "0717", sub.Revision)
	assert.Equal(t, "500304800000007f", sub.LogicalIDString())

	require.Len(t, cfg.Types, 4)
	assert.Equal(t, TypeArrayDeviceSlot, cfg.Types[0].Type)
	assert.Equal(t, "Drive Slots", cfg.Types[0].Text)
	assert.Equal(t, 3, cfg.Types[0].Count)
	assert.Equal(t, 3, cfg.Types[1].Start)
	assert.Equal(t, 5, cfg.Types[2].Start)
	assert.Equal(t, 8, cfg.ElementCount())
	assert.Equal(t, 12, cfg.RecordCount())

	td, ord, ok := cfg.Locate(6)
	require.True(t, ok)
	assert.Equal(t, TypeTemperatureSensor, td.Type)
	assert.Equal(t, 1, ord)
	_, _, ok = cfg.Locate(8)
	assert.False(t, ok)
}

func TestDecodeConfigurationPageTruncated(t *testing.T) {
	page := fixture().ConfigPage()
	// Drop the type descriptor texts but keep the declared length.
	_, err := DecodeConfigurationPage(page[:len(page)-5])
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PageConfiguration, perr.Page)
	assert.Equal(t, 2, perr.Offset)

	short := append([]byte(nil), page...)
	short[3] = 20 // page ends inside the enclosure descriptor
	_, err = DecodeConfigurationPage(short)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, HeaderLen, perr.Offset)
}

func TestDecodeStatusPage(t *testing.T) {
	snap := mustSnapshot(t, fixture())
	require.NoError(t, snap.Check())
	assert.Len(t, snap.Status.Records, 12)
	assert.Equal(t, uint32(7), snap.Status.Generation)

	r, err := snap.Status.Element(snap.Config, 1)
	require.NoError(t, err)
	identify, fault := SlotIndicators(r)
	assert.True(t, identify)
	assert.False(t, fault)

	_, err = snap.Status.Element(snap.Config, 8)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestDecodeStatusPageErrors(t *testing.T) {
	page := fixture().StatusPage()

	_, err := DecodeStatusPage(PageConfiguration, page)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, perr.Offset)

	_, err = DecodeStatusPage(PageEnclosureStatus, page[:3])
	require.ErrorAs(t, err, &perr)

	_, err = DecodeStatusPage(PageEnclosureStatus, page[:len(page)-1])
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Offset)

	odd := append(append([]byte(nil), page...), 0, 0)
	odd[3] += 2
	_, err = DecodeStatusPage(PageEnclosureStatus, odd)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, len(page), perr.Offset)
}

func TestStatusRecordShortfall(t *testing.T) {
	enc := fixture()
	cfg, err := DecodeConfigurationPage(enc.ConfigPage())
	require.NoError(t, err)

	page := enc.StatusPage()
	page = page[:len(page)-4]
	page[3] -= 4
	st, err := DecodeStatusPage(PageEnclosureStatus, page)
	require.NoError(t, err)

	err = st.Check(cfg)
	assert.ErrorIs(t, err, ErrElementCountMismatch)
}

func TestDecodeElementDescriptorPage(t *testing.T) {
	enc := fixture()
	cfg, err := DecodeConfigurationPage(enc.ConfigPage())
	require.NoError(t, err)

	page, err := DecodeElementDescriptorPage(enc.DescriptorPage(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Drive Slots", "Fans", "Temperature Sensors", "Voltage"}, page.Overall)
	assert.Equal(t, "Slot 01", page.Description(1))
	assert.Equal(t, "Fan 1", page.Description(3))
	assert.Equal(t, "", page.Description(42))

	raw := enc.DescriptorPage()
	_, err = DecodeElementDescriptorPage(raw[:len(raw)-2], cfg)
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestDecodeSupportedPages(t *testing.T) {
	pages, err := DecodeSupportedPages([]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x01, 0x02, 0x07})
	require.NoError(t, err)
	assert.Equal(t, []PageCode{0x00, PageConfiguration, PageEnclosureStatus, PageElementDescriptor}, pages)
}
