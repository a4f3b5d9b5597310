package ses

import "encoding/binary"

// ElementStatus is the typed view of one status record. Common fields are
// always set; exactly one of the kind specific fields is set for the types
// this package knows how to interpret.
type ElementStatus struct {
	Code             StatusCode `json:"code"`
	PredictedFailure bool       `json:"predicted_failure,omitempty"`
	Disabled         bool       `json:"disabled,omitempty"`
	Swapped          bool       `json:"swapped,omitempty"`

	// Identify and Fail are the common identify request and failure
	// indication bits where the element type defines them.
	Identify bool `json:"identify,omitempty"`
	Fail     bool `json:"fail,omitempty"`

	Slot        *SlotStatus        `json:"slot,omitempty"`
	Cooling     *CoolingStatus     `json:"cooling,omitempty"`
	Temperature *TemperatureStatus `json:"temperature,omitempty"`
	PowerSupply *PowerSupplyStatus `json:"power_supply,omitempty"`
	Voltage     *VoltageStatus     `json:"voltage,omitempty"`
	Current     *CurrentStatus     `json:"current,omitempty"`
	Enclosure   *EnclosureStatus   `json:"enclosure,omitempty"`
}

// Installed reports whether the status code says something is present.
func (s ElementStatus) Installed() bool {
	switch s.Code {
	case StatusUnsupported, StatusNotInstalled, StatusNotAvailable:
		return false
	}
	return true
}

// SlotStatus covers device slot and array device slot elements.
type SlotStatus struct {
	Address        uint8 `json:"address"`
	Identify       bool  `json:"identify"`
	FaultSensed    bool  `json:"fault_sensed"`
	FaultRequested bool  `json:"fault_requested"`
	DeviceOff      bool  `json:"device_off,omitempty"`
	ReadyToInsert  bool  `json:"ready_to_insert,omitempty"`
	Remove         bool  `json:"remove,omitempty"`
	DoNotRemove    bool  `json:"do_not_remove,omitempty"`
	Report         bool  `json:"report,omitempty"`
	Bypassed       bool  `json:"bypassed,omitempty"`

	// Array device slot only.
	ArrayFlags uint8 `json:"array_flags,omitempty"`
}

// Fault reports whether the fault indicator is lit, either because the host
// asked for it or because the enclosure sensed a fault.
func (s SlotStatus) Fault() bool {
	return s.FaultRequested || s.FaultSensed
}

// CoolingStatus covers fan elements. RPM is nil when no speed is reported.
type CoolingStatus struct {
	RPM         *float64 `json:"rpm,omitempty"`
	SpeedCode   uint8    `json:"speed_code"`
	Off         bool     `json:"off,omitempty"`
	RequestedOn bool     `json:"requested_on,omitempty"`
	HotSwap     bool     `json:"hot_swap,omitempty"`
}

// TemperatureStatus covers temperature sensor elements. Celsius is nil when
// the sensor reports no reading.
type TemperatureStatus struct {
	Celsius      *float64 `json:"celsius,omitempty"`
	OverFailure  bool     `json:"over_failure,omitempty"`
	OverWarning  bool     `json:"over_warning,omitempty"`
	UnderFailure bool     `json:"under_failure,omitempty"`
	UnderWarning bool     `json:"under_warning,omitempty"`
}

// PowerSupplyStatus covers power supply elements.
type PowerSupplyStatus struct {
	DCOverVoltage  bool `json:"dc_over_voltage,omitempty"`
	DCUnderVoltage bool `json:"dc_under_voltage,omitempty"`
	DCOverCurrent  bool `json:"dc_over_current,omitempty"`
	Off            bool `json:"off,omitempty"`
	RequestedOn    bool `json:"requested_on,omitempty"`
	OverTempFail   bool `json:"over_temp_fail,omitempty"`
	TempWarning    bool `json:"temp_warning,omitempty"`
	ACFail         bool `json:"ac_fail,omitempty"`
	DCFail         bool `json:"dc_fail,omitempty"`
	HotSwap        bool `json:"hot_swap,omitempty"`
}

// VoltageStatus covers voltage sensor elements.
type VoltageStatus struct {
	Volts     *float64 `json:"volts,omitempty"`
	WarnOver  bool     `json:"warn_over,omitempty"`
	WarnUnder bool     `json:"warn_under,omitempty"`
	CritOver  bool     `json:"crit_over,omitempty"`
	CritUnder bool     `json:"crit_under,omitempty"`
}

// CurrentStatus covers current sensor elements.
type CurrentStatus struct {
	Amps     *float64 `json:"amps,omitempty"`
	WarnOver bool     `json:"warn_over,omitempty"`
	CritOver bool     `json:"crit_over,omitempty"`
}

// EnclosureStatus covers the enclosure element itself.
type EnclosureStatus struct {
	PowerCycleMinutes uint8 `json:"power_cycle_minutes,omitempty"`
	FailureIndicated  bool  `json:"failure_indicated,omitempty"`
	WarningIndicated  bool  `json:"warning_indicated,omitempty"`
	FailureRequested  bool  `json:"failure_requested,omitempty"`
	WarningRequested  bool  `json:"warning_requested,omitempty"`
}

// Decoding constants for sensor readings.
const (
	TemperatureOffset = 20   // raw temperature minus offset is degrees Celsius
	FanRPMMultiplier  = 10   // actual fan speed field unit
	VoltageUnit       = 0.01 // volts per count
	CurrentUnit       = 0.01 // amps per count
)

// Interpret decodes a status record according to its element type.
func Interpret(t ElementType, r Record) ElementStatus {
	s := ElementStatus{
		Code:             r.Code(),
		PredictedFailure: flag(r[0], 6),
		Disabled:         flag(r[0], 5),
		Swapped:          flag(r[0], 4),
	}

	switch t {
	case TypeDeviceSlot, TypeArrayDeviceSlot:
		slot := &SlotStatus{
			DoNotRemove:    flag(r[2], 6),
			ReadyToInsert:  flag(r[2], 3),
			Remove:         flag(r[2], 2),
			Identify:       flag(r[2], 1),
			Report:         flag(r[2], 0),
			FaultSensed:    flag(r[3], 6),
			FaultRequested: flag(r[3], 5),
			DeviceOff:      flag(r[3], 4),
			Bypassed:       r[3]&0x0f != 0 || r[2]&0x30 != 0,
		}
		if t == TypeDeviceSlot {
			slot.Address = r[1]
		} else {
			slot.ArrayFlags = r[1]
		}
		s.Identify = slot.Identify
		s.Fail = slot.Fault()
		s.Slot = slot

	case TypeCooling:
		s.Identify = flag(r[1], 7)
		s.Fail = flag(r[3], 6)
		c := &CoolingStatus{
			SpeedCode:   r[3] & 0x07,
			Off:         flag(r[3], 4),
			RequestedOn: flag(r[3], 5),
			HotSwap:     flag(r[3], 7),
		}
		raw := int(r[1]&0x07)<<8 | int(r[2])
		// Zero is reserved: the fan is stopped or not installed, and
		// either way there is no reading.
		if s.Installed() && raw != 0 {
			rpm := float64(raw * FanRPMMultiplier)
			c.RPM = &rpm
		}
		s.Cooling = c

	case TypeTemperatureSensor:
		s.Identify = flag(r[1], 7)
		s.Fail = flag(r[1], 6)
		ts := &TemperatureStatus{
			OverFailure:  flag(r[3], 3),
			OverWarning:  flag(r[3], 2),
			UnderFailure: flag(r[3], 1),
			UnderWarning: flag(r[3], 0),
		}
		if r[2] != 0 && s.Installed() {
			c := float64(int(r[2]) - TemperatureOffset)
			ts.Celsius = &c
		}
		s.Temperature = ts

	case TypePowerSupply:
		s.Identify = flag(r[1], 7)
		s.Fail = flag(r[3], 6)
		s.PowerSupply = &PowerSupplyStatus{
			DCOverVoltage:  flag(r[2], 3),
			DCUnderVoltage: flag(r[2], 2),
			DCOverCurrent:  flag(r[2], 1),
			HotSwap:        flag(r[3], 7),
			RequestedOn:    flag(r[3], 5),
			Off:            flag(r[3], 4),
			OverTempFail:   flag(r[3], 3),
			TempWarning:    flag(r[3], 2),
			ACFail:         flag(r[3], 1),
			DCFail:         flag(r[3], 0),
		}

	case TypeVoltageSensor:
		s.Identify = flag(r[1], 7)
		s.Fail = flag(r[1], 6)
		v := &VoltageStatus{
			WarnOver:  flag(r[1], 3),
			WarnUnder: flag(r[1], 2),
			CritOver:  flag(r[1], 1),
			CritUnder: flag(r[1], 0),
		}
		if s.Installed() {
			volts := float64(int16(binary.BigEndian.Uint16(r[2:4]))) * VoltageUnit
			v.Volts = &volts
		}
		s.Voltage = v

	case TypeCurrentSensor:
		s.Identify = flag(r[1], 7)
		s.Fail = flag(r[1], 6)
		c := &CurrentStatus{
			WarnOver: flag(r[1], 3),
			CritOver: flag(r[1], 1),
		}
		if s.Installed() {
			amps := float64(binary.BigEndian.Uint16(r[2:4])) * CurrentUnit
			c.Amps = &amps
		}
		s.Current = c

	case TypeEnclosure:
		s.Identify = flag(r[1], 7)
		s.Enclosure = &EnclosureStatus{
			PowerCycleMinutes: r[2] >> 2,
			FailureIndicated:  flag(r[2], 1),
			WarningIndicated:  flag(r[2], 0),
			FailureRequested:  flag(r[3], 1),
			WarningRequested:  flag(r[3], 0),
		}

	case TypeESCElectronics, TypeSCCElectronics, TypeNonvolatileCache, TypeUPS,
		TypeSASExpander, TypeSASConnector, TypeSCSIPortTransceiver, TypeDoor,
		TypeAudibleAlarm, TypeDisplay, TypeKeyPad, TypeCommunicationPort,
		TypeSCSITargetPort, TypeSCSIInitiatorPort, TypeSimpleSubenclosure:
		s.Identify = flag(r[1], 7)
		s.Fail = flag(r[1], 6)
	}

	return s
}
