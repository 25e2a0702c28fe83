// Package sensors tracks the wireless sensors registered with a gateway:
// identity, channel, battery and signal state. Sensor metadata arrives in
// CMD_READ_SENSOR_ID_NEW responses as fixed seven byte records; battery
// bytes decode differently per sensor family.
package sensors

import (
	"errors"
	"fmt"
)

// BatteryKind discriminates the battery encodings used across sensor
// families.
type BatteryKind int

const (
	// BatteryAbsent means the sensor reports no usable battery state,
	// either because it is not currently heard (signal 0) or because the
	// hardware does not emit one.
	BatteryAbsent BatteryKind = iota
	// BatteryBinary is a low/ok flag (WH65, WH25, WH26, WH31).
	BatteryBinary
	// BatteryLevel is an integer level 0 to 5, 6 meaning DC power
	// (WH41, WH45, WH55, WH57).
	BatteryLevel
	// BatteryVoltage is a voltage reading (WH51, WH68, WS80, WN34, WN35,
	// WS90, newer WH40).
	BatteryVoltage
)

// Battery is the decoded battery state of one sensor: a tagged union of
// absent, a binary low flag, an integer level, or a voltage.
type Battery struct {
	Kind    BatteryKind
	Low     bool    // BatteryBinary
	Level   int     // BatteryLevel
	Voltage float64 // BatteryVoltage
}

func (b Battery) String() string {
	switch b.Kind {
	case BatteryBinary:
		if b.Low {
			return "low"
		}
		return "ok"
	case BatteryLevel:
		if b.Level == 6 {
			return "dc"
		}
		return fmt.Sprintf("level %d", b.Level)
	case BatteryVoltage:
		return fmt.Sprintf("%.2fV", b.Voltage)
	default:
		return "absent"
	}
}

// battFn decodes a raw battery byte for one sensor family. A nil result
// means the byte carries no usable state.
type battFn func(raw byte) *Battery

func battBinary(raw byte) *Battery {
	return &Battery{Kind: BatteryBinary, Low: raw&1 == 1}
}

func battInt(raw byte) *Battery {
	return &Battery{Kind: BatteryLevel, Level: int(raw)}
}

// battVolt decodes voltage in units of 0.02V (WH68, WS80, WN34 and kin).
func battVolt(raw byte) *Battery {
	return &Battery{Kind: BatteryVoltage, Voltage: float64(raw) * 0.02}
}

// battVoltTenth decodes voltage in units of 0.1V (WH51 soil probes).
func battVoltTenth(raw byte) *Battery {
	return &Battery{Kind: BatteryVoltage, Voltage: float64(raw) / 10.0}
}

// battWH40 handles the WH40 quirk: early WH40 hardware does not emit
// battery state yet the gateway reports a plausible-looking byte for it.
// Values that decode below 2.0V under the tenths rule can only come from
// such legacy units and are discarded; anything else is a genuine reading
// in units of 0.01V.
func battWH40(raw byte) *Battery {
	if float64(raw)/10.0 < 2.0 {
		return nil
	}
	return &Battery{Kind: BatteryVoltage, Voltage: float64(raw) / 100.0}
}

// family describes one sensor index in sensor ID data.
type family struct {
	name     string
	longName string
	batt     battFn
	// noLow marks families whose battery reading never indicates a low
	// state (externally powered heads)
	noLow bool
}

// sensorFamilies maps the sensor index byte in CMD_READ_SENSOR_ID_NEW
// records to its family. Channelized families occupy consecutive indexes.
var sensorFamilies = map[byte]family{
	0x00: {"wh65", "WH65", battBinary, false},
	0x01: {"wh68", "WH68", battVolt, false},
	0x02: {"ws80", "WS80", battVolt, true},
	0x03: {"wh40", "WH40", battWH40, false},
	0x04: {"wh25", "WH25", battBinary, false},
	0x05: {"wh26", "WH26", battBinary, false},
	0x06: {"wh31_ch1", "WH31 ch1", battBinary, false},
	0x07: {"wh31_ch2", "WH31 ch2", battBinary, false},
	0x08: {"wh31_ch3", "WH31 ch3", battBinary, false},
	0x09: {"wh31_ch4", "WH31 ch4", battBinary, false},
	0x0A: {"wh31_ch5", "WH31 ch5", battBinary, false},
	0x0B: {"wh31_ch6", "WH31 ch6", battBinary, false},
	0x0C: {"wh31_ch7", "WH31 ch7", battBinary, false},
	0x0D: {"wh31_ch8", "WH31 ch8", battBinary, false},
	0x0E: {"wh51_ch1", "WH51 ch1", battVoltTenth, false},
	0x0F: {"wh51_ch2", "WH51 ch2", battVoltTenth, false},
	0x10: {"wh51_ch3", "WH51 ch3", battVoltTenth, false},
	0x11: {"wh51_ch4", "WH51 ch4", battVoltTenth, false},
	0x12: {"wh51_ch5", "WH51 ch5", battVoltTenth, false},
	0x13: {"wh51_ch6", "WH51 ch6", battVoltTenth, false},
	0x14: {"wh51_ch7", "WH51 ch7", battVoltTenth, false},
	0x15: {"wh51_ch8", "WH51 ch8", battVoltTenth, false},
	0x16: {"wh41_ch1", "WH41 ch1", battInt, false},
	0x17: {"wh41_ch2", "WH41 ch2", battInt, false},
	0x18: {"wh41_ch3", "WH41 ch3", battInt, false},
	0x19: {"wh41_ch4", "WH41 ch4", battInt, false},
	0x1A: {"wh57", "WH57", battInt, false},
	0x1B: {"wh55_ch1", "WH55 ch1", battInt, false},
	0x1C: {"wh55_ch2", "WH55 ch2", battInt, false},
	0x1D: {"wh55_ch3", "WH55 ch3", battInt, false},
	0x1E: {"wh55_ch4", "WH55 ch4", battInt, false},
	0x1F: {"wn34_ch1", "WN34 ch1", battVolt, false},
	0x20: {"wn34_ch2", "WN34 ch2", battVolt, false},
	0x21: {"wn34_ch3", "WN34 ch3", battVolt, false},
	0x22: {"wn34_ch4", "WN34 ch4", battVolt, false},
	0x23: {"wn34_ch5", "WN34 ch5", battVolt, false},
	0x24: {"wn34_ch6", "WN34 ch6", battVolt, false},
	0x25: {"wn34_ch7", "WN34 ch7", battVolt, false},
	0x26: {"wn34_ch8", "WN34 ch8", battVolt, false},
	0x27: {"wh45", "WH45", battInt, false},
	0x28: {"wn35_ch1", "WN35 ch1", battVolt, false},
	0x29: {"wn35_ch2", "WN35 ch2", battVolt, false},
	0x2A: {"wn35_ch3", "WN35 ch3", battVolt, false},
	0x2B: {"wn35_ch4", "WN35 ch4", battVolt, false},
	0x2C: {"wn35_ch5", "WN35 ch5", battVolt, false},
	0x2D: {"wn35_ch6", "WN35 ch6", battVolt, false},
	0x2E: {"wn35_ch7", "WN35 ch7", battVolt, false},
	0x2F: {"wn35_ch8", "WN35 ch8", battVolt, false},
	0x30: {"ws90", "WS90", battVolt, true},
}

// Sensor identifiers reported for slots with no registered sensor.
const (
	idDisabled    = "fffffffe"
	idRegistering = "ffffffff"
)

// Sensor is the last known state of one sensor slot.
type Sensor struct {
	Index byte
	Name  string
	Model string
	// ID is the sensor's identity as a fixed-width lowercase hex token.
	// Leading and trailing zero nibbles are significant: an ID must never
	// be shortened or rendered numerically.
	ID      string
	Battery Battery
	// Signal is the reception level 0 to 4; 0 means the sensor is not
	// currently heard.
	Signal int
}

// Registered reports whether a physical sensor occupies this slot.
func (s Sensor) Registered() bool {
	return s.ID != idDisabled && s.ID != idRegistering
}

// BatteryLow reports whether the decoded battery state indicates a low
// battery. Families that never report low always return false.
func (s Sensor) BatteryLow() bool {
	if fam, ok := sensorFamilies[s.Index]; ok && fam.noLow {
		return false
	}
	switch s.Battery.Kind {
	case BatteryBinary:
		return s.Battery.Low
	case BatteryLevel:
		return s.Battery.Level <= 1
	case BatteryVoltage:
		return s.Battery.Voltage <= 1.2
	default:
		return false
	}
}

// ErrMalformed is returned when sensor ID data cannot be split into whole
// records.
var ErrMalformed = errors.New("malformed sensor ID data")

// ParseOptions tunes sensor ID record decoding.
type ParseOptions struct {
	// ShowBattery passes raw battery state through even when the sensor's
	// signal level is 0 and the state would normally be forced absent.
	ShowBattery bool
}

// Parse decodes a CMD_READ_SENSOR_ID_NEW payload: consecutive seven byte
// records of index, four ID bytes, battery byte and signal byte. Unknown
// indexes are skipped so that new sensor models do not break decoding of
// the rest of the payload.
func Parse(payload []byte, opts ParseOptions) ([]Sensor, error) {
	if len(payload)%7 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of records", ErrMalformed, len(payload))
	}
	var out []Sensor
	for i := 0; i < len(payload); i += 7 {
		rec := payload[i : i+7]
		fam, ok := sensorFamilies[rec[0]]
		if !ok {
			continue
		}
		s := Sensor{
			Index:  rec[0],
			Name:   fam.name,
			Model:  fam.longName,
			ID:     fmt.Sprintf("%02x%02x%02x%02x", rec[1], rec[2], rec[3], rec[4]),
			Signal: int(rec[6]),
		}
		// a sensor that is not currently heard has no meaningful battery
		// state, whatever the raw byte says
		if s.Registered() && (s.Signal != 0 || opts.ShowBattery) {
			if b := fam.batt(rec[5]); b != nil {
				s.Battery = *b
			}
		}
		out = append(out, s)
	}
	return out, nil
}
