package parser

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// RainTotals is the fixed-layout CMD_READ_RAINDATA snapshot carried by
// devices that predate the CMD_READ_RAIN command. All values are mm.
type RainTotals struct {
	Rate  float64
	Day   float64
	Week  float64
	Month float64
	Year  float64
}

// ParseRainTotals decodes a CMD_READ_RAINDATA payload: five consecutive
// four byte big endian counters in tenths of mm.
func ParseRainTotals(payload []byte) (*RainTotals, error) {
	if len(payload) < 20 {
		return nil, fmt.Errorf("%w: rain data payload %d bytes, need 20", ErrDecode, len(payload))
	}
	u := func(off int) float64 {
		return float64(binary.BigEndian.Uint32(payload[off:off+4])) / 10.0
	}
	return &RainTotals{
		Rate:  u(0),
		Day:   u(4),
		Week:  u(8),
		Month: u(12),
		Year:  u(16),
	}, nil
}

// Fields returns the snapshot as reading fields so rain totals project
// through the field map like any other source.
func (r *RainTotals) Fields() Reading {
	return Reading{
		"rainrate":  r.Rate,
		"rainday":   r.Day,
		"rainweek":  r.Week,
		"rainmonth": r.Month,
		"rainyear":  r.Year,
	}
}

// ParseFirmwareVersion decodes a CMD_READ_FIRMWARE_VERSION payload: a
// length byte followed by the ASCII version string, eg "GW1000_V1.6.8".
func ParseFirmwareVersion(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("%w: empty firmware version payload", ErrDecode)
	}
	n := int(payload[0])
	if 1+n > len(payload) {
		return "", fmt.Errorf("%w: firmware version declares %d chars, %d bytes remain",
			ErrDecode, n, len(payload)-1)
	}
	return string(payload[1 : 1+n]), nil
}

// ParseStationMAC decodes a CMD_READ_STATION_MAC payload.
func ParseStationMAC(payload []byte) (net.HardwareAddr, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("%w: station MAC payload %d bytes, need 6", ErrDecode, len(payload))
	}
	return net.HardwareAddr(append([]byte(nil), payload[:6]...)), nil
}

// SensorType discriminates the two outdoor combo sensors that share wire
// fields but differ in battery encoding.
type SensorType byte

const (
	SensorWH24 SensorType = 0
	SensorWH65 SensorType = 1
)

func (s SensorType) String() string {
	if s == SensorWH24 {
		return "WH24"
	}
	return "WH65"
}

// SystemParams is the decoded CMD_READ_SSSS response.
type SystemParams struct {
	Frequency     string
	SensorType    SensorType
	UTC           time.Time
	TimezoneIndex int
	DST           bool
}

var frequencies = []string{"433MHz", "868MHz", "915MHz", "920MHz"}

// ParseSystemParams decodes a CMD_READ_SSSS payload.
func ParseSystemParams(payload []byte) (*SystemParams, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: system params payload %d bytes, need 8", ErrDecode, len(payload))
	}
	freq := "unknown"
	if int(payload[0]) < len(frequencies) {
		freq = frequencies[payload[0]]
	}
	return &SystemParams{
		Frequency:     freq,
		SensorType:    SensorType(payload[1]),
		UTC:           time.Unix(int64(binary.BigEndian.Uint32(payload[2:6])), 0).UTC(),
		TimezoneIndex: int(payload[6]),
		DST:           payload[7] != 0,
	}, nil
}

// Gain is the decoded CMD_READ_GAIN response: calibration gain multipliers.
type Gain struct {
	UV    float64
	Solar float64
	Wind  float64
	Rain  float64
}

// ParseGain decodes a CMD_READ_GAIN payload. The first two bytes are the
// fixed lux to W/m2 conversion gain and are skipped.
func ParseGain(payload []byte) (*Gain, error) {
	if len(payload) < 10 {
		return nil, fmt.Errorf("%w: gain payload %d bytes, need 10", ErrDecode, len(payload))
	}
	g := func(off int) float64 {
		return float64(binary.BigEndian.Uint16(payload[off:off+2])) / 100.0
	}
	return &Gain{UV: g(2), Solar: g(4), Wind: g(6), Rain: g(8)}, nil
}

// Calibration is the decoded CMD_READ_CALIBRATION response: user offset
// calibration applied by the device to its readings.
type Calibration struct {
	InTemp   float64
	InHumid  int
	AbsBaro  float64
	RelBaro  float64
	OutTemp  float64
	OutHumid int
	WindDir  float64
}

// ParseCalibration decodes a CMD_READ_CALIBRATION payload.
func ParseCalibration(payload []byte) (*Calibration, error) {
	if len(payload) < 16 {
		return nil, fmt.Errorf("%w: calibration payload %d bytes, need 16", ErrDecode, len(payload))
	}
	return &Calibration{
		InTemp:   float64(int16(binary.BigEndian.Uint16(payload[0:2]))) / 10.0,
		InHumid:  int(int8(payload[2])),
		AbsBaro:  float64(int32(binary.BigEndian.Uint32(payload[3:7]))) / 10.0,
		RelBaro:  float64(int32(binary.BigEndian.Uint32(payload[7:11]))) / 10.0,
		OutTemp:  float64(int16(binary.BigEndian.Uint16(payload[11:13]))) / 10.0,
		OutHumid: int(int8(payload[13])),
		WindDir:  float64(int16(binary.BigEndian.Uint16(payload[14:16]))),
	}, nil
}
