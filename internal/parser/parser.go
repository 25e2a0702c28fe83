// Package parser turns validated gateway response payloads into readings
// keyed by semantic field name. Addressed payloads (live data, rain data)
// are walked field by field using the declarative registries in the fields
// package; fixed-layout payloads (rain totals, firmware, calibration,
// system parameters) have dedicated decoders.
package parser

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/lanweather/gwclient/internal/fields"
	"github.com/lanweather/gwclient/internal/log"
)

// ErrDecode is wrapped by every parse failure. A decode failure drops the
// reading for that cycle; it never terminates polling.
var ErrDecode = errors.New("decode failed")

// Reading maps semantic field names to decoded values. Values are float64
// for scaled quantities, int for counts/flags, time.Time for timestamps.
// A field heard on the wire but carrying the sensor's "no data" sentinel is
// simply omitted.
type Reading map[string]interface{}

// UnknownFieldPolicy controls how an unrecognized field address is reported.
// The walk always stops at the first unknown address because field widths
// are not self-describing, but callers choose how loudly.
type UnknownFieldPolicy int

const (
	// LogUnknownFields reports unknown addresses at info level.
	LogUnknownFields UnknownFieldPolicy = iota
	// IgnoreUnknownFields reports unknown addresses at debug level only.
	IgnoreUnknownFields
	// FailUnknownFields surfaces unknown addresses as a decode error,
	// dropping the partial reading.
	FailUnknownFields
)

// Parser decodes addressed data payloads.
type Parser struct {
	unknownFields UnknownFieldPolicy
}

func New(policy UnknownFieldPolicy) *Parser {
	return &Parser{unknownFields: policy}
}

// ParseLiveData decodes a CMD_GW1000_LIVEDATA payload.
func (p *Parser) ParseLiveData(payload []byte) (Reading, error) {
	return p.parseAddressed(payload, fields.LiveDataTable)
}

// ParseRain decodes a CMD_READ_RAIN payload. The rain registry carries the
// four byte day and week counters this command uses.
func (p *Parser) ParseRain(payload []byte) (Reading, error) {
	return p.parseAddressed(payload, fields.RainDataTable)
}

// parseAddressed walks a payload of address byte plus fixed-width value
// segments. Segment boundaries come from the registry; an address missing
// from the registry makes the remainder of the payload unwalkable.
func (p *Parser) parseAddressed(payload []byte, table fields.Table) (Reading, error) {
	reading := make(Reading)
	i := 0
	for i < len(payload) {
		addr := payload[i]
		spec, known := table[addr]
		if !known {
			switch p.unknownFields {
			case FailUnknownFields:
				return nil, fmt.Errorf("%w: unknown field 0x%02X at offset %d, %d bytes unparsed",
					ErrDecode, addr, i, len(payload)-i)
			case LogUnknownFields:
				log.Infof("unknown field 0x%02X at offset %d, skipping %d remaining bytes",
					addr, i, len(payload)-i)
			default:
				log.Debugf("unknown field 0x%02X at offset %d, skipping %d remaining bytes",
					addr, i, len(payload)-i)
			}
			break
		}
		if i+1+spec.Width > len(payload) {
			return nil, fmt.Errorf("%w: field 0x%02X (%s) needs %d bytes, %d remain",
				ErrDecode, addr, spec.Name, spec.Width, len(payload)-i-1)
		}
		decodeField(reading, spec, payload[i+1:i+1+spec.Width])
		i += 1 + spec.Width
	}
	return reading, nil
}

// decodeField decodes one value segment per its registry kind and merges
// the result into the reading. Sentinel "no data" values decode to nothing.
func decodeField(r Reading, spec fields.Spec, data []byte) {
	switch spec.Kind {
	case fields.KindTemp:
		r[spec.Name] = float64(int16(binary.BigEndian.Uint16(data))) / 10.0
	case fields.KindHumid, fields.KindMoist, fields.KindLeak,
		fields.KindWet, fields.KindUVI, fields.KindInt:
		r[spec.Name] = int(data[0])
	case fields.KindPress, fields.KindSpeed, fields.KindRain,
		fields.KindRainRate, fields.KindUV, fields.KindPM25:
		r[spec.Name] = float64(binary.BigEndian.Uint16(data)) / 10.0
	case fields.KindDir:
		r[spec.Name] = int(binary.BigEndian.Uint16(data))
	case fields.KindBigRain, fields.KindLight:
		r[spec.Name] = float64(binary.BigEndian.Uint32(data)) / 10.0
	case fields.KindGain100:
		r[spec.Name] = float64(binary.BigEndian.Uint16(data)) / 100.0
	case fields.KindDistance:
		// valid range is 0 to 40 km, anything else means no strike heard
		if d := int(data[0]); d <= 40 {
			r[spec.Name] = d
		}
	case fields.KindUTC:
		// the timestamp is offset by the station's timezone; callers that
		// need wall-clock time must correct for it
		if ts := binary.BigEndian.Uint32(data); ts != 0xFFFFFFFF {
			r[spec.Name] = time.Unix(int64(ts), 0).UTC()
		}
	case fields.KindCount, fields.KindMemory:
		r[spec.Name] = int(binary.BigEndian.Uint32(data))
	case fields.KindDateTime:
		// format undocumented, kept as raw bytes
		r[spec.Name] = append([]byte(nil), data...)
	case fields.KindWN34:
		// byte 2 is a battery byte; battery state comes from sensor ID data
		r[spec.Name] = float64(int16(binary.BigEndian.Uint16(data[0:2]))) / 10.0
	case fields.KindWH45:
		decodeWH45(r, data)
	case fields.KindRainGain:
		for i := 0; i < 10; i++ {
			r[fmt.Sprintf("gain%d", i+1)] = float64(binary.BigEndian.Uint16(data[2*i:2*i+2])) / 100.0
		}
	case fields.KindRainReset:
		r["day_reset"] = int(data[0])
		r["week_reset"] = int(data[1])
		r["annual_reset"] = int(data[2])
	case fields.KindBattery, fields.KindReserved:
		// consumed, nothing emitted
	}
}

// decodeWH45 unpacks the WH45 combo sensor block. The trailing battery
// byte is ignored; battery state comes from sensor ID data.
func decodeWH45(r Reading, data []byte) {
	r["temp17"] = float64(int16(binary.BigEndian.Uint16(data[0:2]))) / 10.0
	r["humid17"] = int(data[2])
	r["pm10"] = float64(binary.BigEndian.Uint16(data[3:5])) / 10.0
	r["pm10_24h_avg"] = float64(binary.BigEndian.Uint16(data[5:7])) / 10.0
	r["pm255"] = float64(binary.BigEndian.Uint16(data[7:9])) / 10.0
	r["pm255_24h_avg"] = float64(binary.BigEndian.Uint16(data[9:11])) / 10.0
	r["co2"] = int(binary.BigEndian.Uint16(data[11:13]))
	r["co2_24h_avg"] = int(binary.BigEndian.Uint16(data[13:15]))
}
