// Package fields holds the static registry of addressed data fields carried
// in gateway live-data and rain-data responses. Each field is declared as
// data (wire address, name, decode kind, width, scale) so that new sensor
// models are table additions rather than new code paths.
package fields

import "strconv"

// Kind selects the decode rule applied to a field's value bytes.
type Kind int

const (
	KindTemp      Kind = iota // 2 bytes, signed BE, tenths
	KindHumid                 // 1 byte, percent
	KindPress                 // 2 bytes, unsigned BE, tenths
	KindDir                   // 2 bytes, unsigned BE, degrees
	KindSpeed                 // 2 bytes, unsigned BE, tenths
	KindRain                  // 2 bytes, unsigned BE, tenths
	KindRainRate              // 2 bytes, unsigned BE, tenths
	KindBigRain               // 4 bytes, unsigned BE, tenths
	KindLight                 // 4 bytes, unsigned BE, tenths
	KindUV                    // 2 bytes, unsigned BE, tenths
	KindUVI                   // 1 byte, index
	KindDateTime              // 6 bytes
	KindPM25                  // 2 bytes, unsigned BE, tenths
	KindMoist                 // 1 byte, percent
	KindLeak                  // 1 byte, flag
	KindDistance              // 1 byte, km, valid 1..40
	KindUTC                   // 4 bytes, unsigned BE, epoch seconds
	KindCount                 // 4 bytes, unsigned BE
	KindGain100               // 2 bytes, unsigned BE, hundredths
	KindWN34                  // 3 bytes, temp + battery byte
	KindWH45                  // 16 bytes, multi-field combo block
	KindBattery               // 16 bytes, legacy battery block
	KindMemory                // 4 bytes, unsigned BE
	KindWet                   // 1 byte, percent
	KindInt                   // 1 byte
	KindReserved              // consumed, never emitted
	KindRainGain              // 20 bytes, ten hundredths gains
	KindRainReset             // 3 bytes, reset schedule
)

// Spec describes one addressed field: where it sits on the wire and how its
// value bytes decode. Width is the value size excluding the address byte.
type Spec struct {
	Addr byte
	Name string
	Kind Kind
	Width int
}

// WH45 combo sensor sub-fields, emitted in wire order from a single
// 16 byte block.
var WH45Fields = []string{
	"temp17", "humid17", "pm10", "pm10_24h_avg",
	"pm255", "pm255_24h_avg", "co2", "co2_24h_avg",
}

// LiveData is the field registry for CMD_GW1000_LIVEDATA responses.
var LiveData = []Spec{
	{0x01, "intemp", KindTemp, 2},
	{0x02, "outtemp", KindTemp, 2},
	{0x03, "dewpoint", KindTemp, 2},
	{0x04, "windchill", KindTemp, 2},
	{0x05, "heatindex", KindTemp, 2},
	{0x06, "inhumid", KindHumid, 1},
	{0x07, "outhumid", KindHumid, 1},
	{0x08, "absbarometer", KindPress, 2},
	{0x09, "relbarometer", KindPress, 2},
	{0x0A, "winddir", KindDir, 2},
	{0x0B, "windspeed", KindSpeed, 2},
	{0x0C, "gustspeed", KindSpeed, 2},
	{0x0D, "t_rainevent", KindRain, 2},
	{0x0E, "t_rainrate", KindRainRate, 2},
	{0x0F, "t_raingain", KindGain100, 2},
	{0x10, "t_rainday", KindRain, 2},
	{0x11, "t_rainweek", KindRain, 2},
	{0x12, "t_rainmonth", KindBigRain, 4},
	{0x13, "t_rainyear", KindBigRain, 4},
	{0x14, "t_raintotals", KindBigRain, 4},
	{0x15, "light", KindLight, 4},
	{0x16, "uv", KindUV, 2},
	{0x17, "uvi", KindUVI, 1},
	{0x18, "datetime", KindDateTime, 6},
	{0x19, "daymaxwind", KindSpeed, 2},
	{0x1A, "temp1", KindTemp, 2},
	{0x1B, "temp2", KindTemp, 2},
	{0x1C, "temp3", KindTemp, 2},
	{0x1D, "temp4", KindTemp, 2},
	{0x1E, "temp5", KindTemp, 2},
	{0x1F, "temp6", KindTemp, 2},
	{0x20, "temp7", KindTemp, 2},
	{0x21, "temp8", KindTemp, 2},
	{0x22, "humid1", KindHumid, 1},
	{0x23, "humid2", KindHumid, 1},
	{0x24, "humid3", KindHumid, 1},
	{0x25, "humid4", KindHumid, 1},
	{0x26, "humid5", KindHumid, 1},
	{0x27, "humid6", KindHumid, 1},
	{0x28, "humid7", KindHumid, 1},
	{0x29, "humid8", KindHumid, 1},
	{0x2A, "pm251", KindPM25, 2},
	{0x2B, "soiltemp1", KindTemp, 2},
	{0x2C, "soilmoist1", KindMoist, 1},
	{0x2D, "soiltemp2", KindTemp, 2},
	{0x2E, "soilmoist2", KindMoist, 1},
	{0x2F, "soiltemp3", KindTemp, 2},
	{0x30, "soilmoist3", KindMoist, 1},
	{0x31, "soiltemp4", KindTemp, 2},
	{0x32, "soilmoist4", KindMoist, 1},
	{0x33, "soiltemp5", KindTemp, 2},
	{0x34, "soilmoist5", KindMoist, 1},
	{0x35, "soiltemp6", KindTemp, 2},
	{0x36, "soilmoist6", KindMoist, 1},
	{0x37, "soiltemp7", KindTemp, 2},
	{0x38, "soilmoist7", KindMoist, 1},
	{0x39, "soiltemp8", KindTemp, 2},
	{0x3A, "soilmoist8", KindMoist, 1},
	{0x3B, "soiltemp9", KindTemp, 2},
	{0x3C, "soilmoist9", KindMoist, 1},
	{0x3D, "soiltemp10", KindTemp, 2},
	{0x3E, "soilmoist10", KindMoist, 1},
	{0x3F, "soiltemp11", KindTemp, 2},
	{0x40, "soilmoist11", KindMoist, 1},
	{0x41, "soiltemp12", KindTemp, 2},
	{0x42, "soilmoist12", KindMoist, 1},
	{0x43, "soiltemp13", KindTemp, 2},
	{0x44, "soilmoist13", KindMoist, 1},
	{0x45, "soiltemp14", KindTemp, 2},
	{0x46, "soilmoist14", KindMoist, 1},
	{0x47, "soiltemp15", KindTemp, 2},
	{0x48, "soilmoist15", KindMoist, 1},
	{0x49, "soiltemp16", KindTemp, 2},
	{0x4A, "soilmoist16", KindMoist, 1},
	// Legacy per-sensor battery block. Battery state now comes from the
	// sensor ID data; the block is consumed but never emitted because
	// silent sensors report a default battery value here.
	{0x4C, "lowbatt", KindBattery, 16},
	{0x4D, "pm251_24h_avg", KindPM25, 2},
	{0x4E, "pm252_24h_avg", KindPM25, 2},
	{0x4F, "pm253_24h_avg", KindPM25, 2},
	{0x50, "pm254_24h_avg", KindPM25, 2},
	{0x51, "pm252", KindPM25, 2},
	{0x52, "pm253", KindPM25, 2},
	{0x53, "pm254", KindPM25, 2},
	{0x58, "leak1", KindLeak, 1},
	{0x59, "leak2", KindLeak, 1},
	{0x5A, "leak3", KindLeak, 1},
	{0x5B, "leak4", KindLeak, 1},
	{0x60, "lightningdist", KindDistance, 1},
	{0x61, "lightningdettime", KindUTC, 4},
	{0x62, "lightningcount", KindCount, 4},
	// WN34 battery data comes from sensor ID data, not live data.
	{0x63, "temp9", KindWN34, 3},
	{0x64, "temp10", KindWN34, 3},
	{0x65, "temp11", KindWN34, 3},
	{0x66, "temp12", KindWN34, 3},
	{0x67, "temp13", KindWN34, 3},
	{0x68, "temp14", KindWN34, 3},
	{0x69, "temp15", KindWN34, 3},
	{0x6A, "temp16", KindWN34, 3},
	{0x6C, "heap_free", KindMemory, 4},
	{0x70, "wh45", KindWH45, 16},
	{0x72, "leafwet1", KindWet, 1},
	{0x73, "leafwet2", KindWet, 1},
	{0x74, "leafwet3", KindWet, 1},
	{0x75, "leafwet4", KindWet, 1},
	{0x76, "leafwet5", KindWet, 1},
	{0x77, "leafwet6", KindWet, 1},
	{0x78, "leafwet7", KindWet, 1},
	{0x79, "leafwet8", KindWet, 1},
	{0x7A, "rain_priority", KindInt, 1},
	{0x7B, "temperature_comp", KindInt, 1},
	{0x80, "p_rainrate", KindRainRate, 2},
	{0x81, "p_rainevent", KindRain, 2},
	{0x82, "p_rainhour", KindReserved, 2},
	{0x83, "p_rainday", KindBigRain, 4},
	{0x84, "p_rainweek", KindBigRain, 4},
	{0x85, "p_rainmonth", KindBigRain, 4},
	{0x86, "p_rainyear", KindBigRain, 4},
}

// RainData is the field registry for CMD_READ_RAIN responses. The day and
// week counters are four bytes here where live data carries them as two;
// the producing command selects the layout.
var RainData = []Spec{
	{0x0D, "t_rainevent", KindRain, 2},
	{0x0E, "t_rainrate", KindRainRate, 2},
	{0x0F, "t_raingain", KindGain100, 2},
	{0x10, "t_rainday", KindBigRain, 4},
	{0x11, "t_rainweek", KindBigRain, 4},
	{0x12, "t_rainmonth", KindBigRain, 4},
	{0x13, "t_rainyear", KindBigRain, 4},
	{0x7A, "rain_priority", KindInt, 1},
	{0x7B, "temperature_comp", KindInt, 1},
	{0x80, "p_rainrate", KindRainRate, 2},
	{0x81, "p_rainevent", KindRain, 2},
	{0x82, "p_rainhour", KindReserved, 2},
	{0x83, "p_rainday", KindBigRain, 4},
	{0x84, "p_rainweek", KindBigRain, 4},
	{0x85, "p_rainmonth", KindBigRain, 4},
	{0x86, "p_rainyear", KindBigRain, 4},
	{0x87, "rain_gain", KindRainGain, 20},
	{0x88, "rain_reset", KindRainReset, 3},
}

// Table indexes a field registry by wire address.
type Table map[byte]Spec

func buildTable(specs []Spec) Table {
	t := make(Table, len(specs))
	for _, s := range specs {
		t[s.Addr] = s
	}
	return t
}

// Field registries keyed by address, built once at init and read-only
// thereafter.
var (
	LiveDataTable = buildTable(LiveData)
	RainDataTable = buildTable(RainData)
)

// Names returns the set of every field name the registries can emit,
// including the WH45 sub-fields and the fixed-layout rain data fields. The
// field mapper validates user mappings against this set.
func Names() map[string]struct{} {
	names := make(map[string]struct{})
	for _, s := range LiveData {
		if s.Kind == KindReserved || s.Kind == KindBattery {
			continue
		}
		if s.Kind == KindWH45 {
			for _, n := range WH45Fields {
				names[n] = struct{}{}
			}
			continue
		}
		names[s.Name] = struct{}{}
	}
	for _, s := range RainData {
		if s.Kind == KindReserved {
			continue
		}
		if s.Kind == KindRainGain {
			for i := 1; i <= 10; i++ {
				names["gain"+strconv.Itoa(i)] = struct{}{}
			}
			continue
		}
		if s.Kind == KindRainReset {
			names["day_reset"] = struct{}{}
			names["week_reset"] = struct{}{}
			names["annual_reset"] = struct{}{}
			continue
		}
		names[s.Name] = struct{}{}
	}
	// fixed-layout CMD_READ_RAINDATA fields
	for _, n := range []string{"rainrate", "rainday", "rainweek", "rainmonth", "rainyear"} {
		names[n] = struct{}{}
	}
	// derived accumulation deltas
	names["rain"] = struct{}{}
	names["lightning_strike_count"] = struct{}{}
	return names
}
