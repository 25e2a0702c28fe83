// Package fieldmap builds and applies the mapping from output record names
// to decoded field names. A built map is immutable for the life of a
// session; user overrides and extensions are validated at construction so
// that a session can never start with an inconsistent mapping.
package fieldmap

import (
	"errors"
	"fmt"

	"github.com/lanweather/gwclient/internal/fields"
	"github.com/lanweather/gwclient/internal/parser"
	"github.com/lanweather/gwclient/internal/sensors"
)

// ErrInvalidMapping is returned when a user-supplied entry references a
// decoded field name that nothing can ever emit. Fatal at startup.
var ErrInvalidMapping = errors.New("invalid field mapping")

// Map associates output names with decoded field names.
type Map map[string]string

// Default is the built-in output mapping. Rainfall outputs source the
// traditional gauge's fields; a piezo-only installation remaps them with
// extensions.
var Default = Map{
	"inTemp":                  "intemp",
	"outTemp":                 "outtemp",
	"dewpoint":                "dewpoint",
	"windchill":               "windchill",
	"heatindex":               "heatindex",
	"inHumidity":              "inhumid",
	"outHumidity":             "outhumid",
	"pressure":                "absbarometer",
	"barometer":               "relbarometer",
	"windDir":                 "winddir",
	"windSpeed":               "windspeed",
	"windGust":                "gustspeed",
	"daymaxwind":              "daymaxwind",
	"rain":                    "rain",
	"rainEvent":               "t_rainevent",
	"rainRate":                "t_rainrate",
	"dayRain":                 "t_rainday",
	"weekRain":                "t_rainweek",
	"monthRain":               "t_rainmonth",
	"yearRain":                "t_rainyear",
	"totalRain":               "t_raintotals",
	"luminosity":              "light",
	"uvRadiation":             "uv",
	"UV":                      "uvi",
	"extraTemp1":              "temp1",
	"extraTemp2":              "temp2",
	"extraTemp3":              "temp3",
	"extraTemp4":              "temp4",
	"extraTemp5":              "temp5",
	"extraTemp6":              "temp6",
	"extraTemp7":              "temp7",
	"extraTemp8":              "temp8",
	"extraTemp9":              "temp9",
	"extraTemp10":             "temp10",
	"extraTemp11":             "temp11",
	"extraTemp12":             "temp12",
	"extraTemp13":             "temp13",
	"extraTemp14":             "temp14",
	"extraTemp15":             "temp15",
	"extraTemp16":             "temp16",
	"extraTemp17":             "temp17",
	"extraHumid1":             "humid1",
	"extraHumid2":             "humid2",
	"extraHumid3":             "humid3",
	"extraHumid4":             "humid4",
	"extraHumid5":             "humid5",
	"extraHumid6":             "humid6",
	"extraHumid7":             "humid7",
	"extraHumid8":             "humid8",
	"extraHumid17":            "humid17",
	"pm2_5":                   "pm251",
	"pm2_52":                  "pm252",
	"pm2_53":                  "pm253",
	"pm2_54":                  "pm254",
	"pm2_55":                  "pm255",
	"pm10":                    "pm10",
	"co2":                     "co2",
	"soilTemp1":               "soiltemp1",
	"soilMoist1":              "soilmoist1",
	"soilTemp2":               "soiltemp2",
	"soilMoist2":              "soilmoist2",
	"soilTemp3":               "soiltemp3",
	"soilMoist3":              "soilmoist3",
	"soilTemp4":               "soiltemp4",
	"soilMoist4":              "soilmoist4",
	"soilTemp5":               "soiltemp5",
	"soilMoist5":              "soilmoist5",
	"soilTemp6":               "soiltemp6",
	"soilMoist6":              "soilmoist6",
	"soilTemp7":               "soiltemp7",
	"soilMoist7":              "soilmoist7",
	"soilTemp8":               "soiltemp8",
	"soilMoist8":              "soilmoist8",
	"soilTemp9":               "soiltemp9",
	"soilMoist9":              "soilmoist9",
	"soilTemp10":              "soiltemp10",
	"soilMoist10":             "soilmoist10",
	"soilTemp11":              "soiltemp11",
	"soilMoist11":             "soilmoist11",
	"soilTemp12":              "soiltemp12",
	"soilMoist12":             "soilmoist12",
	"soilTemp13":              "soiltemp13",
	"soilMoist13":             "soilmoist13",
	"soilTemp14":              "soiltemp14",
	"soilMoist14":             "soilmoist14",
	"soilTemp15":              "soiltemp15",
	"soilMoist15":             "soilmoist15",
	"soilTemp16":              "soiltemp16",
	"soilMoist16":             "soilmoist16",
	"pm2_51_24h_avg":          "pm251_24h_avg",
	"pm2_52_24h_avg":          "pm252_24h_avg",
	"pm2_53_24h_avg":          "pm253_24h_avg",
	"pm2_54_24h_avg":          "pm254_24h_avg",
	"pm2_55_24h_avg":          "pm255_24h_avg",
	"pm10_24h_avg":            "pm10_24h_avg",
	"co2_24h_avg":             "co2_24h_avg",
	"leak1":                   "leak1",
	"leak2":                   "leak2",
	"leak3":                   "leak3",
	"leak4":                   "leak4",
	"leafWet1":                "leafwet1",
	"leafWet2":                "leafwet2",
	"leafWet3":                "leafwet3",
	"leafWet4":                "leafwet4",
	"leafWet5":                "leafwet5",
	"leafWet6":                "leafwet6",
	"leafWet7":                "leafwet7",
	"leafWet8":                "leafwet8",
	"lightning_distance":      "lightningdist",
	"lightning_last_det_time": "lightningdettime",
	"lightning_strike_count":  "lightning_strike_count",
}

// knownFieldNames is every decoded field name a mapping may reference: the
// field registries plus the sensor battery/signal fields.
var knownFieldNames = func() map[string]struct{} {
	names := fields.Names()
	for n := range sensors.FieldNames() {
		names[n] = struct{}{}
	}
	return names
}()

// Build constructs the session's field map. overrides, when non-empty,
// fully replaces the default map; extensions then add or replace single
// entries on top of whichever map is in effect, so callers never restate
// unrelated entries. Every referenced field name is validated here.
func Build(overrides, extensions Map) (Map, error) {
	base := Default
	if len(overrides) > 0 {
		base = overrides
	}

	m := make(Map, len(base)+len(extensions))
	for out, src := range base {
		m[out] = src
	}
	for out, src := range extensions {
		m[out] = src
	}

	for out, src := range m {
		if _, ok := knownFieldNames[src]; !ok {
			return nil, fmt.Errorf("%w: output %q references unknown field %q", ErrInvalidMapping, out, src)
		}
	}
	return m, nil
}

// Project assembles an output record from a decoded reading: every map
// entry whose source field is present emits output name = value. Absent
// sources are omitted; partial data is normal, not an error.
func Project(reading parser.Reading, m Map) map[string]interface{} {
	out := make(map[string]interface{})
	for name, src := range m {
		if v, ok := reading[src]; ok {
			out[name] = v
		}
	}
	return out
}
