package parser

import (
	"encoding/hex"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	return b
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// Live data payload captured from a GW1000 with indoor sensor, two WH31
// channels, a WH41, two WH51 soil probes and a WH57 lightning sensor.
const liveDataCapture = "01 01 40 06 26 08 27 D2 09 27 D2 2A 00 5A " +
	"4D 00 65 2C 27 2E 14 1A 00 ED 22 3A 1B 01 0B 23 3A 4C 06 " +
	"00 00 00 05 FF FF 00 F6 FF FF FF FF FF FF FF 62 00 00 00 " +
	"00 61 FF FF FF FF 60 FF"

func TestParseLiveData(t *testing.T) {
	p := New(LogUnknownFields)
	got, err := p.ParseLiveData(mustHex(t, liveDataCapture))
	if err != nil {
		t.Fatalf("ParseLiveData() error = %v", err)
	}

	wantFloats := map[string]float64{
		"intemp":        32.0,
		"absbarometer":  1019.4,
		"relbarometer":  1019.4,
		"pm251":         9.0,
		"pm251_24h_avg": 10.1,
		"temp1":         23.7,
		"temp2":         26.7,
	}
	for name, want := range wantFloats {
		v, ok := got[name].(float64)
		if !ok {
			t.Errorf("%s missing or wrong type: %v", name, got[name])
			continue
		}
		if !approxEqual(v, want) {
			t.Errorf("%s = %v, want %v", name, v, want)
		}
	}

	wantInts := map[string]int{
		"inhumid":        38,
		"humid1":         58,
		"humid2":         58,
		"soilmoist1":     39,
		"soilmoist2":     20,
		"lightningcount": 0,
	}
	for name, want := range wantInts {
		v, ok := got[name].(int)
		if !ok {
			t.Errorf("%s missing or wrong type: %v", name, got[name])
			continue
		}
		if v != want {
			t.Errorf("%s = %v, want %v", name, v, want)
		}
	}

	// lightning distance 0xFF and detection time 0xFFFFFFFF mean no strike
	// heard; neither may surface
	if _, ok := got["lightningdist"]; ok {
		t.Errorf("lightningdist = %v, want absent", got["lightningdist"])
	}
	if _, ok := got["lightningdettime"]; ok {
		t.Errorf("lightningdettime = %v, want absent", got["lightningdettime"])
	}
	// the legacy battery block is consumed but silent sensors report fake
	// battery data in it, so nothing from it may surface
	if _, ok := got["lowbatt"]; ok {
		t.Errorf("lowbatt = %v, want absent", got["lowbatt"])
	}
}

// The same logical day-rain value must decode identically from the two byte
// live data layout and the four byte rain command layout.
func TestRainLayoutSelection(t *testing.T) {
	p := New(LogUnknownFields)

	live, err := p.ParseLiveData(mustHex(t, "10 00 7B"))
	if err != nil {
		t.Fatalf("ParseLiveData() error = %v", err)
	}
	rain, err := p.ParseRain(mustHex(t, "10 00 00 00 7B"))
	if err != nil {
		t.Fatalf("ParseRain() error = %v", err)
	}

	lv, rv := live["t_rainday"].(float64), rain["t_rainday"].(float64)
	if !approxEqual(lv, 12.3) || !approxEqual(rv, 12.3) {
		t.Errorf("t_rainday live = %v, rain = %v, want 12.3 from both", lv, rv)
	}
}

func TestParseRainGainAndReset(t *testing.T) {
	p := New(LogUnknownFields)
	payload := []byte{0x87}
	for i := 0; i < 10; i++ {
		payload = append(payload, 0x00, 0x64) // 1.00
	}
	payload = append(payload, 0x88, 0x07, 0x01, 0x00)

	got, err := p.ParseRain(payload)
	if err != nil {
		t.Fatalf("ParseRain() error = %v", err)
	}
	if v := got["gain1"].(float64); !approxEqual(v, 1.0) {
		t.Errorf("gain1 = %v, want 1.0", v)
	}
	if v := got["gain10"].(float64); !approxEqual(v, 1.0) {
		t.Errorf("gain10 = %v, want 1.0", v)
	}
	if v := got["day_reset"].(int); v != 7 {
		t.Errorf("day_reset = %v, want 7", v)
	}
	if v := got["week_reset"].(int); v != 1 {
		t.Errorf("week_reset = %v, want 1", v)
	}
}

func TestParseWH45Block(t *testing.T) {
	p := New(LogUnknownFields)
	payload := mustHex(t, "70 00 D2 30 00 30 00 32 00 1C 00 1E 01 90 01 92 05")
	got, err := p.ParseLiveData(payload)
	if err != nil {
		t.Fatalf("ParseLiveData() error = %v", err)
	}
	want := Reading{
		"temp17":        21.0,
		"humid17":       48,
		"pm10":          4.8,
		"pm10_24h_avg":  5.0,
		"pm255":         2.8,
		"pm255_24h_avg": 3.0,
		"co2":           400,
		"co2_24h_avg":   402,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WH45 block = %v, want %v", got, want)
	}
}

func TestUnknownFieldPolicy(t *testing.T) {
	// field 0x71 is unassigned; everything after it is unwalkable
	payload := mustHex(t, "06 26 71 01 02 03")

	t.Run("log and stop", func(t *testing.T) {
		got, err := New(LogUnknownFields).ParseLiveData(payload)
		if err != nil {
			t.Fatalf("ParseLiveData() error = %v", err)
		}
		if v := got["inhumid"].(int); v != 38 {
			t.Errorf("inhumid = %v, want 38", v)
		}
		if len(got) != 1 {
			t.Errorf("reading has %d fields, want 1: %v", len(got), got)
		}
	})

	t.Run("fail", func(t *testing.T) {
		_, err := New(FailUnknownFields).ParseLiveData(payload)
		if !errors.Is(err, ErrDecode) {
			t.Errorf("error = %v, want ErrDecode", err)
		}
	})
}

func TestParseTruncatedField(t *testing.T) {
	// intemp declares two value bytes but only one follows
	_, err := New(LogUnknownFields).ParseLiveData([]byte{0x01, 0x01})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestParseRainTotals(t *testing.T) {
	payload := mustHex(t, "00 00 00 00 00 00 00 64 00 00 01 2C 00 00 04 D2 00 00 30 39")
	got, err := ParseRainTotals(payload)
	if err != nil {
		t.Fatalf("ParseRainTotals() error = %v", err)
	}
	want := &RainTotals{Rate: 0, Day: 10.0, Week: 30.0, Month: 123.4, Year: 1234.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseRainTotals() = %+v, want %+v", got, want)
	}

	if _, err := ParseRainTotals(payload[:10]); !errors.Is(err, ErrDecode) {
		t.Errorf("short payload error = %v, want ErrDecode", err)
	}
}

func TestParseFirmwareVersion(t *testing.T) {
	payload := append([]byte{0x0D}, []byte("GW1000_V1.6.8")...)
	got, err := ParseFirmwareVersion(payload)
	if err != nil {
		t.Fatalf("ParseFirmwareVersion() error = %v", err)
	}
	if got != "GW1000_V1.6.8" {
		t.Errorf("version = %q, want GW1000_V1.6.8", got)
	}

	if _, err := ParseFirmwareVersion([]byte{0x20, 'x'}); !errors.Is(err, ErrDecode) {
		t.Errorf("overlong declared length error = %v, want ErrDecode", err)
	}
}

func TestParseSystemParams(t *testing.T) {
	payload := mustHex(t, "02 01 60 B6 CB 78 69 00")
	got, err := ParseSystemParams(payload)
	if err != nil {
		t.Fatalf("ParseSystemParams() error = %v", err)
	}
	if got.Frequency != "915MHz" {
		t.Errorf("frequency = %q, want 915MHz", got.Frequency)
	}
	if got.SensorType != SensorWH65 {
		t.Errorf("sensor type = %v, want WH65", got.SensorType)
	}
	if got.TimezoneIndex != 105 {
		t.Errorf("timezone index = %d, want 105", got.TimezoneIndex)
	}
	if got.DST {
		t.Error("DST = true, want false")
	}
}

func TestParseGain(t *testing.T) {
	payload := mustHex(t, "04 F3 00 64 00 64 00 64 00 64")
	got, err := ParseGain(payload)
	if err != nil {
		t.Fatalf("ParseGain() error = %v", err)
	}
	want := &Gain{UV: 1.0, Solar: 1.0, Wind: 1.0, Rain: 1.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseGain() = %+v, want %+v", got, want)
	}
}

func TestParseCalibration(t *testing.T) {
	payload := mustHex(t, "FF F6 FE 00 00 00 0A FF FF FF F6 00 14 05 FF B0")
	got, err := ParseCalibration(payload)
	if err != nil {
		t.Fatalf("ParseCalibration() error = %v", err)
	}
	want := &Calibration{
		InTemp:   -1.0,
		InHumid:  -2,
		AbsBaro:  1.0,
		RelBaro:  -1.0,
		OutTemp:  2.0,
		OutHumid: 5,
		WindDir:  -80,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseCalibration() = %+v, want %+v", got, want)
	}
}

func TestAccumulatorRainDelta(t *testing.T) {
	var acc Accumulator

	first := Reading{"t_rainyear": 100.0}
	acc.Update(first)
	if _, ok := first["rain"]; ok {
		t.Errorf("first cycle emitted rain delta %v, want baseline only", first["rain"])
	}

	second := Reading{"t_rainyear": 102.5}
	acc.Update(second)
	if v := second["rain"].(float64); !approxEqual(v, 2.5) {
		t.Errorf("rain delta = %v, want 2.5", v)
	}

	// counter reset: new total becomes the delta
	third := Reading{"t_rainyear": 0.3}
	acc.Update(third)
	if v := third["rain"].(float64); !approxEqual(v, 0.3) {
		t.Errorf("rain delta after reset = %v, want 0.3", v)
	}
}

func TestAccumulatorLightningDelta(t *testing.T) {
	var acc Accumulator

	acc.Update(Reading{"lightningcount": 10})

	second := Reading{"lightningcount": 13}
	acc.Update(second)
	if v := second["lightning_strike_count"].(int); v != 3 {
		t.Errorf("strike delta = %v, want 3", v)
	}

	reset := Reading{"lightningcount": 1}
	acc.Update(reset)
	if v := reset["lightning_strike_count"].(int); v != 1 {
		t.Errorf("strike delta after reset = %v, want 1", v)
	}
}
