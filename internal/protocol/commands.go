// Package protocol implements the Ecowitt gateway binary command protocol:
// command vocabulary, frame layout, and checksum validation. It performs no
// I/O of its own.
package protocol

import "fmt"

// Command identifies a gateway API command.
type Command byte

// Gateway API commands. Only the read-side vocabulary is implemented;
// CMD_WRITE_* commands mutate device configuration and are not issued by
// this client.
const (
	CmdBroadcast           Command = 0x12
	CmdReadStationMAC      Command = 0x26
	CmdLiveData            Command = 0x27
	CmdGetSoilHumiAD       Command = 0x28
	CmdGetMulchOffset      Command = 0x2C
	CmdGetPM25Offset       Command = 0x2E
	CmdReadSystemParams    Command = 0x30
	CmdReadRainData        Command = 0x34
	CmdReadGain            Command = 0x36
	CmdReadCalibration     Command = 0x38
	CmdReadSensorID        Command = 0x3A
	CmdReadSensorIDNew     Command = 0x3C
	CmdReadFirmwareVersion Command = 0x50
	CmdGetCO2Offset        Command = 0x53
	CmdReadRain            Command = 0x57
)

var commandNames = map[Command]string{
	CmdBroadcast:           "CMD_BROADCAST",
	CmdReadStationMAC:      "CMD_READ_STATION_MAC",
	CmdLiveData:            "CMD_GW1000_LIVEDATA",
	CmdGetSoilHumiAD:       "CMD_GET_SOILHUMIAD",
	CmdGetMulchOffset:      "CMD_GET_MulCH_OFFSET",
	CmdGetPM25Offset:       "CMD_GET_PM25_OFFSET",
	CmdReadSystemParams:    "CMD_READ_SSSS",
	CmdReadRainData:        "CMD_READ_RAINDATA",
	CmdReadGain:            "CMD_READ_GAIN",
	CmdReadCalibration:     "CMD_READ_CALIBRATION",
	CmdReadSensorID:        "CMD_READ_SENSOR_ID",
	CmdReadSensorIDNew:     "CMD_READ_SENSOR_ID_NEW",
	CmdReadFirmwareVersion: "CMD_READ_FIRMWARE_VERSION",
	CmdGetCO2Offset:        "CMD_GET_CO2_OFFSET",
	CmdReadRain:            "CMD_READ_RAIN",
}

// wideSize lists the commands whose response carries a two byte big endian
// size field. All other responses use a single size byte.
var wideSize = map[Command]bool{
	CmdLiveData:        true,
	CmdReadRain:        true,
	CmdReadSensorIDNew: true,
}

// Known reports whether c is a recognized gateway command.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// WideSize reports whether responses to c carry a two byte size field.
func (c Command) WideSize() bool {
	return wideSize[c]
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(c))
}
