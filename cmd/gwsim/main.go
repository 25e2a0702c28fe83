// Gwsim emulates an Ecowitt-compatible weather gateway for development
// and testing. It broadcasts UDP self-announcements the way real devices
// do and answers the TCP command port with synthetic but realistic data.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"math"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/lanweather/gwclient/internal/protocol"
)

func main() {
	var (
		port         = flag.Int("port", 45000, "TCP command port to listen on")
		monitorPort  = flag.Int("monitor-port", 46000, "UDP port to announce on")
		announceEach = flag.Duration("announce-interval", 10*time.Second, "Interval between announcements")
		name         = flag.String("name", "GW1000A-WIFIFC99", "Device SSID name")
		macStr       = flag.String("mac", "50:02:91:E3:FC:99", "Device MAC address")
		firmware     = flag.String("firmware", "GW1000B_V1.6.8", "Firmware version to report")
	)
	flag.Parse()

	mac, err := net.ParseMAC(*macStr)
	if err != nil {
		log.Fatalf("invalid MAC %q: %v", *macStr, err)
	}

	log.Printf("Weather Gateway Emulator")
	log.Printf("Command port %d, announcing %q every %v", *port, *name, *announceEach)

	sim := &gateway{
		name:     *name,
		mac:      mac,
		port:     uint16(*port),
		firmware: *firmware,
	}

	go sim.announce(*monitorPort, *announceEach)

	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(*port)))
	if err != nil {
		log.Fatal("Failed to listen:", err)
	}
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Failed to accept connection: %v", err)
			continue
		}
		log.Printf("Client connected from %s", conn.RemoteAddr())
		go sim.handleConnection(conn)
	}
}

type gateway struct {
	name     string
	mac      net.HardwareAddr
	port     uint16
	firmware string
}

// announce periodically broadcasts the self-announcement datagram devices
// send on the monitor port.
func (g *gateway) announce(monitorPort int, interval time.Duration) {
	addr := &net.UDPAddr{IP: net.IPv4bcast, Port: monitorPort}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		log.Printf("announcements disabled: %v", err)
		return
	}
	defer conn.Close()

	ip := localIPv4(conn)
	datagram := g.announcement(ip)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := conn.Write(datagram); err != nil {
			log.Printf("announcement failed: %v", err)
		}
		<-ticker.C
	}
}

func localIPv4(conn *net.UDPConn) net.IP {
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		if v4 := la.IP.To4(); v4 != nil && !v4.IsUnspecified() {
			return v4
		}
	}
	return net.IPv4(127, 0, 0, 1).To4()
}

// announcement builds the broadcast frame: MAC, IPv4, command port and the
// device name, wrapped in the usual header/checksum envelope.
func (g *gateway) announcement(ip net.IP) []byte {
	payload := make([]byte, 0, 13+len(g.name))
	payload = append(payload, g.mac...)
	payload = append(payload, ip.To4()...)
	payload = append(payload, byte(g.port>>8), byte(g.port))
	payload = append(payload, byte(len(g.name)))
	payload = append(payload, g.name...)
	return respond(protocol.CmdBroadcast, payload)
}

// respond wraps a payload in a response frame for cmd, using the wide or
// narrow size field as appropriate.
func respond(cmd protocol.Command, payload []byte) []byte {
	buf := []byte{0xFF, 0xFF, byte(cmd)}
	if cmd == protocol.CmdBroadcast || cmd.WideSize() {
		size := len(payload) + 4
		buf = append(buf, byte(size>>8), byte(size))
	} else {
		buf = append(buf, byte(len(payload)+3))
	}
	buf = append(buf, payload...)
	var sum int
	for _, b := range buf[2:] {
		sum += int(b)
	}
	return append(buf, byte(sum))
}

func (g *gateway) handleConnection(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n < 5 || buf[0] != 0xFF || buf[1] != 0xFF {
			log.Printf("ignoring malformed frame from %s", conn.RemoteAddr())
			continue
		}
		cmd := protocol.Command(buf[2])
		resp := g.dispatch(cmd)
		if resp == nil {
			log.Printf("unsupported command %v from %s", cmd, conn.RemoteAddr())
			continue
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func (g *gateway) dispatch(cmd protocol.Command) []byte {
	switch cmd {
	case protocol.CmdLiveData:
		return respond(cmd, liveDataPayload())
	case protocol.CmdReadSensorIDNew:
		return respond(cmd, sensorIDPayload())
	case protocol.CmdReadFirmwareVersion:
		return respond(cmd, append([]byte{byte(len(g.firmware))}, g.firmware...))
	case protocol.CmdReadStationMAC:
		return respond(cmd, g.mac)
	case protocol.CmdReadSystemParams:
		return respond(cmd, systemParamsPayload())
	case protocol.CmdReadRainData:
		return respond(cmd, rainDataPayload())
	case protocol.CmdReadRain:
		return respond(cmd, rainPayload())
	case protocol.CmdReadCalibration:
		return respond(cmd, calibrationPayload())
	case protocol.CmdReadGain:
		return respond(cmd, gainPayload())
	default:
		return nil
	}
}

// liveDataPayload produces an addressed live data block with realistic
// values: seasonal and daily temperature cycles, humidity inverse to
// temperature, solar radiation following the sun.
func liveDataPayload() []byte {
	now := time.Now()
	hour := float64(now.Hour())
	dayOfYear := float64(now.YearDay())

	seasonalTemp := 15.0 + 10.0*math.Sin(2*math.Pi*(dayOfYear-81)/365)
	outTemp := seasonalTemp + 7.0*math.Sin(2*math.Pi*(hour-6)/24) + rand.Float64()*2 - 1
	inTemp := 21.0 + rand.Float64()*2

	baseHumidity := 60 - (outTemp-15)*1.5 + 15*math.Sin(2*math.Pi*(hour-18)/24)
	humidity := math.Max(10, math.Min(95, baseHumidity+rand.Float64()*10-5))

	var solar float64
	if hour >= 6 && hour <= 18 {
		sunAngle := math.Sin(math.Pi * (hour - 6) / 12)
		solar = sunAngle * 900 * (0.8 + rand.Float64()*0.4)
	}

	windSpeed := 1.5 + rand.Float64()*4 + math.Sin(2*math.Pi*hour/24)

	var p payload
	p.temp(0x01, inTemp)
	p.temp(0x02, outTemp)
	p.byteVal(0x06, byte(40+rand.Intn(10)))
	p.byteVal(0x07, byte(humidity))
	p.u16(0x08, uint16((1013.0+rand.Float64()*10)*10))
	p.u16(0x09, uint16((1015.0+rand.Float64()*10)*10))
	p.u16(0x0A, uint16(rand.Intn(360)))
	p.u16(0x0B, uint16(windSpeed*10))
	p.u16(0x0C, uint16(windSpeed*1.6*10))
	p.u32(0x15, uint32(solar*10))
	p.u16(0x16, uint16(solar/10))
	p.byteVal(0x17, byte(solar/120))
	p.u16(0x19, uint16(windSpeed*2.2*10))
	return p.b
}

type payload struct {
	b []byte
}

func (p *payload) temp(addr byte, c float64) {
	v := int16(c * 10)
	p.b = append(p.b, addr, byte(uint16(v)>>8), byte(uint16(v)))
}

func (p *payload) byteVal(addr, v byte) {
	p.b = append(p.b, addr, v)
}

func (p *payload) u16(addr byte, v uint16) {
	p.b = append(p.b, addr, byte(v>>8), byte(v))
}

func (p *payload) u32(addr byte, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	p.b = append(p.b, addr)
	p.b = append(p.b, tmp[:]...)
}

// sensorIDPayload reports a WH65 outdoor combo and a WH31 on channel 1,
// both heard at good signal.
func sensorIDPayload() []byte {
	return []byte{
		0x00, 0x00, 0x00, 0xC4, 0x97, 0x00, 0x04, // wh65
		0x06, 0x00, 0x00, 0xE3, 0x08, 0x00, 0x04, // wh31 ch1
		0x0F, 0xFF, 0xFF, 0xFF, 0xFE, 0x00, 0x00, // wh41 ch1 disabled
	}
}

func systemParamsPayload() []byte {
	p := make([]byte, 8)
	p[0] = 0x02 // 915MHz
	p[1] = 0x01 // WH65
	binary.BigEndian.PutUint32(p[2:6], uint32(time.Now().Unix()))
	p[6] = 105
	p[7] = 0
	return p
}

func rainDataPayload() []byte {
	p := make([]byte, 20)
	binary.BigEndian.PutUint32(p[0:4], 0)
	binary.BigEndian.PutUint32(p[4:8], 24)    // 2.4 mm today
	binary.BigEndian.PutUint32(p[8:12], 181)  // 18.1 mm this week
	binary.BigEndian.PutUint32(p[12:16], 542) // 54.2 mm this month
	binary.BigEndian.PutUint32(p[16:20], 7634)
	return p
}

// rainPayload uses the CMD_READ_RAIN layout, where the day and week
// counters are four bytes wide.
func rainPayload() []byte {
	var p payload
	p.u16(0x0E, 0)
	p.b = append(p.b, 0x10, 0x00, 0x00, 0x00, 24)
	p.b = append(p.b, 0x11, 0x00, 0x00, 0x00, 181)
	p.u32(0x12, 542)
	p.u32(0x13, 7634)
	return p.b
}

func calibrationPayload() []byte {
	p := make([]byte, 16)
	intemp := int16(-5)
	binary.BigEndian.PutUint16(p[0:2], uint16(intemp)) // intemp -0.5
	binary.BigEndian.PutUint32(p[3:7], 0)
	binary.BigEndian.PutUint32(p[7:11], uint32(int32(20))) // relbaro +2.0
	return p
}

func gainPayload() []byte {
	p := make([]byte, 10)
	binary.BigEndian.PutUint16(p[0:2], 126) // fixed lux gain
	binary.BigEndian.PutUint16(p[2:4], 100)
	binary.BigEndian.PutUint16(p[4:6], 100)
	binary.BigEndian.PutUint16(p[6:8], 100)
	binary.BigEndian.PutUint16(p[8:10], 100)
	return p
}
