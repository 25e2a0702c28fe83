// Package discovery locates gateway devices on the local network segment.
// Devices periodically announce themselves with a broadcast datagram on a
// well-known monitor port; the listener decodes these announcements into a
// registry keyed by hardware address, so a device that changes IP or port
// updates its existing record rather than appearing twice.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lanweather/gwclient/internal/log"
)

// MonitorPort is the UDP port gateway devices announce themselves on.
const MonitorPort = 46000

// ErrNoDeviceFound is returned when a time-boxed scan hears no device
// announcements. The caller decides whether to retry.
var ErrNoDeviceFound = errors.New("no device found")

// knownModels are the device model prefixes that appear at the start of a
// device's SSID and firmware version string.
var knownModels = []string{"GW1000", "GW1100", "GW2000", "WH2650", "WH2850", "WN1900"}

// unknownModel is recorded when the announcement's name matches no known
// model, rather than leaving the model empty.
const unknownModel = "unknown model"

// Device is one discovered gateway. Identity is the hardware address: IP
// and port may change across announcements, the MAC does not.
type Device struct {
	MAC      net.HardwareAddr
	IP       net.IP
	Port     int
	Model    string
	Name     string
	LastSeen time.Time
}

// Addr returns the device's command endpoint in host:port form.
func (d Device) Addr() string {
	return net.JoinHostPort(d.IP.String(), fmt.Sprintf("%d", d.Port))
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s at %s)", d.Model, d.MAC, d.Addr())
}

// DeviceModel derives the model from a device name or firmware version
// string, eg "GW1000-WIFIDB1B" or "GW1000_V1.6.8".
func DeviceModel(name string) string {
	for _, m := range knownModels {
		if strings.HasPrefix(name, m) {
			return m
		}
	}
	return unknownModel
}

// decodeAnnouncement unpacks one self-announcement datagram:
//
//	bytes 0-1   header 0xFFFF
//	byte  2     command code 0x12
//	bytes 3-4   size, big endian
//	bytes 5-10  hardware address
//	bytes 11-14 IP address octets
//	bytes 15-16 command port, big endian
//	byte  17    device name length
//	bytes 18-   device name (SSID)
//	last byte   checksum
func decodeAnnouncement(buf []byte) (*Device, error) {
	if len(buf) < 18 {
		return nil, fmt.Errorf("announcement too short: %d bytes", len(buf))
	}
	if buf[0] != 0xFF || buf[1] != 0xFF || buf[2] != 0x12 {
		return nil, fmt.Errorf("not an announcement: % X", buf[:3])
	}
	nameLen := int(buf[17])
	if 18+nameLen > len(buf) {
		return nil, fmt.Errorf("announcement name length %d exceeds datagram", nameLen)
	}
	name := string(buf[18 : 18+nameLen])
	return &Device{
		MAC:   net.HardwareAddr(append([]byte(nil), buf[5:11]...)),
		IP:    net.IPv4(buf[11], buf[12], buf[13], buf[14]),
		Port:  int(buf[15])<<8 | int(buf[16]),
		Model: DeviceModel(name),
		Name:  name,
	}, nil
}

// Listener receives device announcements and maintains the device registry.
type Listener struct {
	mu      sync.RWMutex
	conn    net.PacketConn
	devices map[string]*Device
}

// Listen binds the UDP monitor port and starts collecting announcements
// until ctx is canceled. Pass port 0 only in tests; real devices announce
// on MonitorPort.
func Listen(ctx context.Context, port int) (*Listener, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("binding monitor port %d: %w", port, err)
	}
	l := &Listener{
		conn:    conn,
		devices: make(map[string]*Device),
	}
	go l.run(ctx)
	return l, nil
}

func (l *Listener) run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("monitor port read error: %v", err)
			return
		}
		dev, err := decodeAnnouncement(buf[:n])
		if err != nil {
			log.Debugf("ignoring datagram from %v: %v", from, err)
			continue
		}
		l.record(dev)
	}
}

// record inserts or updates the registry entry for dev. Hardware address is
// the identity key: a re-announcement with a changed IP or port mutates the
// existing entry in place.
func (l *Listener) record(dev *Device) {
	dev.LastSeen = time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	key := dev.MAC.String()
	if prev, ok := l.devices[key]; ok {
		if !prev.IP.Equal(dev.IP) || prev.Port != dev.Port {
			log.Infof("device %s moved from %s to %s", key, prev.Addr(), dev.Addr())
		}
		*prev = *dev
		return
	}
	log.Infof("discovered %s", dev)
	l.devices[key] = dev
}

// Devices returns a copy of the registry.
func (l *Listener) Devices() []Device {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Device, 0, len(l.devices))
	for _, d := range l.devices {
		out = append(out, *d)
	}
	return out
}

// Scan waits up to d for at least one device to be heard and returns the
// registry contents, or ErrNoDeviceFound if the scan window closes empty.
func (l *Listener) Scan(ctx context.Context, d time.Duration) ([]Device, error) {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if devs := l.Devices(); len(devs) > 0 {
			return devs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: nothing heard on port %d in %v",
				ErrNoDeviceFound, MonitorPort, d)
		case <-tick.C:
		}
	}
}
