package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanweather/gwclient/internal/fieldmap"
	"github.com/lanweather/gwclient/internal/firmware"
	"github.com/lanweather/gwclient/internal/log"
	"github.com/lanweather/gwclient/internal/parser"
	"github.com/lanweather/gwclient/internal/protocol"
	"github.com/lanweather/gwclient/internal/sensors"
	"github.com/lanweather/gwclient/internal/transport"
	"github.com/lanweather/gwclient/pkg/config"
)

// Record is one output record: field-mapped values ready for the host.
type Record map[string]interface{}

// Rediscoverer supplies a fresh device endpoint after the current one has
// become unreachable. Typically backed by the discovery listener.
type Rediscoverer func(ctx context.Context) (addr string, err error)

// Session owns the background polling of one device: the transport, the
// command session, the sensor registry and the reading hand-off to the
// host. The polling goroutine is the single producer; the host consumes
// either the bounded channel or the last-known-good cache.
type Session struct {
	id       string
	cfg      *config.Config
	tr       *transport.Conn
	cmds     *CommandSession
	parser   *parser.Parser
	registry *sensors.Registry
	fieldMap fieldmap.Map
	monitor  *firmware.Monitor
	redisc   Rediscoverer

	readings chan Record

	mu         sync.RWMutex
	lastGood   Record
	lastGoodAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open builds a session against the device at addr, verifies it answers,
// and starts the polling goroutine. The field map is validated here so a
// session can never start with an inconsistent mapping.
func Open(ctx context.Context, addr string, cfg *config.Config, redisc Rediscoverer) (*Session, error) {
	fm, err := fieldmap.Build(cfg.FieldMapOverrides, cfg.FieldMapExtensions)
	if err != nil {
		return nil, err
	}

	policy := parser.IgnoreUnknownFields
	if cfg.LogUnknownFields {
		policy = parser.LogUnknownFields
	}

	tr := transport.New(addr, time.Duration(cfg.CommandTimeout))
	s := &Session{
		id:       uuid.New().String()[:8],
		cfg:      cfg,
		tr:       tr,
		cmds:     NewCommandSession(tr, cfg.MaxRetries, time.Duration(cfg.RetryWait), time.Duration(cfg.CommandTimeout), time.Duration(cfg.BroadcastTimeout)),
		parser:   parser.New(policy),
		registry: sensors.NewRegistry(),
		fieldMap: fm,
		redisc:   redisc,
		readings: make(chan Record, 1),
	}

	s.cmds.state.set(StateConnecting)
	if err := tr.Connect(ctx); err != nil {
		return nil, err
	}
	s.cmds.state.set(StateReady)

	if raw, err := s.cmds.Execute(ctx, protocol.CmdReadFirmwareVersion, nil); err != nil {
		log.Debugf("session %s: firmware version read from %s failed: %v", s.id, addr, err)
	} else if version, perr := parser.ParseFirmwareVersion(raw); perr != nil {
		log.Debugf("session %s: firmware version from %s undecodable: %v", s.id, addr, perr)
	} else {
		log.Infof("session %s: device at %s runs %s", s.id, addr, version)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.pollLoop(runCtx)

	if cfg.FirmwareCheckEnabled {
		s.monitor = firmware.NewMonitor(s.cmds, time.Duration(cfg.FirmwareCheckInterval), cfg.FirmwareLatest)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.monitor.Run(runCtx)
		}()
	}

	return s, nil
}

// Execute issues a single command on this session, ordered with the poll
// loop's own commands.
func (s *Session) Execute(ctx context.Context, cmd protocol.Command, payload []byte) ([]byte, error) {
	return s.cmds.Execute(ctx, cmd, payload)
}

// Readings returns the channel of fresh records. Capacity is one: when the
// host lags, the pending record is replaced, never accumulated.
func (s *Session) Readings() <-chan Record {
	return s.readings
}

// Poll returns the last known good record and its age. The record may be
// stale; the host decides how old is too old.
func (s *Session) Poll() (Record, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastGood == nil {
		return nil, time.Time{}
	}
	out := make(Record, len(s.lastGood))
	for k, v := range s.lastGood {
		out[k] = v
	}
	return out, s.lastGoodAt
}

// Sensors returns the current sensor registry snapshot.
func (s *Session) Sensors() []sensors.Sensor {
	return s.registry.Snapshot()
}

// Firmware returns the latest firmware check result, or nil when the
// monitor is disabled or has not completed a check.
func (s *Session) Firmware() *firmware.Status {
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Last()
}

// State reports the session state machine's current state.
func (s *Session) State() State {
	return s.cmds.State()
}

// Close stops the polling goroutine and releases the connection.
func (s *Session) Close() error {
	s.cancel()
	s.wg.Wait()
	s.cmds.state.set(StateDisconnected)
	return s.tr.Close()
}

// pollLoop is the dedicated background producer: one poll cycle per
// interval, cancellation checked between cycles and inside every wait.
func (s *Session) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	var acc parser.Accumulator

	// first cycle immediately, then on the ticker
	s.cycle(ctx, &acc)

	ticker := time.NewTicker(time.Duration(s.cfg.PollInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx, &acc)
		}
	}
}

// cycle performs one poll: refresh sensor states, fetch live data, decode,
// derive deltas, project and publish. Decode failures drop the cycle's
// reading; unreachable devices trigger backoff and rediscovery. Nothing
// here may terminate the loop except cancellation.
func (s *Session) cycle(ctx context.Context, acc *parser.Accumulator) {
	if err := s.refreshSensors(ctx); err != nil {
		log.Warnf("session %s: sensor refresh failed: %v", s.id, err)
		if errors.Is(err, ErrDeviceUnreachable) {
			s.recover(ctx)
			return
		}
	}

	payload, err := s.cmds.Execute(ctx, protocol.CmdLiveData, nil)
	if err != nil {
		if errors.Is(err, ErrDeviceUnreachable) {
			s.recover(ctx)
			return
		}
		log.Warnf("session %s: live data poll failed: %v", s.id, err)
		return
	}

	reading, err := s.parser.ParseLiveData(payload)
	if err != nil {
		log.Errorf("session %s: dropping reading: %v (payload %d bytes)", s.id, err, len(payload))
		return
	}

	acc.Update(reading)
	for name, v := range s.registry.Fields() {
		reading[name] = v
	}

	s.publish(fieldmap.Project(reading, s.fieldMap))
}

func (s *Session) refreshSensors(ctx context.Context) error {
	payload, err := s.cmds.Execute(ctx, protocol.CmdReadSensorIDNew, nil)
	if err != nil {
		return err
	}
	parsed, err := sensors.Parse(payload, sensors.ParseOptions{ShowBattery: s.cfg.ShowBattery})
	if err != nil {
		return err
	}
	s.registry.Update(parsed)
	return nil
}

// publish updates the last-known-good cache and offers the record on the
// channel, displacing an unconsumed predecessor.
func (s *Session) publish(rec Record) {
	s.mu.Lock()
	s.lastGood = rec
	s.lastGoodAt = time.Now()
	s.mu.Unlock()

	for {
		select {
		case s.readings <- rec:
			return
		default:
			select {
			case <-s.readings: // drop the stale pending record
			default:
			}
		}
	}
}

// recover handles an unreachable device: wait out the retry delay, ask the
// rediscoverer for a fresh endpoint, and reconnect. Devices are commonly
// power-cycled or get a new DHCP lease, so this is a normal path.
func (s *Session) recover(ctx context.Context) {
	if !sleepCtx(ctx, time.Duration(s.cfg.RetryWait)) {
		return
	}
	addr := s.tr.Addr()
	if s.redisc != nil {
		fresh, err := s.redisc(ctx)
		if err != nil {
			log.Warnf("session %s: rediscovery failed: %v", s.id, err)
		} else if fresh != addr {
			log.Infof("session %s: device moved to %s", s.id, fresh)
			s.tr.Close()
			s.tr = transport.New(fresh, time.Duration(s.cfg.CommandTimeout))
			s.cmds.setTransport(s.tr)
			addr = fresh
		}
	}
	s.cmds.state.set(StateConnecting)
	if err := s.tr.Connect(ctx); err != nil {
		log.Warnf("session %s: reconnect to %s failed: %v", s.id, addr, err)
		s.cmds.state.set(StateDisconnected)
		return
	}
	s.cmds.state.set(StateReady)
}
