package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lanweather/gwclient/internal/protocol"
	"github.com/lanweather/gwclient/internal/transport"
	"github.com/lanweather/gwclient/pkg/config"
)

// scriptTransport feeds Execute a scripted sequence of receive results.
type scriptTransport struct {
	script []func() ([]byte, error)
	calls  int

	reconnects   int
	reconnectErr error
}

func (s *scriptTransport) Send([]byte) error { return nil }

func (s *scriptTransport) Receive(protocol.Command, time.Duration) ([]byte, error) {
	if s.calls >= len(s.script) {
		return nil, errors.New("script exhausted")
	}
	step := s.script[s.calls]
	s.calls++
	return step()
}

func (s *scriptTransport) Reconnect(context.Context) error {
	s.reconnects++
	return s.reconnectErr
}

func (s *scriptTransport) Addr() string { return "test:45000" }

func response(cmd protocol.Command, payload []byte) []byte {
	buf := []byte{0xFF, 0xFF, byte(cmd)}
	if cmd.WideSize() {
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

func good(cmd protocol.Command, payload []byte) func() ([]byte, error) {
	return func() ([]byte, error) { return response(cmd, payload), nil }
}

func corrupt(cmd protocol.Command, payload []byte) func() ([]byte, error) {
	return func() ([]byte, error) {
		r := response(cmd, payload)
		r[len(r)-1] ^= 0xFF
		return r, nil
	}
}

func fail(err error) func() ([]byte, error) {
	return func() ([]byte, error) { return nil, err }
}

func TestExecuteRetriesChecksumFailure(t *testing.T) {
	tr := &scriptTransport{script: []func() ([]byte, error){
		corrupt(protocol.CmdLiveData, []byte{0x06, 0x26}),
		good(protocol.CmdLiveData, []byte{0x06, 0x26}),
	}}
	cs := NewCommandSession(tr, 3, time.Millisecond, time.Second, 0)

	payload, err := cs.Execute(context.Background(), protocol.CmdLiveData, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(payload) != 2 || payload[0] != 0x06 {
		t.Errorf("payload = % X", payload)
	}
	if tr.calls != 2 {
		t.Errorf("transport used %d times, want 2", tr.calls)
	}
}

func TestExecuteRetriesTimeout(t *testing.T) {
	timeoutErr := transport.ErrTimeout
	tr := &scriptTransport{script: []func() ([]byte, error){
		fail(timeoutErr),
		good(protocol.CmdReadFirmwareVersion, append([]byte{0x02}, "v1"...)),
	}}
	cs := NewCommandSession(tr, 3, time.Millisecond, time.Second, 0)

	if _, err := cs.Execute(context.Background(), protocol.CmdReadFirmwareVersion, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteExhaustsAttemptBudget(t *testing.T) {
	tr := &scriptTransport{script: []func() ([]byte, error){
		fail(transport.ErrTimeout),
		fail(transport.ErrTimeout),
		fail(transport.ErrTimeout),
	}}
	cs := NewCommandSession(tr, 3, time.Millisecond, time.Second, 0)

	_, err := cs.Execute(context.Background(), protocol.CmdLiveData, nil)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Execute() error = %v, want ErrCommandFailed", err)
	}
	if !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("ErrCommandFailed does not wrap the last cause: %v", err)
	}
	if tr.calls != 3 {
		t.Errorf("transport used %d times, want 3", tr.calls)
	}
	if cs.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", cs.State())
	}
}

func TestExecuteReconnectsOnceOnConnectionError(t *testing.T) {
	tr := &scriptTransport{script: []func() ([]byte, error){
		fail(transport.ErrConnection),
		good(protocol.CmdLiveData, []byte{0x06, 0x26}),
	}}
	cs := NewCommandSession(tr, 3, time.Millisecond, time.Second, 0)

	if _, err := cs.Execute(context.Background(), protocol.CmdLiveData, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if tr.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", tr.reconnects)
	}
}

func TestExecuteUnreachableWhenReconnectFails(t *testing.T) {
	tr := &scriptTransport{
		script:       []func() ([]byte, error){fail(transport.ErrConnection)},
		reconnectErr: errors.New("refused"),
	}
	cs := NewCommandSession(tr, 3, time.Millisecond, time.Second, 0)

	_, err := cs.Execute(context.Background(), protocol.CmdLiveData, nil)
	if !errors.Is(err, ErrDeviceUnreachable) {
		t.Fatalf("Execute() error = %v, want ErrDeviceUnreachable", err)
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &scriptTransport{}
	cs := NewCommandSession(tr, 3, time.Second, time.Second, 0)

	if _, err := cs.Execute(ctx, protocol.CmdLiveData, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if tr.calls != 0 {
		t.Errorf("transport used %d times after cancellation", tr.calls)
	}
}

// overlapTransport tracks how many exchanges are in flight at once. Send
// opens an exchange, Receive closes it after a pause wide enough for a
// second caller to collide.
type overlapTransport struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (o *overlapTransport) Send([]byte) error {
	o.mu.Lock()
	o.inFlight++
	if o.inFlight > o.maxSeen {
		o.maxSeen = o.inFlight
	}
	o.mu.Unlock()
	return nil
}

func (o *overlapTransport) Receive(cmd protocol.Command, _ time.Duration) ([]byte, error) {
	time.Sleep(10 * time.Millisecond)
	o.mu.Lock()
	o.inFlight--
	o.mu.Unlock()
	return response(cmd, []byte{0x01}), nil
}

func (o *overlapTransport) Reconnect(context.Context) error { return nil }
func (o *overlapTransport) Addr() string                    { return "test:45000" }

func TestExecuteSerializesConcurrentCallers(t *testing.T) {
	tr := &overlapTransport{}
	cs := NewCommandSession(tr, 3, time.Millisecond, time.Second, 0)

	// the poll loop, the firmware monitor and the host can all issue
	// commands on one session; responses must never interleave
	var wg sync.WaitGroup
	for _, cmd := range []protocol.Command{
		protocol.CmdLiveData,
		protocol.CmdReadFirmwareVersion,
		protocol.CmdReadSensorIDNew,
	} {
		wg.Add(1)
		go func(cmd protocol.Command) {
			defer wg.Done()
			if _, err := cs.Execute(context.Background(), cmd, nil); err != nil {
				t.Errorf("Execute(%v) error = %v", cmd, err)
			}
		}(cmd)
	}
	wg.Wait()

	if tr.maxSeen != 1 {
		t.Errorf("%d commands in flight concurrently, want 1", tr.maxSeen)
	}
}

// timeoutTransport records the receive timeout Execute selects per command.
type timeoutTransport struct {
	lastTimeout time.Duration
}

func (tt *timeoutTransport) Send([]byte) error { return nil }

func (tt *timeoutTransport) Receive(cmd protocol.Command, timeout time.Duration) ([]byte, error) {
	tt.lastTimeout = timeout
	return response(cmd, []byte{0x01}), nil
}

func (tt *timeoutTransport) Reconnect(context.Context) error { return nil }
func (tt *timeoutTransport) Addr() string                    { return "test:45000" }

func TestExecuteBroadcastUsesLongerTimeout(t *testing.T) {
	tr := &timeoutTransport{}
	cs := NewCommandSession(tr, 3, time.Millisecond, 2*time.Second, 5*time.Second)

	if _, err := cs.Execute(context.Background(), protocol.CmdReadFirmwareVersion, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if tr.lastTimeout != 2*time.Second {
		t.Errorf("command timeout = %v, want 2s", tr.lastTimeout)
	}

	if _, err := cs.Execute(context.Background(), protocol.CmdBroadcast, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if tr.lastTimeout != 5*time.Second {
		t.Errorf("broadcast timeout = %v, want 5s", tr.lastTimeout)
	}
}

// fakeGateway answers gateway commands over TCP with canned responses.
func fakeGateway(t *testing.T, responses map[protocol.Command][]byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 256)
				for {
					n, err := conn.Read(buf)
					if err != nil || n < 3 {
						return
					}
					if resp, ok := responses[protocol.Command(buf[2])]; ok {
						conn.Write(resp)
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func testConfig() *config.Config {
	return (&config.Config{
		PollInterval:   config.Duration(50 * time.Millisecond),
		CommandTimeout: config.Duration(500 * time.Millisecond),
		RetryWait:      config.Duration(time.Millisecond),
		MaxRetries:     2,
	}).Default()
}

func TestSessionEndToEnd(t *testing.T) {
	// live data: indoor temp 32.0, indoor humidity 38
	livePayload := []byte{0x01, 0x01, 0x40, 0x06, 0x26}
	// one registered WH65 at full signal with ok battery
	sensorPayload := []byte{0x00, 0x00, 0x00, 0x00, 0x5B, 0x00, 0x04}
	addr := fakeGateway(t, map[protocol.Command][]byte{
		protocol.CmdLiveData:            response(protocol.CmdLiveData, livePayload),
		protocol.CmdReadSensorIDNew:     response(protocol.CmdReadSensorIDNew, sensorPayload),
		protocol.CmdReadFirmwareVersion: response(protocol.CmdReadFirmwareVersion, append([]byte{0x0D}, "GW1000_V1.6.8"...)),
	})

	s, err := Open(context.Background(), addr, testConfig(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	select {
	case rec := <-s.Readings():
		if rec["inTemp"] != 32.0 {
			t.Errorf("inTemp = %v, want 32.0", rec["inTemp"])
		}
		if rec["inHumidity"] != 38 {
			t.Errorf("inHumidity = %v, want 38", rec["inHumidity"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reading arrived")
	}

	// cached record is available without waiting for the next cycle
	rec, at := s.Poll()
	if rec == nil || at.IsZero() {
		t.Fatal("Poll() returned no cached record")
	}
	if rec["inTemp"] != 32.0 {
		t.Errorf("cached inTemp = %v, want 32.0", rec["inTemp"])
	}

	// sensor registry was refreshed during the poll cycle
	var found bool
	for _, sn := range s.Sensors() {
		if sn.Name == "wh65" && sn.ID == "0000005b" {
			found = true
		}
	}
	if !found {
		t.Errorf("sensor registry missing wh65: %+v", s.Sensors())
	}
}

func TestSessionRejectsInvalidMapping(t *testing.T) {
	cfg := testConfig()
	cfg.FieldMapExtensions = map[string]string{"inTemp": "no_such_field"}

	if _, err := Open(context.Background(), "127.0.0.1:1", cfg, nil); err == nil {
		t.Fatal("Open() accepted an invalid field mapping")
	}
}

func TestSessionCloseIsPrompt(t *testing.T) {
	addr := fakeGateway(t, map[protocol.Command][]byte{
		protocol.CmdLiveData:        response(protocol.CmdLiveData, []byte{0x01, 0x01, 0x40}),
		protocol.CmdReadSensorIDNew: response(protocol.CmdReadSensorIDNew, nil),
	})

	s, err := Open(context.Background(), addr, testConfig(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return promptly")
	}
	if s.State() != StateDisconnected {
		t.Errorf("state after close = %v, want disconnected", s.State())
	}
}
