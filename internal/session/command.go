// Package session layers command execution and periodic polling on top of
// a device transport. CommandSession absorbs the unreliability of consumer
// Wi-Fi (checksum failures, timeouts, dropped connections) so the parser
// only ever sees validated frames; Session runs the background poll loop
// and hands decoded readings to the host.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lanweather/gwclient/internal/log"
	"github.com/lanweather/gwclient/internal/protocol"
	"github.com/lanweather/gwclient/internal/transport"
)

var (
	// ErrCommandFailed means the attempt budget for one command was
	// exhausted; it wraps the last underlying cause.
	ErrCommandFailed = errors.New("command failed")
	// ErrDeviceUnreachable means repeated connection-level failures; the
	// caller should back off and rediscover rather than keep hammering.
	ErrDeviceUnreachable = errors.New("device unreachable")
)

// Transport is the connection surface CommandSession borrows. It never
// closes the transport; ownership stays with the Session.
type Transport interface {
	Send(frame []byte) error
	Receive(issued protocol.Command, timeout time.Duration) ([]byte, error)
	Reconnect(ctx context.Context) error
	Addr() string
}

// CommandSession issues commands with bounded retries. Within one device
// session commands are strictly ordered: one in flight at a time, each
// response consumed before the next send. The mutex enforces that ordering
// across callers; the poll loop, the firmware monitor and the host all
// share one CommandSession per device.
type CommandSession struct {
	mu               sync.Mutex
	tr               Transport
	maxTries         int
	retryWait        time.Duration
	timeout          time.Duration
	broadcastTimeout time.Duration
	state            *stateVar
}

func NewCommandSession(tr Transport, maxTries int, retryWait, timeout, broadcastTimeout time.Duration) *CommandSession {
	if maxTries <= 0 {
		maxTries = 3
	}
	if broadcastTimeout <= 0 {
		broadcastTimeout = transport.DefaultBroadcastTimeout
	}
	return &CommandSession{
		tr:               tr,
		maxTries:         maxTries,
		retryWait:        retryWait,
		timeout:          timeout,
		broadcastTimeout: broadcastTimeout,
		state:            &stateVar{},
	}
}

// setTransport swaps the underlying connection, waiting for any in-flight
// command to finish first.
func (s *CommandSession) setTransport(tr Transport) {
	s.mu.Lock()
	s.tr = tr
	s.mu.Unlock()
}

// newRetryBackoff builds the inter-attempt delay schedule: exponential
// growth from the configured wait, capped so a short attempt budget does
// not balloon.
func (s *CommandSession) newRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryWait
	b.MaxInterval = 4 * s.retryWait
	b.MaxElapsedTime = 0
	return b
}

// Execute sends cmd and returns the validated response payload. Checksum
// mismatches and timeouts are retried up to the attempt budget with backoff
// between attempts; a connection error triggers one reconnect before the
// remaining budget is spent. Exhaustion returns ErrCommandFailed wrapping
// the last cause. Concurrent callers are serialized: the next command is
// not sent until the previous exchange, retries included, has finished.
func (s *CommandSession) Execute(ctx context.Context, cmd protocol.Command, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := protocol.Encode(cmd, payload)
	delay := s.newRetryBackoff()
	reconnected := false

	var lastErr error
	for attempt := 1; attempt <= s.maxTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.attempt(cmd, frame)
		if err == nil {
			s.state.set(StateReady)
			return result, nil
		}
		lastErr = err
		log.Debugf("%v attempt %d/%d against %s failed: %v", cmd, attempt, s.maxTries, s.tr.Addr(), err)

		if errors.Is(err, transport.ErrConnection) && !reconnected {
			reconnected = true
			if rerr := s.tr.Reconnect(ctx); rerr != nil {
				s.state.set(StateDisconnected)
				return nil, fmt.Errorf("%w: %v: reconnect also failed: %v", ErrDeviceUnreachable, err, rerr)
			}
			// reconnected; retry immediately without burning the delay
			continue
		}

		if attempt < s.maxTries {
			if !sleepCtx(ctx, delay.NextBackOff()) {
				return nil, ctx.Err()
			}
		}
	}

	s.state.set(StateDisconnected)
	if errors.Is(lastErr, transport.ErrConnection) {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, lastErr)
	}
	return nil, fmt.Errorf("%w: %v after %d attempts: %v", ErrCommandFailed, cmd, s.maxTries, lastErr)
}

// attempt performs one send/receive/validate cycle. Broadcast exchanges
// wait longer: every device on the segment may answer, and slow ones do.
func (s *CommandSession) attempt(cmd protocol.Command, frame []byte) ([]byte, error) {
	timeout := s.timeout
	if cmd == protocol.CmdBroadcast {
		timeout = s.broadcastTimeout
	}
	s.state.set(StateSending)
	if err := s.tr.Send(frame); err != nil {
		return nil, err
	}
	s.state.set(StateAwaitingResponse)
	raw, err := s.tr.Receive(cmd, timeout)
	if err != nil {
		return nil, err
	}
	decoded, err := protocol.Decode(raw, cmd)
	if err != nil {
		return nil, err
	}
	return decoded.Payload, nil
}

// State reports the current point in the session state machine.
func (s *CommandSession) State() State {
	return s.state.get()
}

// sleepCtx waits for d or until ctx is canceled; it reports whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
