package session

import "sync/atomic"

// State tracks where a device session sits in its connect/command cycle.
// Transitions: Disconnected -> Connecting -> Ready -> (Sending ->
// AwaitingResponse -> Ready)* -> Disconnected. AwaitingResponse re-enters
// itself on a retryable failure within the attempt budget and falls back to
// Disconnected on exhaustion; the poll loop decides whether to reconnect.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateSending
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting response"
	default:
		return "unknown"
	}
}

type stateVar struct {
	v atomic.Int32
}

func (s *stateVar) set(st State) { s.v.Store(int32(st)) }
func (s *stateVar) get() State   { return State(s.v.Load()) }
