// Package firmware periodically reads the device firmware version and
// compares it against the newest version the operator knows of. The check
// runs on its own cadence and never blocks or fails the live-data poll.
package firmware

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lanweather/gwclient/internal/log"
	"github.com/lanweather/gwclient/internal/parser"
	"github.com/lanweather/gwclient/internal/protocol"
)

// Executor issues one gateway command and returns its validated payload.
type Executor interface {
	Execute(ctx context.Context, cmd protocol.Command, payload []byte) ([]byte, error)
}

// Status is the outcome of one firmware check.
type Status struct {
	Current         string
	Latest          string
	UpdateAvailable bool
	CheckedAt       time.Time
}

// Monitor owns the firmware check loop for one device.
type Monitor struct {
	exec     Executor
	interval time.Duration
	latest   string

	mu   sync.Mutex
	last *Status
}

func NewMonitor(exec Executor, interval time.Duration, latest string) *Monitor {
	return &Monitor{exec: exec, interval: interval, latest: latest}
}

// Check reads the device's firmware version once.
func (m *Monitor) Check(ctx context.Context) (*Status, error) {
	payload, err := m.exec.Execute(ctx, protocol.CmdReadFirmwareVersion, nil)
	if err != nil {
		return nil, err
	}
	current, err := parser.ParseFirmwareVersion(payload)
	if err != nil {
		return nil, err
	}

	s := &Status{
		Current:   current,
		Latest:    m.latest,
		CheckedAt: time.Now(),
	}
	if m.latest != "" {
		s.UpdateAvailable = versionLess(current, m.latest)
	}

	m.mu.Lock()
	m.last = s
	m.mu.Unlock()
	return s, nil
}

// Last returns the most recent check result, or nil before the first
// successful check.
func (m *Monitor) Last() *Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil
	}
	s := *m.last
	return &s
}

// Run checks on the configured interval until ctx is canceled. Failures
// are logged and retried next interval.
func (m *Monitor) Run(ctx context.Context) {
	// one check up front so a fresh session learns its version promptly
	m.checkAndLog(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAndLog(ctx)
		}
	}
}

func (m *Monitor) checkAndLog(ctx context.Context) {
	s, err := m.Check(ctx)
	if err != nil {
		log.Warnf("firmware check failed: %v", err)
		return
	}
	if s.UpdateAvailable {
		log.Infof("firmware update available: device runs %s, latest is %s", s.Current, s.Latest)
	} else {
		log.Debugf("firmware %s is current", s.Current)
	}
}

// numericVersion strips the model prefix from a version string like
// "GW1000_V1.6.8" and splits the dotted remainder into integers.
func numericVersion(v string) []int {
	if i := strings.LastIndex(v, "V"); i >= 0 {
		v = v[i+1:]
	}
	parts := strings.Split(v, ".")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil
		}
		nums = append(nums, n)
	}
	return nums
}

// versionLess reports whether firmware version a predates b. Strings that
// do not parse compare by inequality, so an unparseable but different
// version still flags an update.
func versionLess(a, b string) bool {
	av, bv := numericVersion(a), numericVersion(b)
	if av == nil || bv == nil {
		return a != b
	}
	for i := 0; i < len(av) && i < len(bv); i++ {
		if av[i] != bv[i] {
			return av[i] < bv[i]
		}
	}
	return len(av) < len(bv)
}
