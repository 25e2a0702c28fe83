package sensors

import (
	"sort"
	"sync"
)

// Registry holds the last known state per sensor slot. The polling
// goroutine is the sole writer; consumers read consistent copies via
// Snapshot.
type Registry struct {
	mu      sync.RWMutex
	sensors map[byte]Sensor
}

func NewRegistry() *Registry {
	return &Registry{sensors: make(map[byte]Sensor)}
}

// Update replaces the stored records with the given set, one slot at a
// time. A slot whose ID changed is a sensor replacement, not an update: the
// old record is discarded wholesale.
func (r *Registry) Update(sensors []Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sensors {
		r.sensors[s.Index] = s
	}
}

// Snapshot returns a copy of every known slot ordered by index.
func (r *Registry) Snapshot() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Registered returns the snapshot filtered to slots with a physical sensor.
func (r *Registry) Registered() []Sensor {
	all := r.Snapshot()
	out := all[:0]
	for _, s := range all {
		if s.Registered() {
			out = append(out, s)
		}
	}
	return out
}

// Fields contributes per-sensor battery and signal fields to a reading map,
// named "<sensor>_batt" and "<sensor>_sig". Slots without a registered
// sensor contribute nothing.
func (r *Registry) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	for _, s := range r.Registered() {
		fields[s.Name+"_sig"] = s.Signal
		switch s.Battery.Kind {
		case BatteryBinary:
			v := 0
			if s.Battery.Low {
				v = 1
			}
			fields[s.Name+"_batt"] = v
		case BatteryLevel:
			fields[s.Name+"_batt"] = s.Battery.Level
		case BatteryVoltage:
			fields[s.Name+"_batt"] = s.Battery.Voltage
		}
	}
	return fields
}

// FieldNames is the set of battery and signal field names the registry can
// contribute, used by the field mapper to validate user mappings.
func FieldNames() map[string]struct{} {
	names := make(map[string]struct{}, 2*len(sensorFamilies))
	for _, fam := range sensorFamilies {
		names[fam.name+"_batt"] = struct{}{}
		names[fam.name+"_sig"] = struct{}{}
	}
	return names
}
