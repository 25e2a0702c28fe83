package parser

import "github.com/lanweather/gwclient/internal/log"

// Preference order for the cumulative counter used to derive per-cycle
// rainfall. The largest-period counter available is the least likely to
// reset between polls.
var rainSourcePreference = []string{
	"t_raintotals", "t_rainyear", "t_rainmonth", "t_rainday",
	"p_rainyear", "p_rainmonth", "p_rainday",
}

// Accumulator derives per-cycle deltas ("rain", "lightning_strike_count")
// from the cumulative counters the gateway reports. It is confined to the
// polling goroutine and needs no locking.
type Accumulator struct {
	rainSource  string
	lastRain    float64
	haveRain    bool
	lastStrikes int
	haveStrikes bool
}

// Update derives delta fields from reading's cumulative counters and adds
// them to the reading. The first cycle after startup or a counter reset
// establishes a baseline and emits no delta.
func (a *Accumulator) Update(reading Reading) {
	a.updateRain(reading)
	a.updateLightning(reading)
}

func (a *Accumulator) updateRain(reading Reading) {
	if a.rainSource == "" {
		for _, name := range rainSourcePreference {
			if _, ok := reading[name]; ok {
				a.rainSource = name
				log.Infof("using '%s' for rain total", name)
				break
			}
		}
		if a.rainSource == "" {
			return
		}
	}
	total, ok := reading[a.rainSource].(float64)
	if !ok {
		return
	}
	if !a.haveRain {
		a.lastRain = total
		a.haveRain = true
		return
	}
	if total < a.lastRain {
		log.Infof("rain counter reset detected: new total %.1f, last total %.1f", total, a.lastRain)
		reading["rain"] = total
	} else {
		reading["rain"] = total - a.lastRain
	}
	a.lastRain = total
}

func (a *Accumulator) updateLightning(reading Reading) {
	count, ok := reading["lightningcount"].(int)
	if !ok {
		return
	}
	if !a.haveStrikes {
		a.lastStrikes = count
		a.haveStrikes = true
		return
	}
	if count < a.lastStrikes {
		log.Infof("lightning counter reset detected: new count %d, last count %d", count, a.lastStrikes)
		reading["lightning_strike_count"] = count
	} else {
		reading["lightning_strike_count"] = count - a.lastStrikes
	}
	a.lastStrikes = count
}
