// Package probe abstracts the radio RSSI reading used by the AODV engine
// when populating a DATA packet's hop metric at the destination (spec.md
// §2 item 10, §4.2 "DATA receive").
//
// Reading RSSI off a real radio is an operating-system concern external to
// this module (spec.md §1 "the operating-system probe that reads radio
// RSSI" is named out of scope); Prober is the seam a platform-specific
// driver plugs into, the way aznet.go and netmonitor_darwin.go read
// interface-level signal stats for their respective radios.
package probe

// Prober reads the current received signal strength in dBm. A false second
// return means the reading is unknown (no attached radio, or the platform
// has no RSSI source), and callers fall back to a caller-supplied default.
type Prober interface {
	RSSI() (dbm float64, ok bool)
}

// SyntheticConfig configures a Synthetic prober.
type SyntheticConfig struct {
	// BaseRSSI is the RSSI reported for a near-zero delay sample. Default:
	// −40 dBm.
	BaseRSSI float64

	// FalloffPerMs is how many dB the reported RSSI drops per millisecond
	// of measured delay. Default: 0.4 dB/ms.
	FalloffPerMs float64

	// FloorRSSI bounds the weakest RSSI this prober will report. Default:
	// −100 dBm.
	FloorRSSI float64
}

func (c *SyntheticConfig) applyDefaults() {
	if c.BaseRSSI == 0 {
		c.BaseRSSI = -40
	}
	if c.FalloffPerMs == 0 {
		c.FalloffPerMs = 0.4
	}
	if c.FloorRSSI == 0 {
		c.FloorRSSI = -100
	}
}

// Synthetic derives a plausible RSSI from measured packet delay, for nodes
// with no attached radio driver (e.g. a pure-UDP or pure-MQTT bridge node
// in tests or simulation). Longer delay is treated as a proxy for a
// weaker, more congested link.
type Synthetic struct {
	cfg SyntheticConfig
}

// NewSynthetic creates a Synthetic prober with the given configuration.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	cfg.applyDefaults()
	return &Synthetic{cfg: cfg}
}

// Sample reports a synthetic RSSI for an observed delay in milliseconds.
// Always succeeds (ok is always true): this is a deterministic function of
// delayMs, not a real measurement that can be absent.
func (s *Synthetic) Sample(delayMs float64) (dbm float64, ok bool) {
	if delayMs < 0 {
		delayMs = 0
	}
	v := s.cfg.BaseRSSI - s.cfg.FalloffPerMs*delayMs
	if v < s.cfg.FloorRSSI {
		v = s.cfg.FloorRSSI
	}
	return v, true
}

// RSSI implements Prober using no delay information; it reports the
// configured BaseRSSI. Most callers should use Sample directly with a
// measured delay instead.
func (s *Synthetic) RSSI() (float64, bool) {
	return s.cfg.BaseRSSI, true
}

// Unavailable is a Prober that never has a reading, for nodes with no
// radio and no delay-based approximation desired.
type Unavailable struct{}

// RSSI always reports unknown.
func (Unavailable) RSSI() (float64, bool) { return 0, false }
