package entitlement

import "sync/atomic"

// DevMode is the process-wide developer mode flag. It gates tier overrides
// and can be flipped at runtime (the server re-reads it on SIGHUP), so every
// resolution reads it afresh.
type DevMode struct {
	enabled atomic.Bool
}

// NewDevMode returns a flag with the given initial state.
func NewDevMode(enabled bool) *DevMode {
	d := &DevMode{}
	d.enabled.Store(enabled)
	return d
}

// Enabled reports the current state. A nil flag is off.
func (d *DevMode) Enabled() bool {
	return d != nil && d.enabled.Load()
}

// Set changes the state and reports whether it changed.
func (d *DevMode) Set(enabled bool) bool {
	return d.enabled.Swap(enabled) != enabled
}
