package common

import "errors"

// ErrModulePaused is returned when a ledger module has been halted by
// governance intervention.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is currently halted. The hub wires
// a single view shared by every engine.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutations against a paused module. A nil view disables the
// check entirely.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
