package events

import (
	"encoding/hex"
	"strconv"

	"stakehub/core/types"
	"stakehub/crypto"
)

const (
	// TypeConfirmationCast is emitted when a capability signs off on a
	// guarded operation.
	TypeConfirmationCast = "confirm.cast"
	// TypeConfirmationComplete is emitted once every required capability has
	// signed within the validity window.
	TypeConfirmationComplete = "confirm.complete"
)

// ConfirmationCast captures a single capability sign-off.
type ConfirmationCast struct {
	Fingerprint [32]byte
	Caller      crypto.Address
	Capability  string
	Tally       int
	Required    int
}

// EventType satisfies the Event interface.
func (ConfirmationCast) EventType() string { return TypeConfirmationCast }

// Event converts the structured payload into a broadcastable event.
func (e ConfirmationCast) Event() *types.Event {
	return &types.Event{Type: TypeConfirmationCast, Attributes: map[string]string{
		"fingerprint": hex.EncodeToString(e.Fingerprint[:]),
		"caller":      addressString(e.Caller),
		"capability":  e.Capability,
		"tally":       strconv.Itoa(e.Tally),
		"required":    strconv.Itoa(e.Required),
	}}
}

// ConfirmationComplete captures a fully confirmed operation fingerprint.
type ConfirmationComplete struct {
	Fingerprint [32]byte
}

// EventType satisfies the Event interface.
func (ConfirmationComplete) EventType() string { return TypeConfirmationComplete }

// Event converts the structured payload into a broadcastable event.
func (e ConfirmationComplete) Event() *types.Event {
	return &types.Event{Type: TypeConfirmationComplete, Attributes: map[string]string{
		"fingerprint": hex.EncodeToString(e.Fingerprint[:]),
	}}
}
