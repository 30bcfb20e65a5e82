package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"stakehub/core/types"
	"stakehub/crypto"
)

const (
	// TypeOracleRootPublished is emitted when the consensus identity commits
	// a new report root.
	TypeOracleRootPublished = "oracle.rootPublished"
	// TypeOracleQuarantineOpened captures an unexplained valuation jump held
	// back from a vault's accounted value.
	TypeOracleQuarantineOpened = "oracle.quarantineOpened"
	// TypeOracleQuarantineReleased captures quarantined value folded into the
	// vault's accounted value after the cooldown.
	TypeOracleQuarantineReleased = "oracle.quarantineReleased"
)

// OracleRootPublished captures a newly committed report root.
type OracleRootPublished struct {
	Root      [32]byte
	CID       string
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (OracleRootPublished) EventType() string { return TypeOracleRootPublished }

// Event converts the structured payload into a broadcastable event.
func (e OracleRootPublished) Event() *types.Event {
	return &types.Event{Type: TypeOracleRootPublished, Attributes: map[string]string{
		"root":      hex.EncodeToString(e.Root[:]),
		"cid":       e.CID,
		"timestamp": strconv.FormatUint(e.Timestamp, 10),
	}}
}

// OracleQuarantineOpened captures the excess valuation held in quarantine.
type OracleQuarantineOpened struct {
	Vault     crypto.Address
	Excess    *big.Int
	StartedAt uint64
}

// EventType satisfies the Event interface.
func (OracleQuarantineOpened) EventType() string { return TypeOracleQuarantineOpened }

// Event converts the structured payload into a broadcastable event.
func (e OracleQuarantineOpened) Event() *types.Event {
	return &types.Event{Type: TypeOracleQuarantineOpened, Attributes: map[string]string{
		"vault":     addressString(e.Vault),
		"excess":    formatAmount(e.Excess),
		"startedAt": strconv.FormatUint(e.StartedAt, 10),
	}}
}

// OracleQuarantineReleased captures quarantined value credited to the vault.
type OracleQuarantineReleased struct {
	Vault    crypto.Address
	Released *big.Int
}

// EventType satisfies the Event interface.
func (OracleQuarantineReleased) EventType() string { return TypeOracleQuarantineReleased }

// Event converts the structured payload into a broadcastable event.
func (e OracleQuarantineReleased) Event() *types.Event {
	return &types.Event{Type: TypeOracleQuarantineReleased, Attributes: map[string]string{
		"vault":    addressString(e.Vault),
		"released": formatAmount(e.Released),
	}}
}
