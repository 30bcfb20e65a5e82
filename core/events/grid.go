package events

import (
	"math/big"
	"strconv"

	"stakehub/core/types"
	"stakehub/crypto"
)

const (
	// TypeGridGroupRegistered is emitted when an operator group is created.
	TypeGridGroupRegistered = "grid.groupRegistered"
	// TypeGridTierRegistered is emitted for each tier added to a group.
	TypeGridTierRegistered = "grid.tierRegistered"
	// TypeGridTierUpdated is emitted when tier parameters are altered.
	TypeGridTierUpdated = "grid.tierUpdated"
	// TypeGridTierChanged is emitted when a vault moves between tiers.
	TypeGridTierChanged = "grid.tierChanged"
)

// GridGroupRegistered captures a newly registered operator group.
type GridGroupRegistered struct {
	Operator   crypto.Address
	ShareLimit *big.Int
}

// EventType satisfies the Event interface.
func (GridGroupRegistered) EventType() string { return TypeGridGroupRegistered }

// Event converts the structured payload into a broadcastable event.
func (e GridGroupRegistered) Event() *types.Event {
	return &types.Event{Type: TypeGridGroupRegistered, Attributes: map[string]string{
		"operator":   addressString(e.Operator),
		"shareLimit": formatAmount(e.ShareLimit),
	}}
}

// GridTierRegistered captures a tier added under an operator group.
type GridTierRegistered struct {
	TierID     uint64
	Operator   crypto.Address
	ShareLimit *big.Int
}

// EventType satisfies the Event interface.
func (GridTierRegistered) EventType() string { return TypeGridTierRegistered }

// Event converts the structured payload into a broadcastable event.
func (e GridTierRegistered) Event() *types.Event {
	return &types.Event{Type: TypeGridTierRegistered, Attributes: map[string]string{
		"tierId":     strconv.FormatUint(e.TierID, 10),
		"operator":   addressString(e.Operator),
		"shareLimit": formatAmount(e.ShareLimit),
	}}
}

// GridTierUpdated captures altered tier parameters.
type GridTierUpdated struct {
	TierID     uint64
	ShareLimit *big.Int
}

// EventType satisfies the Event interface.
func (GridTierUpdated) EventType() string { return TypeGridTierUpdated }

// Event converts the structured payload into a broadcastable event.
func (e GridTierUpdated) Event() *types.Event {
	return &types.Event{Type: TypeGridTierUpdated, Attributes: map[string]string{
		"tierId":     strconv.FormatUint(e.TierID, 10),
		"shareLimit": formatAmount(e.ShareLimit),
	}}
}

// GridTierChanged captures a vault's move to a new tier.
type GridTierChanged struct {
	Vault           crypto.Address
	FromTier        uint64
	ToTier          uint64
	RequestedLimit  *big.Int
	LiabilityShares *big.Int
}

// EventType satisfies the Event interface.
func (GridTierChanged) EventType() string { return TypeGridTierChanged }

// Event converts the structured payload into a broadcastable event.
func (e GridTierChanged) Event() *types.Event {
	return &types.Event{Type: TypeGridTierChanged, Attributes: map[string]string{
		"vault":           addressString(e.Vault),
		"fromTier":        strconv.FormatUint(e.FromTier, 10),
		"toTier":          strconv.FormatUint(e.ToTier, 10),
		"requestedLimit":  formatAmount(e.RequestedLimit),
		"liabilityShares": formatAmount(e.LiabilityShares),
	}}
}
