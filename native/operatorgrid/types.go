package operatorgrid

import (
	"math/big"

	"stakehub/crypto"
)

// DefaultTierID identifies the group-less default tier every vault starts in.
const DefaultTierID uint64 = 0

// TierParams carries the limit and fee surface applied to vaults occupying a
// tier. All ratios are expressed in basis points.
type TierParams struct {
	ShareLimit                  *big.Int
	ReserveRatioBps             uint64
	ForcedRebalanceThresholdBps uint64
	InfraFeeBps                 uint64
	LiquidityFeeBps             uint64
	ReservationFeeBps           uint64
}

// Tier is a liability ceiling owned by a single node operator. A vault
// belongs to exactly one tier at a time; the default tier (id 0) has no
// owning operator and never contributes to a group's load.
type Tier struct {
	ID                          uint64
	Operator                    crypto.Address
	ShareLimit                  *big.Int
	LiabilityShares             *big.Int
	ReserveRatioBps             uint64
	ForcedRebalanceThresholdBps uint64
	InfraFeeBps                 uint64
	LiquidityFeeBps             uint64
	ReservationFeeBps           uint64
}

// Params returns the tier's limit and fee surface as a TierParams value.
func (t *Tier) Params() TierParams {
	if t == nil {
		return TierParams{}
	}
	params := TierParams{
		ReserveRatioBps:             t.ReserveRatioBps,
		ForcedRebalanceThresholdBps: t.ForcedRebalanceThresholdBps,
		InfraFeeBps:                 t.InfraFeeBps,
		LiquidityFeeBps:             t.LiquidityFeeBps,
		ReservationFeeBps:           t.ReservationFeeBps,
	}
	if t.ShareLimit != nil {
		params.ShareLimit = new(big.Int).Set(t.ShareLimit)
	}
	return params
}

// Group is the operator-level ceiling spanning every non-default tier the
// operator owns. Its liability load always equals the sum of those tiers'
// loads.
type Group struct {
	Operator        crypto.Address
	ShareLimit      *big.Int
	LiabilityShares *big.Int
	TierIDs         []uint64
}
