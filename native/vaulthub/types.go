package vaulthub

import (
	"math/big"

	"stakehub/crypto"
)

// Connection captures the terms under which a vault participates in the
// registry. It is created on connect and mutated only by grid-authorized
// limit updates until the disconnect flag is set.
type Connection struct {
	// Vault is the collateral-holding account this connection governs.
	Vault crypto.Address
	// Owner is the actor allowed to fund, withdraw, mint and burn.
	Owner crypto.Address
	// NodeOperator runs the validators backing the vault's collateral.
	NodeOperator crypto.Address
	// ShareLimit caps the liability shares this vault may have outstanding.
	ShareLimit *big.Int
	// ReserveRatioBps is the minimum unencumbered fraction of the vault's
	// value, in basis points.
	ReserveRatioBps uint64
	// ForcedRebalanceThresholdBps marks the reserve shortfall at which
	// anyone may trigger a rebalance, in basis points.
	ForcedRebalanceThresholdBps uint64
	// InfraFeeBps, LiquidityFeeBps and ReservationFeeBps are the protocol
	// fee rates applied to the vault.
	InfraFeeBps       uint64
	LiquidityFeeBps   uint64
	ReservationFeeBps uint64
	// PendingDisconnect flags a vault on its way out; liability increases
	// are refused while set.
	PendingDisconnect bool
}

// Report is the last oracle valuation applied to a vault.
type Report struct {
	TotalValue *big.Int
	InOutDelta *big.Int
	Timestamp  uint64
}

// VaultRecord is the authoritative accounting record for a connected vault.
// LiabilityShares is mutated exclusively by the registry's mint and burn
// paths.
type VaultRecord struct {
	Vault           crypto.Address
	LiabilityShares *big.Int
	// InOutDelta is the cumulative net funding delta: deposits minus
	// withdrawals since connection, signed.
	InOutDelta     *big.Int
	Report         Report
	CumulativeFees *big.Int
}

// ConnectionLimits bundles the per-vault parameters supplied on connect.
type ConnectionLimits struct {
	ShareLimit                  *big.Int
	ReserveRatioBps             uint64
	ForcedRebalanceThresholdBps uint64
	InfraFeeBps                 uint64
	LiquidityFeeBps             uint64
	ReservationFeeBps           uint64
}

// VaultSnapshot pairs a connection with its record for the read API.
type VaultSnapshot struct {
	Connection Connection
	Record     VaultRecord
}
