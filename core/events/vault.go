package events

import (
	"math/big"
	"strconv"

	"stakehub/core/types"
	"stakehub/crypto"
)

const (
	// TypeVaultConnected is emitted when a vault joins the registry.
	TypeVaultConnected = "vault.connected"
	// TypeVaultDisconnected is emitted when a vault is flagged for disconnect.
	TypeVaultDisconnected = "vault.disconnected"
	// TypeVaultFunded captures collateral deposits into a vault.
	TypeVaultFunded = "vault.funded"
	// TypeVaultWithdrawn captures collateral withdrawals from a vault.
	TypeVaultWithdrawn = "vault.withdrawn"
	// TypeVaultMinted captures liability share issuance against a vault.
	TypeVaultMinted = "vault.minted"
	// TypeVaultBurned captures liability share retirement.
	TypeVaultBurned = "vault.burned"
	// TypeVaultRebalanced captures voluntary and forced rebalances.
	TypeVaultRebalanced = "vault.rebalanced"
	// TypeVaultReportApplied is emitted when an oracle report lands on a vault.
	TypeVaultReportApplied = "vault.reportApplied"
)

// VaultConnected captures the connection parameters granted to a new vault.
type VaultConnected struct {
	Vault        crypto.Address
	Owner        crypto.Address
	NodeOperator crypto.Address
	ShareLimit   *big.Int
	ReserveRatio uint64
}

// EventType satisfies the Event interface.
func (VaultConnected) EventType() string { return TypeVaultConnected }

// Event converts the structured payload into a broadcastable event.
func (e VaultConnected) Event() *types.Event {
	return &types.Event{Type: TypeVaultConnected, Attributes: map[string]string{
		"vault":        addressString(e.Vault),
		"owner":        addressString(e.Owner),
		"nodeOperator": addressString(e.NodeOperator),
		"shareLimit":   formatAmount(e.ShareLimit),
		"reserveRatio": strconv.FormatUint(e.ReserveRatio, 10),
	}}
}

// VaultDisconnected marks a vault entering the pending-disconnect state.
type VaultDisconnected struct {
	Vault crypto.Address
}

// EventType satisfies the Event interface.
func (VaultDisconnected) EventType() string { return TypeVaultDisconnected }

// Event converts the structured payload into a broadcastable event.
func (e VaultDisconnected) Event() *types.Event {
	return &types.Event{Type: TypeVaultDisconnected, Attributes: map[string]string{
		"vault": addressString(e.Vault),
	}}
}

// VaultFunded captures a collateral deposit and the resulting funding delta.
type VaultFunded struct {
	Vault      crypto.Address
	Amount     *big.Int
	InOutDelta *big.Int
}

// EventType satisfies the Event interface.
func (VaultFunded) EventType() string { return TypeVaultFunded }

// Event converts the structured payload into a broadcastable event.
func (e VaultFunded) Event() *types.Event {
	return &types.Event{Type: TypeVaultFunded, Attributes: map[string]string{
		"vault":      addressString(e.Vault),
		"amount":     formatAmount(e.Amount),
		"inOutDelta": formatAmount(e.InOutDelta),
	}}
}

// VaultWithdrawn captures a collateral withdrawal to a recipient.
type VaultWithdrawn struct {
	Vault      crypto.Address
	Recipient  crypto.Address
	Amount     *big.Int
	InOutDelta *big.Int
}

// EventType satisfies the Event interface.
func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdrawn, Attributes: map[string]string{
		"vault":      addressString(e.Vault),
		"recipient":  addressString(e.Recipient),
		"amount":     formatAmount(e.Amount),
		"inOutDelta": formatAmount(e.InOutDelta),
	}}
}

// VaultMinted captures liability shares issued and the new outstanding total.
type VaultMinted struct {
	Vault           crypto.Address
	Recipient       crypto.Address
	Shares          *big.Int
	LiabilityShares *big.Int
}

// EventType satisfies the Event interface.
func (VaultMinted) EventType() string { return TypeVaultMinted }

// Event converts the structured payload into a broadcastable event.
func (e VaultMinted) Event() *types.Event {
	return &types.Event{Type: TypeVaultMinted, Attributes: map[string]string{
		"vault":           addressString(e.Vault),
		"recipient":       addressString(e.Recipient),
		"shares":          formatAmount(e.Shares),
		"liabilityShares": formatAmount(e.LiabilityShares),
	}}
}

// VaultBurned captures liability shares retired and the new outstanding total.
type VaultBurned struct {
	Vault           crypto.Address
	Shares          *big.Int
	LiabilityShares *big.Int
}

// EventType satisfies the Event interface.
func (VaultBurned) EventType() string { return TypeVaultBurned }

// Event converts the structured payload into a broadcastable event.
func (e VaultBurned) Event() *types.Event {
	return &types.Event{Type: TypeVaultBurned, Attributes: map[string]string{
		"vault":           addressString(e.Vault),
		"shares":          formatAmount(e.Shares),
		"liabilityShares": formatAmount(e.LiabilityShares),
	}}
}

// VaultRebalanced captures value moved back to the protocol and shares burned
// in exchange.
type VaultRebalanced struct {
	Vault        crypto.Address
	Amount       *big.Int
	SharesBurned *big.Int
	Forced       bool
}

// EventType satisfies the Event interface.
func (VaultRebalanced) EventType() string { return TypeVaultRebalanced }

// Event converts the structured payload into a broadcastable event.
func (e VaultRebalanced) Event() *types.Event {
	attrs := map[string]string{
		"vault":        addressString(e.Vault),
		"amount":       formatAmount(e.Amount),
		"sharesBurned": formatAmount(e.SharesBurned),
	}
	if e.Forced {
		attrs["forced"] = "true"
	}
	return &types.Event{Type: TypeVaultRebalanced, Attributes: attrs}
}

// VaultReportApplied captures the smoothed valuation landed on a vault record.
type VaultReportApplied struct {
	Vault           crypto.Address
	Timestamp       uint64
	TotalValue      *big.Int
	InOutDelta      *big.Int
	CumulativeFees  *big.Int
	WithdrawalsPaid *big.Int
	FeesPaid        *big.Int
}

// EventType satisfies the Event interface.
func (VaultReportApplied) EventType() string { return TypeVaultReportApplied }

// Event converts the structured payload into a broadcastable event.
func (e VaultReportApplied) Event() *types.Event {
	attrs := map[string]string{
		"vault":          addressString(e.Vault),
		"timestamp":      strconv.FormatUint(e.Timestamp, 10),
		"totalValue":     formatAmount(e.TotalValue),
		"inOutDelta":     formatAmount(e.InOutDelta),
		"cumulativeFees": formatAmount(e.CumulativeFees),
	}
	if e.WithdrawalsPaid != nil && e.WithdrawalsPaid.Sign() > 0 {
		attrs["withdrawalsPaid"] = formatAmount(e.WithdrawalsPaid)
	}
	if e.FeesPaid != nil && e.FeesPaid.Sign() > 0 {
		attrs["feesPaid"] = formatAmount(e.FeesPaid)
	}
	return &types.Event{Type: TypeVaultReportApplied, Attributes: attrs}
}
