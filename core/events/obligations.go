package events

import (
	"math/big"

	"stakehub/core/types"
	"stakehub/crypto"
)

const (
	// TypeObligationAccrued is emitted when a withdrawal or fee claim is
	// recorded against a vault.
	TypeObligationAccrued = "obligations.accrued"
	// TypeObligationSettled is emitted when claims are paid from a vault's
	// available balance.
	TypeObligationSettled = "obligations.settled"
)

// ObligationAccrued captures a claim recorded against a vault.
type ObligationAccrued struct {
	Vault crypto.Address
	Kind  string
	Value *big.Int
	Total *big.Int
}

// EventType satisfies the Event interface.
func (ObligationAccrued) EventType() string { return TypeObligationAccrued }

// Event converts the structured payload into a broadcastable event.
func (e ObligationAccrued) Event() *types.Event {
	return &types.Event{Type: TypeObligationAccrued, Attributes: map[string]string{
		"vault": addressString(e.Vault),
		"kind":  e.Kind,
		"value": formatAmount(e.Value),
		"total": formatAmount(e.Total),
	}}
}

// ObligationSettled captures amounts paid toward outstanding claims.
type ObligationSettled struct {
	Vault           crypto.Address
	WithdrawalsPaid *big.Int
	FeesPaid        *big.Int
}

// EventType satisfies the Event interface.
func (ObligationSettled) EventType() string { return TypeObligationSettled }

// Event converts the structured payload into a broadcastable event.
func (e ObligationSettled) Event() *types.Event {
	return &types.Event{Type: TypeObligationSettled, Attributes: map[string]string{
		"vault":           addressString(e.Vault),
		"withdrawalsPaid": formatAmount(e.WithdrawalsPaid),
		"feesPaid":        formatAmount(e.FeesPaid),
	}}
}
