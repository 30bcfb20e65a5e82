package types

import "math/big"

// Account holds the underlying staked-asset balance for a protocol
// participant. Vault accounts, owner accounts and the treasury all share this
// shape; liability accounting lives in the vault record, not here.
type Account struct {
	Balance *big.Int `json:"balance"`
	// LiabilityTokens is the participant's holding of the protocol liability
	// token, credited on mint and debited on burn.
	LiabilityTokens *big.Int `json:"liabilityTokens"`
}

// Ensure normalises nil balances to zero so arithmetic never trips on a
// freshly decoded account.
func (a *Account) Ensure() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0), LiabilityTokens: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	if a.LiabilityTokens == nil {
		a.LiabilityTokens = big.NewInt(0)
	}
	return a
}
