package obligations

import (
	"errors"
	"math/big"

	"stakehub/core/events"
	"stakehub/core/types"
	"stakehub/crypto"
)

var (
	errStateNotConfigured = errors.New("obligations ledger: state not configured")
	errInvalidValue       = errors.New("obligations ledger: value must be positive")
	errExceedsLiability   = errors.New("obligations ledger: withdrawal claim exceeds vault liability value")
)

const (
	// KindWithdrawals labels withdrawal claims in accrual events.
	KindWithdrawals = "withdrawals"
	// KindTreasuryFees labels treasury fee claims in accrual events.
	KindTreasuryFees = "treasuryFees"
)

// Obligations tracks the outstanding withdrawal and treasury-fee claims
// recorded against a single vault. Accrued counters only grow; settled
// counters chase them as funds arrive.
type Obligations struct {
	Vault              crypto.Address
	AccruedWithdrawals *big.Int
	SettledWithdrawals *big.Int
	AccruedFees        *big.Int
	SettledFees        *big.Int
}

// OutstandingWithdrawals returns the unpaid withdrawal claim value.
func (o *Obligations) OutstandingWithdrawals() *big.Int {
	if o == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(o.AccruedWithdrawals, o.SettledWithdrawals)
}

// OutstandingFees returns the unpaid treasury fee claim value.
func (o *Obligations) OutstandingFees() *big.Int {
	if o == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(o.AccruedFees, o.SettledFees)
}

// Outstanding returns the combined unpaid claim value.
func (o *Obligations) Outstanding() *big.Int {
	total := o.OutstandingWithdrawals()
	return total.Add(total, o.OutstandingFees())
}

type ledgerState interface {
	GetObligations(vault crypto.Address) (*Obligations, error)
	PutObligations(record *Obligations) error
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Ledger maintains per-vault claim accounting. It never moves funds itself;
// callers act on the settlement amounts it returns.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger constructs an obligations ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(event *types.Event) {
	if l == nil || l.emitter == nil || event == nil {
		return
	}
	l.emitter.Emit(ledgerEvent{evt: event})
}

func (l *Ledger) ensure(vault crypto.Address) (*Obligations, error) {
	record, err := l.state.GetObligations(vault)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &Obligations{Vault: vault}
	}
	if record.AccruedWithdrawals == nil {
		record.AccruedWithdrawals = big.NewInt(0)
	}
	if record.SettledWithdrawals == nil {
		record.SettledWithdrawals = big.NewInt(0)
	}
	if record.AccruedFees == nil {
		record.AccruedFees = big.NewInt(0)
	}
	if record.SettledFees == nil {
		record.SettledFees = big.NewInt(0)
	}
	return record, nil
}

// AssignWithdrawals records a withdrawal claim against the vault. The total
// accrued withdrawal value is capped at the vault's current liability value;
// a request that would push it past the cap is rejected outright.
func (l *Ledger) AssignWithdrawals(vault crypto.Address, value, liabilityValue *big.Int) error {
	if l == nil || l.state == nil {
		return errStateNotConfigured
	}
	if value == nil || value.Sign() <= 0 {
		return errInvalidValue
	}
	record, err := l.ensure(vault)
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(record.OutstandingWithdrawals(), value)
	if liabilityValue == nil || projected.Cmp(liabilityValue) > 0 {
		return errExceedsLiability
	}
	record.AccruedWithdrawals = new(big.Int).Add(record.AccruedWithdrawals, value)
	if err := l.state.PutObligations(record); err != nil {
		return err
	}
	l.emit(events.ObligationAccrued{
		Vault: vault,
		Kind:  KindWithdrawals,
		Value: new(big.Int).Set(value),
		Total: record.OutstandingWithdrawals(),
	}.Event())
	return nil
}

// Settle pays outstanding claims from the vault's available balance.
// Withdrawals are senior: they absorb the balance first, then treasury fees
// (including the newly accrued amount) take what remains. The returned
// amounts are what the caller must actually move; neither ever exceeds the
// corresponding accrual.
func (l *Ledger) Settle(vault crypto.Address, available, newFeeAccrual *big.Int) (*big.Int, *big.Int, error) {
	if l == nil || l.state == nil {
		return nil, nil, errStateNotConfigured
	}
	record, err := l.ensure(vault)
	if err != nil {
		return nil, nil, err
	}

	if newFeeAccrual != nil && newFeeAccrual.Sign() > 0 {
		record.AccruedFees = new(big.Int).Add(record.AccruedFees, newFeeAccrual)
		l.emit(events.ObligationAccrued{
			Vault: vault,
			Kind:  KindTreasuryFees,
			Value: new(big.Int).Set(newFeeAccrual),
			Total: record.OutstandingFees(),
		}.Event())
	}

	balance := big.NewInt(0)
	if available != nil && available.Sign() > 0 {
		balance = new(big.Int).Set(available)
	}

	withdrawalsPaid := record.OutstandingWithdrawals()
	if withdrawalsPaid.Cmp(balance) > 0 {
		withdrawalsPaid = new(big.Int).Set(balance)
	}
	balance.Sub(balance, withdrawalsPaid)

	feesPaid := record.OutstandingFees()
	if feesPaid.Cmp(balance) > 0 {
		feesPaid = new(big.Int).Set(balance)
	}

	if withdrawalsPaid.Sign() == 0 && feesPaid.Sign() == 0 {
		if err := l.state.PutObligations(record); err != nil {
			return nil, nil, err
		}
		return big.NewInt(0), big.NewInt(0), nil
	}

	record.SettledWithdrawals = new(big.Int).Add(record.SettledWithdrawals, withdrawalsPaid)
	record.SettledFees = new(big.Int).Add(record.SettledFees, feesPaid)
	if err := l.state.PutObligations(record); err != nil {
		return nil, nil, err
	}
	l.emit(events.ObligationSettled{
		Vault:           vault,
		WithdrawalsPaid: new(big.Int).Set(withdrawalsPaid),
		FeesPaid:        new(big.Int).Set(feesPaid),
	}.Event())
	return withdrawalsPaid, feesPaid, nil
}

// Outstanding reports the combined unpaid claim value for the vault.
func (l *Ledger) Outstanding(vault crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errStateNotConfigured
	}
	record, err := l.ensure(vault)
	if err != nil {
		return nil, err
	}
	return record.Outstanding(), nil
}

// OutstandingWithdrawals reports the unpaid withdrawal claim value.
func (l *Ledger) OutstandingWithdrawals(vault crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errStateNotConfigured
	}
	record, err := l.ensure(vault)
	if err != nil {
		return nil, err
	}
	return record.OutstandingWithdrawals(), nil
}
