package obligations

import (
	"math/big"
	"testing"

	"stakehub/crypto"
)

type mockLedgerState struct {
	records map[string]*Obligations
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{records: make(map[string]*Obligations)}
}

func (m *mockLedgerState) GetObligations(vault crypto.Address) (*Obligations, error) {
	return m.records[vault.String()], nil
}

func (m *mockLedgerState) PutObligations(record *Obligations) error {
	m.records[record.Vault.String()] = record
	return nil
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.MustNewAddress(prefix, raw)
}

func TestAssignWithdrawalsCappedAtLiability(t *testing.T) {
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	ledger := NewLedger()
	ledger.SetState(newMockLedgerState())

	if err := ledger.AssignWithdrawals(vault, big.NewInt(600), big.NewInt(1000)); err != nil {
		t.Fatalf("assign within cap: %v", err)
	}
	if err := ledger.AssignWithdrawals(vault, big.NewInt(500), big.NewInt(1000)); err != errExceedsLiability {
		t.Fatalf("expected errExceedsLiability, got %v", err)
	}
	if err := ledger.AssignWithdrawals(vault, big.NewInt(400), big.NewInt(1000)); err != nil {
		t.Fatalf("assign up to cap: %v", err)
	}

	outstanding, err := ledger.OutstandingWithdrawals(vault)
	if err != nil {
		t.Fatalf("outstanding: %v", err)
	}
	if outstanding.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected outstanding withdrawals: %s", outstanding)
	}
}

func TestSettlePaysWithdrawalsBeforeFees(t *testing.T) {
	vault := makeAddress(crypto.VaultPrefix, 0x02)
	state := newMockLedgerState()
	ledger := NewLedger()
	ledger.SetState(state)

	if err := ledger.AssignWithdrawals(vault, big.NewInt(700), big.NewInt(1000)); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Balance covers the withdrawals and part of the fees only.
	withdrawalsPaid, feesPaid, err := ledger.Settle(vault, big.NewInt(800), big.NewInt(300))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if withdrawalsPaid.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("unexpected withdrawals paid: %s", withdrawalsPaid)
	}
	if feesPaid.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected fees paid: %s", feesPaid)
	}

	record := state.records[vault.String()]
	if record.SettledWithdrawals.Cmp(record.AccruedWithdrawals) > 0 {
		t.Fatalf("settled withdrawals exceed accrued")
	}
	if record.SettledFees.Cmp(record.AccruedFees) > 0 {
		t.Fatalf("settled fees exceed accrued")
	}
	if record.OutstandingFees().Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected outstanding fees: %s", record.OutstandingFees())
	}

	// The remaining fee claim clears on the next settlement round.
	withdrawalsPaid, feesPaid, err = ledger.Settle(vault, big.NewInt(500), nil)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if withdrawalsPaid.Sign() != 0 {
		t.Fatalf("unexpected withdrawals paid: %s", withdrawalsPaid)
	}
	if feesPaid.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected fees paid: %s", feesPaid)
	}

	outstanding, err := ledger.Outstanding(vault)
	if err != nil {
		t.Fatalf("outstanding: %v", err)
	}
	if outstanding.Sign() != 0 {
		t.Fatalf("expected all claims settled, got %s", outstanding)
	}
}

func TestSettleNeverPaysMoreThanAccrued(t *testing.T) {
	vault := makeAddress(crypto.VaultPrefix, 0x03)
	ledger := NewLedger()
	ledger.SetState(newMockLedgerState())

	withdrawalsPaid, feesPaid, err := ledger.Settle(vault, big.NewInt(1_000_000), big.NewInt(50))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if withdrawalsPaid.Sign() != 0 {
		t.Fatalf("paid withdrawals with nothing accrued: %s", withdrawalsPaid)
	}
	if feesPaid.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected fees paid: %s", feesPaid)
	}
}

func TestAssignWithdrawalsRejectsNonPositive(t *testing.T) {
	vault := makeAddress(crypto.VaultPrefix, 0x04)
	ledger := NewLedger()
	ledger.SetState(newMockLedgerState())

	if err := ledger.AssignWithdrawals(vault, big.NewInt(0), big.NewInt(100)); err != errInvalidValue {
		t.Fatalf("expected errInvalidValue, got %v", err)
	}
	if err := ledger.AssignWithdrawals(vault, nil, big.NewInt(100)); err != errInvalidValue {
		t.Fatalf("expected errInvalidValue for nil, got %v", err)
	}
}
