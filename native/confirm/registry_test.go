package confirm

import (
	"testing"

	"stakehub/crypto"
)

const (
	capOwner    Capability = "vault.owner"
	capOperator Capability = "node.operator"
)

type mockRegistryState struct {
	confirmations map[[32]byte]map[Capability]uint64
}

func newMockRegistryState() *mockRegistryState {
	return &mockRegistryState{confirmations: make(map[[32]byte]map[Capability]uint64)}
}

func (m *mockRegistryState) ConfirmationGet(fingerprint [32]byte) (map[Capability]uint64, error) {
	stored, ok := m.confirmations[fingerprint]
	if !ok {
		return nil, nil
	}
	out := make(map[Capability]uint64, len(stored))
	for capability, ts := range stored {
		out[capability] = ts
	}
	return out, nil
}

func (m *mockRegistryState) ConfirmationPut(fingerprint [32]byte, capability Capability, timestamp uint64) error {
	stored, ok := m.confirmations[fingerprint]
	if !ok {
		stored = make(map[Capability]uint64)
		m.confirmations[fingerprint] = stored
	}
	stored[capability] = timestamp
	return nil
}

func (m *mockRegistryState) ConfirmationClear(fingerprint [32]byte) error {
	delete(m.confirmations, fingerprint)
	return nil
}

type staticView struct {
	holders map[Capability]crypto.Address
}

func (v staticView) HasCapability(caller crypto.Address, capability Capability) bool {
	holder, ok := v.holders[capability]
	return ok && caller.Equal(holder)
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.MustNewAddress(prefix, raw)
}

func TestConfirmRequiresBothCapabilities(t *testing.T) {
	owner := makeAddress(crypto.StakePrefix, 0x01)
	operator := makeAddress(crypto.StakePrefix, 0x02)
	view := staticView{holders: map[Capability]crypto.Address{
		capOwner:    owner,
		capOperator: operator,
	}}

	state := newMockRegistryState()
	registry := NewRegistry(3600)
	registry.SetState(state)
	now := uint64(1000)
	registry.SetNowFunc(func() uint64 { return now })

	fingerprint := Fingerprint([]byte("change"), Uint64Bytes(7))
	required := []Capability{capOwner, capOperator}

	confirmed, err := registry.Confirm(view, owner, fingerprint, required)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if confirmed {
		t.Fatalf("expected pending after single confirmation")
	}
	if _, ok := state.confirmations[fingerprint]; !ok {
		t.Fatalf("expected owner signature to persist")
	}

	now = 1500
	confirmed, err = registry.Confirm(view, operator, fingerprint, required)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if !confirmed {
		t.Fatalf("expected full tally to execute")
	}
	if _, ok := state.confirmations[fingerprint]; ok {
		t.Fatalf("expected records cleared after execution")
	}
}

func TestConfirmRejectsUnauthorizedCaller(t *testing.T) {
	owner := makeAddress(crypto.StakePrefix, 0x01)
	stranger := makeAddress(crypto.StakePrefix, 0x09)
	view := staticView{holders: map[Capability]crypto.Address{capOwner: owner}}

	registry := NewRegistry(3600)
	registry.SetState(newMockRegistryState())

	_, err := registry.Confirm(view, stranger, Fingerprint([]byte("op")), []Capability{capOwner})
	if err != errNotAuthorized {
		t.Fatalf("expected errNotAuthorized, got %v", err)
	}
}

func TestConfirmExpiredSignatureRestartsRound(t *testing.T) {
	owner := makeAddress(crypto.StakePrefix, 0x01)
	operator := makeAddress(crypto.StakePrefix, 0x02)
	view := staticView{holders: map[Capability]crypto.Address{
		capOwner:    owner,
		capOperator: operator,
	}}

	state := newMockRegistryState()
	registry := NewRegistry(100)
	registry.SetState(state)
	now := uint64(1000)
	registry.SetNowFunc(func() uint64 { return now })

	fingerprint := Fingerprint([]byte("change"), Uint64Bytes(7))
	required := []Capability{capOwner, capOperator}

	if _, err := registry.Confirm(view, owner, fingerprint, required); err != nil {
		t.Fatalf("owner confirm: %v", err)
	}

	// The owner's signature ages out before the operator signs.
	now = 1201
	confirmed, err := registry.Confirm(view, operator, fingerprint, required)
	if err != nil {
		t.Fatalf("operator confirm: %v", err)
	}
	if confirmed {
		t.Fatalf("expected expired signature to not count toward the tally")
	}

	// A fresh owner signature within the window completes the round.
	now = 1250
	confirmed, err = registry.Confirm(view, owner, fingerprint, required)
	if err != nil {
		t.Fatalf("owner reconfirm: %v", err)
	}
	if !confirmed {
		t.Fatalf("expected round to complete after re-signing")
	}
}

func TestConfirmEmptyRequiredSet(t *testing.T) {
	registry := NewRegistry(3600)
	registry.SetState(newMockRegistryState())
	if _, err := registry.Confirm(nil, makeAddress(crypto.StakePrefix, 0x01), [32]byte{}, nil); err != errNoRequired {
		t.Fatalf("expected errNoRequired, got %v", err)
	}
}
