package operatorgrid

import (
	"math/big"
	"testing"

	"stakehub/crypto"
	"stakehub/native/confirm"
)

type mockGridState struct {
	tiers      map[uint64]*Tier
	tierCount  uint64
	groups     map[string]*Group
	vaultTiers map[string]uint64
}

func newMockGridState() *mockGridState {
	return &mockGridState{
		tiers:      make(map[uint64]*Tier),
		groups:     make(map[string]*Group),
		vaultTiers: make(map[string]uint64),
	}
}

// The mock copies on every read and write like the real ledger does, so a
// stale snapshot written back by the engine shows up as lost state here too.
func copyTestBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyTestTier(tier *Tier) *Tier {
	out := *tier
	out.ShareLimit = copyTestBig(tier.ShareLimit)
	out.LiabilityShares = copyTestBig(tier.LiabilityShares)
	return &out
}

func copyTestGroup(group *Group) *Group {
	out := *group
	out.ShareLimit = copyTestBig(group.ShareLimit)
	out.LiabilityShares = copyTestBig(group.LiabilityShares)
	out.TierIDs = append([]uint64(nil), group.TierIDs...)
	return &out
}

func (m *mockGridState) GetTier(id uint64) (*Tier, error) {
	tier, ok := m.tiers[id]
	if !ok {
		return nil, nil
	}
	return copyTestTier(tier), nil
}

func (m *mockGridState) PutTier(tier *Tier) error {
	if _, ok := m.tiers[tier.ID]; !ok && tier.ID+1 > m.tierCount {
		m.tierCount = tier.ID + 1
	}
	m.tiers[tier.ID] = copyTestTier(tier)
	return nil
}

func (m *mockGridState) TierCount() (uint64, error) {
	return m.tierCount, nil
}

func (m *mockGridState) GetGroup(operator crypto.Address) (*Group, error) {
	group, ok := m.groups[operator.String()]
	if !ok {
		return nil, nil
	}
	return copyTestGroup(group), nil
}

func (m *mockGridState) PutGroup(group *Group) error {
	m.groups[group.Operator.String()] = copyTestGroup(group)
	return nil
}

func (m *mockGridState) VaultTier(vault crypto.Address) (uint64, error) {
	return m.vaultTiers[vault.String()], nil
}

func (m *mockGridState) SetVaultTier(vault crypto.Address, tier uint64) error {
	m.vaultTiers[vault.String()] = tier
	return nil
}

type mockDirectory struct {
	owners    map[string]crypto.Address
	operators map[string]crypto.Address
	limits    map[string]*big.Int
	loads     map[string]*big.Int

	updatedVault crypto.Address
	updatedLimit *big.Int
	updatedRatio uint64
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		owners:    make(map[string]crypto.Address),
		operators: make(map[string]crypto.Address),
		limits:    make(map[string]*big.Int),
		loads:     make(map[string]*big.Int),
	}
}

func (m *mockDirectory) VaultOwner(vault crypto.Address) (crypto.Address, error) {
	return m.owners[vault.String()], nil
}

func (m *mockDirectory) VaultOperator(vault crypto.Address) (crypto.Address, error) {
	return m.operators[vault.String()], nil
}

func (m *mockDirectory) VaultShareLimit(vault crypto.Address) (*big.Int, error) {
	if limit, ok := m.limits[vault.String()]; ok {
		return limit, nil
	}
	return big.NewInt(0), nil
}

func (m *mockDirectory) VaultLiabilityShares(vault crypto.Address) (*big.Int, error) {
	if load, ok := m.loads[vault.String()]; ok {
		return load, nil
	}
	return big.NewInt(0), nil
}

func (m *mockDirectory) UpdateConnectionParams(vault crypto.Address, shareLimit *big.Int, reserveRatioBps, forcedRebalanceThresholdBps, infraFeeBps, liquidityFeeBps, reservationFeeBps uint64) error {
	m.updatedVault = vault
	m.updatedLimit = shareLimit
	m.updatedRatio = reserveRatioBps
	return nil
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.MustNewAddress(prefix, raw)
}

func newTestGrid(state *mockGridState, directory *mockDirectory) *Grid {
	grid := NewGrid()
	grid.SetState(state)
	grid.SetDirectory(directory)
	return grid
}

func TestDefaultTierCeilingBindsMints(t *testing.T) {
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	state := newMockGridState()
	grid := newTestGrid(state, newMockDirectory())

	if err := grid.EnsureDefaultTier(TierParams{ShareLimit: big.NewInt(1000), ReserveRatioBps: 2000}); err != nil {
		t.Fatalf("ensure default tier: %v", err)
	}

	if err := grid.OnMinted(vault, big.NewInt(400)); err != nil {
		t.Fatalf("mint within ceiling: %v", err)
	}
	if state.tiers[DefaultTierID].LiabilityShares.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected tier load: %s", state.tiers[DefaultTierID].LiabilityShares)
	}

	if err := grid.OnMinted(vault, big.NewInt(700)); err != errTierCapacity {
		t.Fatalf("expected errTierCapacity, got %v", err)
	}
	if state.tiers[DefaultTierID].LiabilityShares.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("failed mint must not move the tier load")
	}
}

func TestGroupCeilingBindsBeforeTier(t *testing.T) {
	operator := makeAddress(crypto.StakePrefix, 0x02)
	vault := makeAddress(crypto.VaultPrefix, 0x03)
	state := newMockGridState()
	grid := newTestGrid(state, newMockDirectory())

	if err := grid.EnsureDefaultTier(TierParams{ShareLimit: big.NewInt(10_000), ReserveRatioBps: 2000}); err != nil {
		t.Fatalf("ensure default tier: %v", err)
	}
	if err := grid.RegisterGroup(operator, big.NewInt(300)); err != nil {
		t.Fatalf("register group: %v", err)
	}
	ids, err := grid.RegisterTiers(operator, []TierParams{{ShareLimit: big.NewInt(500), ReserveRatioBps: 2000}})
	if err != nil {
		t.Fatalf("register tiers: %v", err)
	}
	if err := state.SetVaultTier(vault, ids[0]); err != nil {
		t.Fatalf("set vault tier: %v", err)
	}

	if err := grid.OnMinted(vault, big.NewInt(300)); err != nil {
		t.Fatalf("mint up to group ceiling: %v", err)
	}
	if err := grid.OnMinted(vault, big.NewInt(1)); err != errGroupCapacity {
		t.Fatalf("expected errGroupCapacity even with tier headroom, got %v", err)
	}
}

func TestMintBurnRoundTripRestoresLoads(t *testing.T) {
	operator := makeAddress(crypto.StakePrefix, 0x04)
	vault := makeAddress(crypto.VaultPrefix, 0x05)
	state := newMockGridState()
	grid := newTestGrid(state, newMockDirectory())

	if err := grid.EnsureDefaultTier(TierParams{ShareLimit: big.NewInt(10_000), ReserveRatioBps: 2000}); err != nil {
		t.Fatalf("ensure default tier: %v", err)
	}
	if err := grid.RegisterGroup(operator, big.NewInt(5_000)); err != nil {
		t.Fatalf("register group: %v", err)
	}
	ids, err := grid.RegisterTiers(operator, []TierParams{{ShareLimit: big.NewInt(2_000), ReserveRatioBps: 2000}})
	if err != nil {
		t.Fatalf("register tiers: %v", err)
	}
	if err := state.SetVaultTier(vault, ids[0]); err != nil {
		t.Fatalf("set vault tier: %v", err)
	}

	if err := grid.OnMinted(vault, big.NewInt(750)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := grid.OnBurned(vault, big.NewInt(750)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	if state.tiers[ids[0]].LiabilityShares.Sign() != 0 {
		t.Fatalf("tier load not restored: %s", state.tiers[ids[0]].LiabilityShares)
	}
	if state.groups[operator.String()].LiabilityShares.Sign() != 0 {
		t.Fatalf("group load not restored: %s", state.groups[operator.String()].LiabilityShares)
	}
}

func TestChangeTierRequiresBothSignOffs(t *testing.T) {
	owner := makeAddress(crypto.StakePrefix, 0x06)
	operator := makeAddress(crypto.StakePrefix, 0x07)
	vault := makeAddress(crypto.VaultPrefix, 0x08)

	state := newMockGridState()
	directory := newMockDirectory()
	directory.owners[vault.String()] = owner
	directory.operators[vault.String()] = operator
	directory.limits[vault.String()] = big.NewInt(100)
	directory.loads[vault.String()] = big.NewInt(50)

	grid := newTestGrid(state, directory)
	confirms := confirm.NewRegistry(3600)
	confirms.SetState(newConfirmState())
	grid.SetConfirmations(confirms)

	if err := grid.EnsureDefaultTier(TierParams{ShareLimit: big.NewInt(1_000), ReserveRatioBps: 2000}); err != nil {
		t.Fatalf("ensure default tier: %v", err)
	}
	state.tiers[DefaultTierID].LiabilityShares = big.NewInt(50)
	if err := grid.RegisterGroup(operator, big.NewInt(500)); err != nil {
		t.Fatalf("register group: %v", err)
	}
	ids, err := grid.RegisterTiers(operator, []TierParams{{ShareLimit: big.NewInt(400), ReserveRatioBps: 1500}})
	if err != nil {
		t.Fatalf("register tiers: %v", err)
	}

	executed, err := grid.ChangeTier(owner, vault, ids[0], big.NewInt(200))
	if err != nil {
		t.Fatalf("owner confirmation: %v", err)
	}
	if executed {
		t.Fatalf("expected pending round after owner confirmation")
	}
	if tier, _ := state.VaultTier(vault); tier != DefaultTierID {
		t.Fatalf("tier changed before full confirmation")
	}

	executed, err = grid.ChangeTier(operator, vault, ids[0], big.NewInt(200))
	if err != nil {
		t.Fatalf("operator confirmation: %v", err)
	}
	if !executed {
		t.Fatalf("expected execution after both sign-offs")
	}

	if tier, _ := state.VaultTier(vault); tier != ids[0] {
		t.Fatalf("vault not moved to requested tier")
	}
	if state.tiers[ids[0]].LiabilityShares.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("load not carried to target tier: %s", state.tiers[ids[0]].LiabilityShares)
	}
	if state.tiers[DefaultTierID].LiabilityShares.Sign() != 0 {
		t.Fatalf("load not removed from default tier")
	}
	if !directory.updatedVault.Equal(vault) || directory.updatedLimit.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("connection params not updated")
	}
	if directory.updatedRatio != 1500 {
		t.Fatalf("unexpected reserve ratio pushed to registry: %d", directory.updatedRatio)
	}
}

func TestChangeTierWithinGroupKeepsGroupSum(t *testing.T) {
	owner := makeAddress(crypto.StakePrefix, 0x0f)
	operator := makeAddress(crypto.StakePrefix, 0x10)
	vault := makeAddress(crypto.VaultPrefix, 0x11)

	state := newMockGridState()
	directory := newMockDirectory()
	directory.owners[vault.String()] = owner
	directory.operators[vault.String()] = operator
	directory.limits[vault.String()] = big.NewInt(300)
	directory.loads[vault.String()] = big.NewInt(100)

	grid := newTestGrid(state, directory)
	confirms := confirm.NewRegistry(3600)
	confirms.SetState(newConfirmState())
	grid.SetConfirmations(confirms)

	if err := grid.EnsureDefaultTier(TierParams{ShareLimit: big.NewInt(1_000), ReserveRatioBps: 2000}); err != nil {
		t.Fatalf("ensure default tier: %v", err)
	}
	// The group ceiling leaves no headroom beyond the load already counted,
	// which a move between sibling tiers must not require.
	if err := grid.RegisterGroup(operator, big.NewInt(150)); err != nil {
		t.Fatalf("register group: %v", err)
	}
	ids, err := grid.RegisterTiers(operator, []TierParams{
		{ShareLimit: big.NewInt(300), ReserveRatioBps: 2000},
		{ShareLimit: big.NewInt(300), ReserveRatioBps: 1500},
	})
	if err != nil {
		t.Fatalf("register tiers: %v", err)
	}
	if err := state.SetVaultTier(vault, ids[0]); err != nil {
		t.Fatalf("set vault tier: %v", err)
	}
	state.tiers[ids[0]].LiabilityShares = big.NewInt(100)
	state.groups[operator.String()].LiabilityShares = big.NewInt(100)

	if _, err := grid.ChangeTier(owner, vault, ids[1], big.NewInt(200)); err != nil {
		t.Fatalf("owner confirmation: %v", err)
	}
	executed, err := grid.ChangeTier(operator, vault, ids[1], big.NewInt(200))
	if err != nil {
		t.Fatalf("operator confirmation: %v", err)
	}
	if !executed {
		t.Fatalf("expected execution after both sign-offs")
	}

	if state.tiers[ids[0]].LiabilityShares.Sign() != 0 {
		t.Fatalf("load not removed from old tier: %s", state.tiers[ids[0]].LiabilityShares)
	}
	if state.tiers[ids[1]].LiabilityShares.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("load not carried to new tier: %s", state.tiers[ids[1]].LiabilityShares)
	}
	group := state.groups[operator.String()]
	tierSum := new(big.Int).Add(state.tiers[ids[0]].LiabilityShares, state.tiers[ids[1]].LiabilityShares)
	if group.LiabilityShares.Cmp(tierSum) != 0 {
		t.Fatalf("group load %s diverged from tier sum %s", group.LiabilityShares, tierSum)
	}
	if group.LiabilityShares.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("group load changed on an intra-group move: %s", group.LiabilityShares)
	}
}

func TestChangeTierRejectsStranger(t *testing.T) {
	owner := makeAddress(crypto.StakePrefix, 0x09)
	operator := makeAddress(crypto.StakePrefix, 0x0a)
	stranger := makeAddress(crypto.StakePrefix, 0x0b)
	vault := makeAddress(crypto.VaultPrefix, 0x0c)

	state := newMockGridState()
	directory := newMockDirectory()
	directory.owners[vault.String()] = owner
	directory.operators[vault.String()] = operator

	grid := newTestGrid(state, directory)
	confirms := confirm.NewRegistry(3600)
	confirms.SetState(newConfirmState())
	grid.SetConfirmations(confirms)

	if err := grid.EnsureDefaultTier(TierParams{ShareLimit: big.NewInt(1_000), ReserveRatioBps: 2000}); err != nil {
		t.Fatalf("ensure default tier: %v", err)
	}
	if err := grid.RegisterGroup(operator, big.NewInt(500)); err != nil {
		t.Fatalf("register group: %v", err)
	}
	ids, err := grid.RegisterTiers(operator, []TierParams{{ShareLimit: big.NewInt(400), ReserveRatioBps: 1500}})
	if err != nil {
		t.Fatalf("register tiers: %v", err)
	}

	if _, err := grid.ChangeTier(stranger, vault, ids[0], big.NewInt(100)); err == nil {
		t.Fatalf("expected stranger confirmation to fail")
	}
}

func TestEffectiveShareLimitTakesTightestCeiling(t *testing.T) {
	operator := makeAddress(crypto.StakePrefix, 0x0d)
	vault := makeAddress(crypto.VaultPrefix, 0x0e)

	state := newMockGridState()
	directory := newMockDirectory()
	directory.limits[vault.String()] = big.NewInt(900)
	directory.loads[vault.String()] = big.NewInt(100)

	grid := newTestGrid(state, directory)
	if err := grid.EnsureDefaultTier(TierParams{ShareLimit: big.NewInt(10_000), ReserveRatioBps: 2000}); err != nil {
		t.Fatalf("ensure default tier: %v", err)
	}
	if err := grid.RegisterGroup(operator, big.NewInt(250)); err != nil {
		t.Fatalf("register group: %v", err)
	}
	ids, err := grid.RegisterTiers(operator, []TierParams{{ShareLimit: big.NewInt(600), ReserveRatioBps: 2000}})
	if err != nil {
		t.Fatalf("register tiers: %v", err)
	}
	if err := state.SetVaultTier(vault, ids[0]); err != nil {
		t.Fatalf("set vault tier: %v", err)
	}
	state.tiers[ids[0]].LiabilityShares = big.NewInt(100)
	state.groups[operator.String()].LiabilityShares = big.NewInt(100)

	// Tier headroom: 600-100+100 = 600. Group headroom: 250-100+100 = 250.
	// Connection limit: 900. The group ceiling binds.
	limit, err := grid.EffectiveShareLimit(vault)
	if err != nil {
		t.Fatalf("effective limit: %v", err)
	}
	if limit.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected effective limit: %s", limit)
	}
}

// confirmState backs the real confirmation registry with an in-memory map.
type confirmState struct {
	records map[[32]byte]map[confirm.Capability]uint64
}

func newConfirmState() *confirmState {
	return &confirmState{records: make(map[[32]byte]map[confirm.Capability]uint64)}
}

func (c *confirmState) ConfirmationGet(fingerprint [32]byte) (map[confirm.Capability]uint64, error) {
	stored, ok := c.records[fingerprint]
	if !ok {
		return nil, nil
	}
	out := make(map[confirm.Capability]uint64, len(stored))
	for capability, ts := range stored {
		out[capability] = ts
	}
	return out, nil
}

func (c *confirmState) ConfirmationPut(fingerprint [32]byte, capability confirm.Capability, timestamp uint64) error {
	stored, ok := c.records[fingerprint]
	if !ok {
		stored = make(map[confirm.Capability]uint64)
		c.records[fingerprint] = stored
	}
	stored[capability] = timestamp
	return nil
}

func (c *confirmState) ConfirmationClear(fingerprint [32]byte) error {
	delete(c.records, fingerprint)
	return nil
}
