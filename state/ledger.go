package state

import (
	"math/big"

	"stakehub/core/types"
	"stakehub/crypto"
	"stakehub/native/confirm"
	"stakehub/native/lazyoracle"
	"stakehub/native/obligations"
	"stakehub/native/operatorgrid"
	"stakehub/native/vaulthub"
)

type addrKey [20]byte

func keyFor(addr crypto.Address) addrKey {
	var k addrKey
	copy(k[:], addr.Bytes())
	return k
}

// Ledger is the protocol's keyed state store. It backs every engine's state
// interface with plain tables; the single-writer transaction model means no
// locking happens here. Values are copied on the way in and out so engines
// never alias stored records.
type Ledger struct {
	accounts    map[addrKey]*types.Account
	connections map[addrKey]*vaulthub.Connection
	records     map[addrKey]*vaulthub.VaultRecord
	vaultOrder  []crypto.Address

	tiers      map[uint64]*operatorgrid.Tier
	tierCount  uint64
	groups     map[addrKey]*operatorgrid.Group
	vaultTiers map[addrKey]uint64

	obligations map[addrKey]*obligations.Obligations

	reportRoot  *lazyoracle.ReportRoot
	quarantines map[addrKey]*lazyoracle.Quarantine

	confirmations map[[32]byte]map[confirm.Capability]uint64

	paused map[string]bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:      make(map[addrKey]*types.Account),
		connections:   make(map[addrKey]*vaulthub.Connection),
		records:       make(map[addrKey]*vaulthub.VaultRecord),
		tiers:         make(map[uint64]*operatorgrid.Tier),
		groups:        make(map[addrKey]*operatorgrid.Group),
		vaultTiers:    make(map[addrKey]uint64),
		obligations:   make(map[addrKey]*obligations.Obligations),
		quarantines:   make(map[addrKey]*lazyoracle.Quarantine),
		confirmations: make(map[[32]byte]map[confirm.Capability]uint64),
		paused:        make(map[string]bool),
	}
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// SetPaused toggles the pause flag for a module.
func (l *Ledger) SetPaused(module string, paused bool) {
	l.paused[module] = paused
}

// IsPaused implements the pause view consumed by every engine guard.
func (l *Ledger) IsPaused(module string) bool {
	return l.paused[module]
}

// --- vault hub state ---

func cloneConnection(conn *vaulthub.Connection) *vaulthub.Connection {
	out := *conn
	out.ShareLimit = cloneBig(conn.ShareLimit)
	return &out
}

func cloneRecord(record *vaulthub.VaultRecord) *vaulthub.VaultRecord {
	out := *record
	out.LiabilityShares = cloneBig(record.LiabilityShares)
	out.InOutDelta = cloneBig(record.InOutDelta)
	out.Report.TotalValue = cloneBig(record.Report.TotalValue)
	out.Report.InOutDelta = cloneBig(record.Report.InOutDelta)
	out.CumulativeFees = cloneBig(record.CumulativeFees)
	return &out
}

func (l *Ledger) GetConnection(vault crypto.Address) (*vaulthub.Connection, error) {
	conn, ok := l.connections[keyFor(vault)]
	if !ok {
		return nil, nil
	}
	return cloneConnection(conn), nil
}

func (l *Ledger) PutConnection(conn *vaulthub.Connection) error {
	key := keyFor(conn.Vault)
	if _, ok := l.connections[key]; !ok {
		l.vaultOrder = append(l.vaultOrder, conn.Vault)
	}
	l.connections[key] = cloneConnection(conn)
	return nil
}

func (l *Ledger) GetVaultRecord(vault crypto.Address) (*vaulthub.VaultRecord, error) {
	record, ok := l.records[keyFor(vault)]
	if !ok {
		return nil, nil
	}
	return cloneRecord(record), nil
}

func (l *Ledger) PutVaultRecord(record *vaulthub.VaultRecord) error {
	l.records[keyFor(record.Vault)] = cloneRecord(record)
	return nil
}

func (l *Ledger) GetAccount(addr crypto.Address) (*types.Account, error) {
	account, ok := l.accounts[keyFor(addr)]
	if !ok {
		return &types.Account{}, nil
	}
	out := &types.Account{
		Balance:         cloneBig(account.Balance),
		LiabilityTokens: cloneBig(account.LiabilityTokens),
	}
	return out, nil
}

func (l *Ledger) PutAccount(addr crypto.Address, account *types.Account) error {
	l.accounts[keyFor(addr)] = &types.Account{
		Balance:         cloneBig(account.Balance),
		LiabilityTokens: cloneBig(account.LiabilityTokens),
	}
	return nil
}

func (l *Ledger) VaultCount() (int, error) {
	return len(l.vaultOrder), nil
}

// ListVaults pages through connected vaults in connection order.
func (l *Ledger) ListVaults(offset, limit int) ([]crypto.Address, error) {
	if offset < 0 || offset >= len(l.vaultOrder) {
		return nil, nil
	}
	end := len(l.vaultOrder)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]crypto.Address, end-offset)
	copy(out, l.vaultOrder[offset:end])
	return out, nil
}

// --- operator grid state ---

func cloneTier(tier *operatorgrid.Tier) *operatorgrid.Tier {
	out := *tier
	out.ShareLimit = cloneBig(tier.ShareLimit)
	out.LiabilityShares = cloneBig(tier.LiabilityShares)
	return &out
}

func cloneGroup(group *operatorgrid.Group) *operatorgrid.Group {
	out := *group
	out.ShareLimit = cloneBig(group.ShareLimit)
	out.LiabilityShares = cloneBig(group.LiabilityShares)
	out.TierIDs = append([]uint64(nil), group.TierIDs...)
	return &out
}

func (l *Ledger) GetTier(id uint64) (*operatorgrid.Tier, error) {
	tier, ok := l.tiers[id]
	if !ok {
		return nil, nil
	}
	return cloneTier(tier), nil
}

func (l *Ledger) PutTier(tier *operatorgrid.Tier) error {
	if _, ok := l.tiers[tier.ID]; !ok && tier.ID+1 > l.tierCount {
		l.tierCount = tier.ID + 1
	}
	l.tiers[tier.ID] = cloneTier(tier)
	return nil
}

func (l *Ledger) TierCount() (uint64, error) {
	return l.tierCount, nil
}

func (l *Ledger) GetGroup(operator crypto.Address) (*operatorgrid.Group, error) {
	group, ok := l.groups[keyFor(operator)]
	if !ok {
		return nil, nil
	}
	return cloneGroup(group), nil
}

func (l *Ledger) PutGroup(group *operatorgrid.Group) error {
	l.groups[keyFor(group.Operator)] = cloneGroup(group)
	return nil
}

// VaultTier reports the tier a vault occupies. Vaults start in the default
// tier.
func (l *Ledger) VaultTier(vault crypto.Address) (uint64, error) {
	return l.vaultTiers[keyFor(vault)], nil
}

func (l *Ledger) SetVaultTier(vault crypto.Address, tier uint64) error {
	l.vaultTiers[keyFor(vault)] = tier
	return nil
}

// --- obligations state ---

func cloneObligations(record *obligations.Obligations) *obligations.Obligations {
	out := *record
	out.AccruedWithdrawals = cloneBig(record.AccruedWithdrawals)
	out.SettledWithdrawals = cloneBig(record.SettledWithdrawals)
	out.AccruedFees = cloneBig(record.AccruedFees)
	out.SettledFees = cloneBig(record.SettledFees)
	return &out
}

func (l *Ledger) GetObligations(vault crypto.Address) (*obligations.Obligations, error) {
	record, ok := l.obligations[keyFor(vault)]
	if !ok {
		return nil, nil
	}
	return cloneObligations(record), nil
}

func (l *Ledger) PutObligations(record *obligations.Obligations) error {
	l.obligations[keyFor(record.Vault)] = cloneObligations(record)
	return nil
}

// --- lazy oracle state ---

func (l *Ledger) GetReportRoot() (*lazyoracle.ReportRoot, error) {
	if l.reportRoot == nil {
		return nil, nil
	}
	out := *l.reportRoot
	return &out, nil
}

func (l *Ledger) PutReportRoot(root *lazyoracle.ReportRoot) error {
	out := *root
	l.reportRoot = &out
	return nil
}

func (l *Ledger) GetQuarantine(vault crypto.Address) (*lazyoracle.Quarantine, error) {
	q, ok := l.quarantines[keyFor(vault)]
	if !ok {
		return nil, nil
	}
	out := *q
	out.Excess = cloneBig(q.Excess)
	return &out, nil
}

func (l *Ledger) PutQuarantine(q *lazyoracle.Quarantine) error {
	out := *q
	out.Excess = cloneBig(q.Excess)
	l.quarantines[keyFor(q.Vault)] = &out
	return nil
}

func (l *Ledger) ClearQuarantine(vault crypto.Address) error {
	delete(l.quarantines, keyFor(vault))
	return nil
}

// --- confirmation state ---

func (l *Ledger) ConfirmationGet(fingerprint [32]byte) (map[confirm.Capability]uint64, error) {
	stored, ok := l.confirmations[fingerprint]
	if !ok {
		return nil, nil
	}
	out := make(map[confirm.Capability]uint64, len(stored))
	for capability, ts := range stored {
		out[capability] = ts
	}
	return out, nil
}

func (l *Ledger) ConfirmationPut(fingerprint [32]byte, capability confirm.Capability, timestamp uint64) error {
	stored, ok := l.confirmations[fingerprint]
	if !ok {
		stored = make(map[confirm.Capability]uint64)
		l.confirmations[fingerprint] = stored
	}
	stored[capability] = timestamp
	return nil
}

func (l *Ledger) ConfirmationClear(fingerprint [32]byte) error {
	delete(l.confirmations, fingerprint)
	return nil
}
