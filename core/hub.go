package core

import (
	"math/big"
	"sync"

	"stakehub/config"
	"stakehub/core/events"
	"stakehub/core/types"
	"stakehub/crypto"
	"stakehub/native/confirm"
	"stakehub/native/lazyoracle"
	"stakehub/native/obligations"
	"stakehub/native/operatorgrid"
	"stakehub/native/vaulthub"
	"stakehub/observability"
	"stakehub/state"
)

// Hub owns the ledger and every protocol engine. External calls run one at a
// time under the hub mutex, matching the single-writer transaction model:
// cross-engine calls inside one operation all see the same consistent state.
type Hub struct {
	mu sync.Mutex

	ledger *state.Ledger

	registry      *vaulthub.Engine
	grid          *operatorgrid.Grid
	obligations   *obligations.Ledger
	oracle        *lazyoracle.Engine
	confirmations *confirm.Registry

	metrics *observability.HubMetrics

	eventMu sync.Mutex
	pending []*types.Event
}

type hubEmitter struct {
	hub *Hub
}

func (e hubEmitter) Emit(event events.Event) {
	if e.hub == nil || event == nil {
		return
	}
	e.hub.metrics.ObserveEvent(event.EventType())
	type payloadEvent interface {
		Event() *types.Event
	}
	payload, ok := event.(payloadEvent)
	if !ok {
		return
	}
	evt := payload.Event()
	if evt == nil {
		return
	}
	e.hub.eventMu.Lock()
	e.hub.pending = append(e.hub.pending, evt)
	e.hub.eventMu.Unlock()
}

// NewHub wires the engines against a fresh ledger per the supplied
// configuration and seeds the default tier.
func NewHub(cfg *config.Config) (*Hub, error) {
	treasury, err := cfg.TreasuryAddress()
	if err != nil {
		return nil, err
	}
	withdrawalQueue, err := cfg.WithdrawalQueueAddress()
	if err != nil {
		return nil, err
	}
	consensus, err := cfg.OracleConsensusAddress()
	if err != nil {
		return nil, err
	}
	defaultLimit, err := cfg.DefaultTierShareLimit()
	if err != nil {
		return nil, err
	}

	hub := &Hub{
		ledger:  state.NewLedger(),
		metrics: observability.Metrics(),
	}
	emitter := hubEmitter{hub: hub}

	hub.confirmations = confirm.NewRegistry(cfg.Confirmations.ExpirySeconds)
	hub.confirmations.SetState(hub.ledger)
	hub.confirmations.SetEmitter(emitter)

	hub.obligations = obligations.NewLedger()
	hub.obligations.SetState(hub.ledger)
	hub.obligations.SetEmitter(emitter)

	hub.registry = vaulthub.NewEngine(treasury, withdrawalQueue)
	hub.registry.SetState(hub.ledger)
	hub.registry.SetEmitter(emitter)
	hub.registry.SetPauses(hub.ledger)
	hub.registry.SetObligations(hub.obligations)
	hub.registry.SetMaxVaults(cfg.VaultHub.MaxVaults)
	hub.registry.SetShareRate(
		big.NewInt(cfg.VaultHub.ShareRateNumerator),
		big.NewInt(cfg.VaultHub.ShareRateDenominator),
	)

	hub.grid = operatorgrid.NewGrid()
	hub.grid.SetState(hub.ledger)
	hub.grid.SetEmitter(emitter)
	hub.grid.SetPauses(hub.ledger)
	hub.grid.SetDirectory(hub.registry)
	hub.grid.SetConfirmations(hub.confirmations)
	hub.registry.SetCapacityGrid(hub.grid)

	hub.oracle = lazyoracle.NewEngine(consensus, cfg.LazyOracle.MaxRewardRatioBps, cfg.LazyOracle.QuarantinePeriodSeconds)
	hub.oracle.SetState(hub.ledger)
	hub.oracle.SetEmitter(emitter)
	hub.oracle.SetPauses(hub.ledger)
	hub.oracle.SetRegistry(hub.registry)

	if err := hub.grid.EnsureDefaultTier(operatorgrid.TierParams{
		ShareLimit:                  defaultLimit,
		ReserveRatioBps:             cfg.DefaultTier.ReserveRatioBps,
		ForcedRebalanceThresholdBps: cfg.DefaultTier.ForcedRebalanceThresholdBps,
		InfraFeeBps:                 cfg.DefaultTier.InfraFeeBps,
		LiquidityFeeBps:             cfg.DefaultTier.LiquidityFeeBps,
		ReservationFeeBps:           cfg.DefaultTier.ReservationFeeBps,
	}); err != nil {
		return nil, err
	}
	return hub, nil
}

// Ledger exposes the underlying state store for genesis seeding and tests.
func (h *Hub) Ledger() *state.Ledger { return h.ledger }

// DrainEvents returns and clears the events emitted since the last drain.
func (h *Hub) DrainEvents() []*types.Event {
	h.eventMu.Lock()
	defer h.eventMu.Unlock()
	out := h.pending
	h.pending = nil
	return out
}

// SetPaused toggles the pause flag for a module.
func (h *Hub) SetPaused(module string, paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ledger.SetPaused(module, paused)
}

// Connect registers a vault with the registry.
func (h *Hub) Connect(vault, owner, operator crypto.Address, limits vaulthub.ConnectionLimits) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.Connect(vault, owner, operator, limits)
	h.metrics.ObserveOperation("vaulthub", "connect", err)
	return err
}

// Disconnect flags a vault for removal.
func (h *Hub) Disconnect(vault crypto.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.Disconnect(vault)
	h.metrics.ObserveOperation("vaulthub", "disconnect", err)
	return err
}

// Fund deposits collateral into a vault.
func (h *Hub) Fund(funder, vault crypto.Address, amount *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.Fund(funder, vault, amount)
	h.metrics.ObserveOperation("vaulthub", "fund", err)
	return err
}

// Withdraw releases unreserved collateral.
func (h *Hub) Withdraw(vault, recipient crypto.Address, amount *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.Withdraw(vault, recipient, amount)
	h.metrics.ObserveOperation("vaulthub", "withdraw", err)
	return err
}

// MintLiability issues liability shares against a vault.
func (h *Hub) MintLiability(vault, recipient crypto.Address, shares *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.MintLiability(vault, recipient, shares)
	h.metrics.ObserveOperation("vaulthub", "mint", err)
	return err
}

// BurnLiability retires liability shares.
func (h *Hub) BurnLiability(vault crypto.Address, shares *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.BurnLiability(vault, shares)
	h.metrics.ObserveOperation("vaulthub", "burn", err)
	return err
}

// Rebalance moves vault value back to the treasury, burning shares.
func (h *Hub) Rebalance(vault crypto.Address, amount *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.Rebalance(vault, amount)
	h.metrics.ObserveOperation("vaulthub", "rebalance", err)
	return err
}

// ForceRebalance runs the permissionless rebalance path.
func (h *Hub) ForceRebalance(vault crypto.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.ForceRebalance(vault)
	h.metrics.ObserveOperation("vaulthub", "forceRebalance", err)
	return err
}

// AssignWithdrawalsObligation records a withdrawal claim against a vault.
func (h *Hub) AssignWithdrawalsObligation(vault crypto.Address, value *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.registry.AssignWithdrawalsObligation(vault, value)
	h.metrics.ObserveOperation("obligations", "assignWithdrawals", err)
	return err
}

// ListVaults pages through connection and record snapshots.
func (h *Hub) ListVaults(offset, limit int) ([]vaulthub.VaultSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.ListVaults(offset, limit)
}

// Vault returns a single connection and record snapshot.
func (h *Hub) Vault(vault crypto.Address) (*vaulthub.VaultSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, err := h.registry.VaultConnection(vault)
	if err != nil {
		return nil, err
	}
	record, err := h.registry.Record(vault)
	if err != nil {
		return nil, err
	}
	return &vaulthub.VaultSnapshot{Connection: *conn, Record: *record}, nil
}

// RegisterGroup creates an operator group.
func (h *Hub) RegisterGroup(operator crypto.Address, shareLimit *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.grid.RegisterGroup(operator, shareLimit)
	h.metrics.ObserveOperation("operatorgrid", "registerGroup", err)
	return err
}

// RegisterTiers appends tiers under an operator's group.
func (h *Hub) RegisterTiers(operator crypto.Address, tiers []operatorgrid.TierParams) ([]uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids, err := h.grid.RegisterTiers(operator, tiers)
	h.metrics.ObserveOperation("operatorgrid", "registerTiers", err)
	return ids, err
}

// AlterTiers updates existing tier parameters.
func (h *Hub) AlterTiers(ids []uint64, params []operatorgrid.TierParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.grid.AlterTiers(ids, params)
	h.metrics.ObserveOperation("operatorgrid", "alterTiers", err)
	return err
}

// ChangeTier runs one confirmation round of a vault tier change. The boolean
// reports whether the change executed this call.
func (h *Hub) ChangeTier(caller, vault crypto.Address, requestedTier uint64, requestedLimit *big.Int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	executed, err := h.grid.ChangeTier(caller, vault, requestedTier, requestedLimit)
	h.metrics.ObserveOperation("operatorgrid", "changeTier", err)
	return executed, err
}

// EffectiveShareLimit reports the binding mint ceiling for a vault.
func (h *Hub) EffectiveShareLimit(vault crypto.Address) (*big.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grid.EffectiveShareLimit(vault)
}

// PublishReportRoot commits a new oracle report root.
func (h *Hub) PublishReportRoot(caller crypto.Address, root [32]byte, metadataCID string, timestamp uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.oracle.PublishReportRoot(caller, root, metadataCID, timestamp)
	h.metrics.ObserveOperation("lazyoracle", "publishRoot", err)
	return err
}

// IngestVaultReport verifies and applies one vault's report leaf.
func (h *Hub) IngestVaultReport(vault crypto.Address, totalValue, cumulativeFees, liabilityShares *big.Int, proof [][32]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.oracle.IngestVaultReport(vault, totalValue, cumulativeFees, liabilityShares, proof)
	h.metrics.ObserveOperation("lazyoracle", "ingest", err)
	return err
}

// QuarantineFor returns a vault's active quarantine, or nil.
func (h *Hub) QuarantineFor(vault crypto.Address) (*lazyoracle.Quarantine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.oracle.QuarantineFor(vault)
}

// OutstandingObligations reports a vault's unmet withdrawal and fee claims.
func (h *Hub) OutstandingObligations(vault crypto.Address) (*big.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.obligations.Outstanding(vault)
}
