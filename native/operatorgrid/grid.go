package operatorgrid

import (
	"errors"
	"math/big"

	"stakehub/core/events"
	"stakehub/core/types"
	"stakehub/crypto"
	nativecommon "stakehub/native/common"
	"stakehub/native/confirm"
)

var (
	errStateNotConfigured     = errors.New("operator grid: state not configured")
	errDirectoryNotConfigured = errors.New("operator grid: vault directory not configured")
	errConfirmsNotConfigured  = errors.New("operator grid: confirmation registry not configured")
	errZeroOperator           = errors.New("operator grid: operator address required")
	errGroupExists            = errors.New("operator grid: group already registered")
	errGroupNotFound          = errors.New("operator grid: group not registered")
	errTierNotFound           = errors.New("operator grid: tier not registered")
	errTierNotOwned           = errors.New("operator grid: tier belongs to another operator")
	errTierAlreadySet         = errors.New("operator grid: vault already in requested tier")
	errDefaultTierImmutable   = errors.New("operator grid: default tier cannot be altered")
	errInvalidShares          = errors.New("operator grid: share amount must be positive")
	errInvalidLimit           = errors.New("operator grid: share limit must be non-negative")
	errLimitExceedsTier       = errors.New("operator grid: requested limit exceeds tier limit")
	errLimitBelowLiability    = errors.New("operator grid: share limit below outstanding liability")
	errTierCapacity           = errors.New("operator grid: tier share limit exceeded")
	errGroupCapacity          = errors.New("operator grid: group share limit exceeded")
	errBurnExceedsLiability   = errors.New("operator grid: burn exceeds recorded liability")
	errParamsLengthMismatch   = errors.New("operator grid: tier ids and params length mismatch")
)

const moduleName = "operatorgrid"

const changeTierDomain = "operatorgrid.changeTier"

const (
	// CapabilityVaultOwner gates tier changes on the vault owner's sign-off.
	CapabilityVaultOwner confirm.Capability = "vault.owner"
	// CapabilityNodeOperator gates tier changes on the node operator's
	// sign-off.
	CapabilityNodeOperator confirm.Capability = "node.operator"
)

type gridState interface {
	GetTier(id uint64) (*Tier, error)
	PutTier(tier *Tier) error
	TierCount() (uint64, error)
	GetGroup(operator crypto.Address) (*Group, error)
	PutGroup(group *Group) error
	VaultTier(vault crypto.Address) (uint64, error)
	SetVaultTier(vault crypto.Address, tier uint64) error
}

// VaultDirectory exposes the narrow registry surface the grid needs: vault
// membership lookups and the connection-parameter update applied after a
// confirmed tier change.
type VaultDirectory interface {
	VaultOwner(vault crypto.Address) (crypto.Address, error)
	VaultOperator(vault crypto.Address) (crypto.Address, error)
	VaultShareLimit(vault crypto.Address) (*big.Int, error)
	VaultLiabilityShares(vault crypto.Address) (*big.Int, error)
	UpdateConnectionParams(vault crypto.Address, shareLimit *big.Int, reserveRatioBps, forcedRebalanceThresholdBps, infraFeeBps, liquidityFeeBps, reservationFeeBps uint64) error
}

type confirmer interface {
	Confirm(view confirm.CapabilityView, caller crypto.Address, fingerprint [32]byte, required []confirm.Capability) (bool, error)
}

type gridEvent struct {
	evt *types.Event
}

func (e gridEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e gridEvent) Event() *types.Event { return e.evt }

// tierChangeRoles resolves the two capabilities required for a tier change
// against the concrete vault being moved.
type tierChangeRoles struct {
	owner    crypto.Address
	operator crypto.Address
}

func (r tierChangeRoles) HasCapability(caller crypto.Address, capability confirm.Capability) bool {
	switch capability {
	case CapabilityVaultOwner:
		return !r.owner.IsZero() && caller.Equal(r.owner)
	case CapabilityNodeOperator:
		return !r.operator.IsZero() && caller.Equal(r.operator)
	}
	return false
}

// Grid is the hierarchical limit authority: vault -> tier -> group. It
// decides whether a vault may change tier and whether a liability increase
// fits within tier and group headroom.
type Grid struct {
	state     gridState
	directory VaultDirectory
	confirms  confirmer
	emitter   events.Emitter
	pauses    nativecommon.PauseView
}

// NewGrid constructs a grid with default no-op dependencies.
func NewGrid() *Grid {
	return &Grid{emitter: events.NoopEmitter{}}
}

// SetState wires the grid to the external persistence layer.
func (g *Grid) SetState(state gridState) { g.state = state }

// SetDirectory wires the grid to the vault registry surface.
func (g *Grid) SetDirectory(directory VaultDirectory) { g.directory = directory }

// SetConfirmations wires the multi-party approval registry used to gate tier
// changes.
func (g *Grid) SetConfirmations(confirms confirmer) { g.confirms = confirms }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (g *Grid) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// SetPauses wires the governance pause view.
func (g *Grid) SetPauses(p nativecommon.PauseView) {
	if g == nil {
		return
	}
	g.pauses = p
}

func (g *Grid) emit(event *types.Event) {
	if g == nil || g.emitter == nil || event == nil {
		return
	}
	g.emitter.Emit(gridEvent{evt: event})
}

func ensureTier(tier *Tier) *Tier {
	if tier == nil {
		return nil
	}
	if tier.ShareLimit == nil {
		tier.ShareLimit = big.NewInt(0)
	}
	if tier.LiabilityShares == nil {
		tier.LiabilityShares = big.NewInt(0)
	}
	return tier
}

func ensureGroup(group *Group) *Group {
	if group == nil {
		return nil
	}
	if group.ShareLimit == nil {
		group.ShareLimit = big.NewInt(0)
	}
	if group.LiabilityShares == nil {
		group.LiabilityShares = big.NewInt(0)
	}
	return group
}

// EnsureDefaultTier creates the default tier when it does not exist yet. The
// hub calls this once at boot before any vault connects.
func (g *Grid) EnsureDefaultTier(params TierParams) error {
	if g == nil || g.state == nil {
		return errStateNotConfigured
	}
	existing, err := g.state.GetTier(DefaultTierID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if params.ShareLimit == nil || params.ShareLimit.Sign() < 0 {
		return errInvalidLimit
	}
	tier := &Tier{
		ID:                          DefaultTierID,
		ShareLimit:                  new(big.Int).Set(params.ShareLimit),
		LiabilityShares:             big.NewInt(0),
		ReserveRatioBps:             params.ReserveRatioBps,
		ForcedRebalanceThresholdBps: params.ForcedRebalanceThresholdBps,
		InfraFeeBps:                 params.InfraFeeBps,
		LiquidityFeeBps:             params.LiquidityFeeBps,
		ReservationFeeBps:           params.ReservationFeeBps,
	}
	return g.state.PutTier(tier)
}

// RegisterGroup creates an operator group with the supplied liability
// ceiling.
func (g *Grid) RegisterGroup(operator crypto.Address, shareLimit *big.Int) error {
	if g == nil || g.state == nil {
		return errStateNotConfigured
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return err
	}
	if operator.IsZero() {
		return errZeroOperator
	}
	if shareLimit == nil || shareLimit.Sign() < 0 {
		return errInvalidLimit
	}
	existing, err := g.state.GetGroup(operator)
	if err != nil {
		return err
	}
	if existing != nil {
		return errGroupExists
	}
	group := &Group{
		Operator:        operator,
		ShareLimit:      new(big.Int).Set(shareLimit),
		LiabilityShares: big.NewInt(0),
	}
	if err := g.state.PutGroup(group); err != nil {
		return err
	}
	g.emit(events.GridGroupRegistered{
		Operator:   operator,
		ShareLimit: new(big.Int).Set(shareLimit),
	}.Event())
	return nil
}

// RegisterTiers appends new tiers under the operator's group and returns the
// allocated tier ids.
func (g *Grid) RegisterTiers(operator crypto.Address, tiers []TierParams) ([]uint64, error) {
	if g == nil || g.state == nil {
		return nil, errStateNotConfigured
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return nil, err
	}
	if operator.IsZero() {
		return nil, errZeroOperator
	}
	if len(tiers) == 0 {
		return nil, errInvalidLimit
	}
	group, err := g.state.GetGroup(operator)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, errGroupNotFound
	}
	group = ensureGroup(group)
	for _, params := range tiers {
		if params.ShareLimit == nil || params.ShareLimit.Sign() < 0 {
			return nil, errInvalidLimit
		}
	}

	next, err := g.state.TierCount()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(tiers))
	for _, params := range tiers {
		tier := &Tier{
			ID:                          next,
			Operator:                    operator,
			ShareLimit:                  new(big.Int).Set(params.ShareLimit),
			LiabilityShares:             big.NewInt(0),
			ReserveRatioBps:             params.ReserveRatioBps,
			ForcedRebalanceThresholdBps: params.ForcedRebalanceThresholdBps,
			InfraFeeBps:                 params.InfraFeeBps,
			LiquidityFeeBps:             params.LiquidityFeeBps,
			ReservationFeeBps:           params.ReservationFeeBps,
		}
		if err := g.state.PutTier(tier); err != nil {
			return nil, err
		}
		group.TierIDs = append(group.TierIDs, next)
		ids = append(ids, next)
		g.emit(events.GridTierRegistered{
			TierID:     next,
			Operator:   operator,
			ShareLimit: new(big.Int).Set(params.ShareLimit),
		}.Event())
		next++
	}
	if err := g.state.PutGroup(group); err != nil {
		return nil, err
	}
	return ids, nil
}

// AlterTiers updates the limit and fee surface of existing non-default
// tiers. A new share limit may not undercut the tier's outstanding liability.
func (g *Grid) AlterTiers(ids []uint64, params []TierParams) error {
	if g == nil || g.state == nil {
		return errStateNotConfigured
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return err
	}
	if len(ids) == 0 || len(ids) != len(params) {
		return errParamsLengthMismatch
	}
	updated := make([]*Tier, 0, len(ids))
	for i, id := range ids {
		if id == DefaultTierID {
			return errDefaultTierImmutable
		}
		tier, err := g.state.GetTier(id)
		if err != nil {
			return err
		}
		if tier == nil {
			return errTierNotFound
		}
		tier = ensureTier(tier)
		next := params[i]
		if next.ShareLimit == nil || next.ShareLimit.Sign() < 0 {
			return errInvalidLimit
		}
		if next.ShareLimit.Cmp(tier.LiabilityShares) < 0 {
			return errLimitBelowLiability
		}
		tier.ShareLimit = new(big.Int).Set(next.ShareLimit)
		tier.ReserveRatioBps = next.ReserveRatioBps
		tier.ForcedRebalanceThresholdBps = next.ForcedRebalanceThresholdBps
		tier.InfraFeeBps = next.InfraFeeBps
		tier.LiquidityFeeBps = next.LiquidityFeeBps
		tier.ReservationFeeBps = next.ReservationFeeBps
		updated = append(updated, tier)
	}
	for _, tier := range updated {
		if err := g.state.PutTier(tier); err != nil {
			return err
		}
		g.emit(events.GridTierUpdated{
			TierID:     tier.ID,
			ShareLimit: new(big.Int).Set(tier.ShareLimit),
		}.Event())
	}
	return nil
}

// ChangeTier moves a vault to the requested tier once both the vault owner
// and the node operator have confirmed the exact request. The boolean result
// reports whether the change executed; false with a nil error means the
// confirmation round is still pending.
func (g *Grid) ChangeTier(caller, vault crypto.Address, requestedTier uint64, requestedLimit *big.Int) (bool, error) {
	if g == nil || g.state == nil {
		return false, errStateNotConfigured
	}
	if g.directory == nil {
		return false, errDirectoryNotConfigured
	}
	if g.confirms == nil {
		return false, errConfirmsNotConfigured
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return false, err
	}
	if requestedLimit == nil || requestedLimit.Sign() < 0 {
		return false, errInvalidLimit
	}

	owner, err := g.directory.VaultOwner(vault)
	if err != nil {
		return false, err
	}
	operator, err := g.directory.VaultOperator(vault)
	if err != nil {
		return false, err
	}

	currentID, err := g.state.VaultTier(vault)
	if err != nil {
		return false, err
	}
	if currentID == requestedTier {
		return false, errTierAlreadySet
	}

	target, err := g.state.GetTier(requestedTier)
	if err != nil {
		return false, err
	}
	if target == nil {
		return false, errTierNotFound
	}
	target = ensureTier(target)
	if requestedTier != DefaultTierID && !target.Operator.Equal(operator) {
		return false, errTierNotOwned
	}
	if requestedLimit.Cmp(target.ShareLimit) > 0 {
		return false, errLimitExceedsTier
	}

	load, err := g.directory.VaultLiabilityShares(vault)
	if err != nil {
		return false, err
	}
	if load == nil {
		load = big.NewInt(0)
	}

	current, err := g.state.GetTier(currentID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, errTierNotFound
	}
	current = ensureTier(current)
	if current.LiabilityShares.Cmp(load) < 0 {
		return false, errBurnExceedsLiability
	}
	// Load moving between two tiers of one group already counts toward the
	// group total, so such a move neither needs group headroom nor changes
	// the group's liability.
	sameGroup := currentID != DefaultTierID && requestedTier != DefaultTierID &&
		current.Operator.Equal(target.Operator)

	// Headroom is validated before the confirmation round completes so a
	// doomed request fails loudly instead of consuming sign-offs.
	projected := new(big.Int).Add(target.LiabilityShares, load)
	if projected.Cmp(target.ShareLimit) > 0 {
		return false, errTierCapacity
	}
	if requestedTier != DefaultTierID {
		targetGroup, err := g.state.GetGroup(target.Operator)
		if err != nil {
			return false, err
		}
		if targetGroup == nil {
			return false, errGroupNotFound
		}
		if !sameGroup {
			targetGroup = ensureGroup(targetGroup)
			groupProjected := new(big.Int).Add(targetGroup.LiabilityShares, load)
			if groupProjected.Cmp(targetGroup.ShareLimit) > 0 {
				return false, errGroupCapacity
			}
		}
	}

	fingerprint := confirm.Fingerprint(
		[]byte(changeTierDomain),
		vault.Bytes(),
		confirm.Uint64Bytes(requestedTier),
		confirm.BigIntBytes(requestedLimit),
	)
	confirmed, err := g.confirms.Confirm(
		tierChangeRoles{owner: owner, operator: operator},
		caller,
		fingerprint,
		[]confirm.Capability{CapabilityVaultOwner, CapabilityNodeOperator},
	)
	if err != nil {
		return false, err
	}
	if !confirmed {
		return false, nil
	}

	current.LiabilityShares = new(big.Int).Sub(current.LiabilityShares, load)
	if err := g.state.PutTier(current); err != nil {
		return false, err
	}
	target.LiabilityShares = projected
	if err := g.state.PutTier(target); err != nil {
		return false, err
	}
	if !sameGroup {
		if currentID != DefaultTierID {
			currentGroup, err := g.state.GetGroup(current.Operator)
			if err != nil {
				return false, err
			}
			if currentGroup != nil {
				currentGroup = ensureGroup(currentGroup)
				currentGroup.LiabilityShares = new(big.Int).Sub(currentGroup.LiabilityShares, load)
				if currentGroup.LiabilityShares.Sign() < 0 {
					currentGroup.LiabilityShares = big.NewInt(0)
				}
				if err := g.state.PutGroup(currentGroup); err != nil {
					return false, err
				}
			}
		}
		if requestedTier != DefaultTierID {
			// Fetched after the current-group write so the increment lands on
			// the stored value, not a stale copy.
			targetGroup, err := g.state.GetGroup(target.Operator)
			if err != nil {
				return false, err
			}
			if targetGroup == nil {
				return false, errGroupNotFound
			}
			targetGroup = ensureGroup(targetGroup)
			targetGroup.LiabilityShares = new(big.Int).Add(targetGroup.LiabilityShares, load)
			if err := g.state.PutGroup(targetGroup); err != nil {
				return false, err
			}
		}
	}

	if err := g.state.SetVaultTier(vault, requestedTier); err != nil {
		return false, err
	}
	if err := g.directory.UpdateConnectionParams(
		vault,
		requestedLimit,
		target.ReserveRatioBps,
		target.ForcedRebalanceThresholdBps,
		target.InfraFeeBps,
		target.LiquidityFeeBps,
		target.ReservationFeeBps,
	); err != nil {
		return false, err
	}

	g.emit(events.GridTierChanged{
		Vault:           vault,
		FromTier:        currentID,
		ToTier:          requestedTier,
		RequestedLimit:  new(big.Int).Set(requestedLimit),
		LiabilityShares: new(big.Int).Set(load),
	}.Event())
	return true, nil
}

// ResetToDefault returns a vault to the default tier, carrying its current
// liability load with it. The registry invokes this on disconnect.
func (g *Grid) ResetToDefault(vault crypto.Address) error {
	if g == nil || g.state == nil {
		return errStateNotConfigured
	}
	if g.directory == nil {
		return errDirectoryNotConfigured
	}
	currentID, err := g.state.VaultTier(vault)
	if err != nil {
		return err
	}
	if currentID == DefaultTierID {
		return nil
	}
	load, err := g.directory.VaultLiabilityShares(vault)
	if err != nil {
		return err
	}
	if load == nil {
		load = big.NewInt(0)
	}

	current, err := g.state.GetTier(currentID)
	if err != nil {
		return err
	}
	if current == nil {
		return errTierNotFound
	}
	current = ensureTier(current)
	if current.LiabilityShares.Cmp(load) < 0 {
		return errBurnExceedsLiability
	}
	defaultTier, err := g.state.GetTier(DefaultTierID)
	if err != nil {
		return err
	}
	if defaultTier == nil {
		return errTierNotFound
	}
	defaultTier = ensureTier(defaultTier)
	projected := new(big.Int).Add(defaultTier.LiabilityShares, load)
	if projected.Cmp(defaultTier.ShareLimit) > 0 {
		return errTierCapacity
	}

	current.LiabilityShares = new(big.Int).Sub(current.LiabilityShares, load)
	if err := g.state.PutTier(current); err != nil {
		return err
	}
	group, err := g.state.GetGroup(current.Operator)
	if err != nil {
		return err
	}
	if group != nil {
		group = ensureGroup(group)
		group.LiabilityShares = new(big.Int).Sub(group.LiabilityShares, load)
		if group.LiabilityShares.Sign() < 0 {
			group.LiabilityShares = big.NewInt(0)
		}
		if err := g.state.PutGroup(group); err != nil {
			return err
		}
	}
	defaultTier.LiabilityShares = projected
	if err := g.state.PutTier(defaultTier); err != nil {
		return err
	}
	if err := g.state.SetVaultTier(vault, DefaultTierID); err != nil {
		return err
	}
	g.emit(events.GridTierChanged{
		Vault:           vault,
		FromTier:        currentID,
		ToTier:          DefaultTierID,
		RequestedLimit:  new(big.Int).Set(defaultTier.ShareLimit),
		LiabilityShares: new(big.Int).Set(load),
	}.Event())
	return nil
}

// OnMinted records a liability increase on the vault's tier and, for
// non-default tiers, its group. Increments that would breach either ceiling
// are rejected.
func (g *Grid) OnMinted(vault crypto.Address, shares *big.Int) error {
	if g == nil || g.state == nil {
		return errStateNotConfigured
	}
	if shares == nil || shares.Sign() <= 0 {
		return errInvalidShares
	}
	tier, group, err := g.vaultTierAndGroup(vault)
	if err != nil {
		return err
	}
	projected := new(big.Int).Add(tier.LiabilityShares, shares)
	if projected.Cmp(tier.ShareLimit) > 0 {
		return errTierCapacity
	}
	var groupProjected *big.Int
	if group != nil {
		groupProjected = new(big.Int).Add(group.LiabilityShares, shares)
		if groupProjected.Cmp(group.ShareLimit) > 0 {
			return errGroupCapacity
		}
	}
	tier.LiabilityShares = projected
	if err := g.state.PutTier(tier); err != nil {
		return err
	}
	if group != nil {
		group.LiabilityShares = groupProjected
		if err := g.state.PutGroup(group); err != nil {
			return err
		}
	}
	return nil
}

// OnBurned records a liability decrease on the vault's tier and group.
func (g *Grid) OnBurned(vault crypto.Address, shares *big.Int) error {
	if g == nil || g.state == nil {
		return errStateNotConfigured
	}
	if shares == nil || shares.Sign() <= 0 {
		return errInvalidShares
	}
	tier, group, err := g.vaultTierAndGroup(vault)
	if err != nil {
		return err
	}
	if tier.LiabilityShares.Cmp(shares) < 0 {
		return errBurnExceedsLiability
	}
	if group != nil && group.LiabilityShares.Cmp(shares) < 0 {
		return errBurnExceedsLiability
	}
	tier.LiabilityShares = new(big.Int).Sub(tier.LiabilityShares, shares)
	if err := g.state.PutTier(tier); err != nil {
		return err
	}
	if group != nil {
		group.LiabilityShares = new(big.Int).Sub(group.LiabilityShares, shares)
		if err := g.state.PutGroup(group); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveShareLimit reports the binding ceiling for the vault: the minimum
// of its own configured limit and the tier and group headroom, each
// inclusive of the vault's already-issued liability so outstanding shares are
// not double-penalized.
func (g *Grid) EffectiveShareLimit(vault crypto.Address) (*big.Int, error) {
	if g == nil || g.state == nil {
		return nil, errStateNotConfigured
	}
	if g.directory == nil {
		return nil, errDirectoryNotConfigured
	}
	connLimit, err := g.directory.VaultShareLimit(vault)
	if err != nil {
		return nil, err
	}
	load, err := g.directory.VaultLiabilityShares(vault)
	if err != nil {
		return nil, err
	}
	if load == nil {
		load = big.NewInt(0)
	}
	tier, group, err := g.vaultTierAndGroup(vault)
	if err != nil {
		return nil, err
	}

	limit := new(big.Int).Set(connLimit)
	tierRoom := new(big.Int).Sub(tier.ShareLimit, tier.LiabilityShares)
	if tierRoom.Sign() < 0 {
		tierRoom = big.NewInt(0)
	}
	tierRoom.Add(tierRoom, load)
	if tierRoom.Cmp(limit) < 0 {
		limit = tierRoom
	}
	if group != nil {
		groupRoom := new(big.Int).Sub(group.ShareLimit, group.LiabilityShares)
		if groupRoom.Sign() < 0 {
			groupRoom = big.NewInt(0)
		}
		groupRoom.Add(groupRoom, load)
		if groupRoom.Cmp(limit) < 0 {
			limit = groupRoom
		}
	}
	return limit, nil
}

// VaultTierID reports the tier a vault currently occupies.
func (g *Grid) VaultTierID(vault crypto.Address) (uint64, error) {
	if g == nil || g.state == nil {
		return 0, errStateNotConfigured
	}
	return g.state.VaultTier(vault)
}

// TierByID returns the stored tier, or an error when it does not exist.
func (g *Grid) TierByID(id uint64) (*Tier, error) {
	if g == nil || g.state == nil {
		return nil, errStateNotConfigured
	}
	tier, err := g.state.GetTier(id)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, errTierNotFound
	}
	return ensureTier(tier), nil
}

// GroupByOperator returns the stored group, or an error when it does not
// exist.
func (g *Grid) GroupByOperator(operator crypto.Address) (*Group, error) {
	if g == nil || g.state == nil {
		return nil, errStateNotConfigured
	}
	group, err := g.state.GetGroup(operator)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, errGroupNotFound
	}
	return ensureGroup(group), nil
}

func (g *Grid) vaultTierAndGroup(vault crypto.Address) (*Tier, *Group, error) {
	tierID, err := g.state.VaultTier(vault)
	if err != nil {
		return nil, nil, err
	}
	tier, err := g.state.GetTier(tierID)
	if err != nil {
		return nil, nil, err
	}
	if tier == nil {
		return nil, nil, errTierNotFound
	}
	tier = ensureTier(tier)
	if tierID == DefaultTierID {
		return tier, nil, nil
	}
	group, err := g.state.GetGroup(tier.Operator)
	if err != nil {
		return nil, nil, err
	}
	if group == nil {
		return nil, nil, errGroupNotFound
	}
	return tier, ensureGroup(group), nil
}
