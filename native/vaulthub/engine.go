package vaulthub

import (
	"errors"
	"math/big"

	"stakehub/core/events"
	"stakehub/core/types"
	"stakehub/crypto"
	nativecommon "stakehub/native/common"
)

var (
	errStateNotConfigured       = errors.New("vault hub: state not configured")
	errCapacityNotConfigured    = errors.New("vault hub: capacity grid not configured")
	errObligationsNotConfigured = errors.New("vault hub: obligations ledger not configured")
	errZeroAddress              = errors.New("vault hub: zero address")
	errInvalidAmount            = errors.New("vault hub: amount must be positive")
	errInvalidReserveRatio      = errors.New("vault hub: reserve ratio out of range")
	errInvalidThreshold         = errors.New("vault hub: forced rebalance threshold exceeds reserve ratio")
	errInvalidFee               = errors.New("vault hub: fee rate exceeds 100%")
	errVaultExists              = errors.New("vault hub: vault already connected")
	errVaultNotFound            = errors.New("vault hub: vault not connected")
	errVaultDisconnecting       = errors.New("vault hub: vault pending disconnect")
	errMaxVaultsReached         = errors.New("vault hub: vault limit reached")
	errLiabilityOutstanding     = errors.New("vault hub: liability shares outstanding")
	errObligationsOutstanding   = errors.New("vault hub: unsettled obligations outstanding")
	errShareLimitExceeded       = errors.New("vault hub: share limit exceeded")
	errInsufficientReserve      = errors.New("vault hub: insufficient reserve for liability")
	errExceedsUnreserved        = errors.New("vault hub: amount exceeds unreserved value")
	errInsufficientBalance      = errors.New("vault hub: insufficient balance")
	errBurnExceedsLiability     = errors.New("vault hub: burn exceeds outstanding liability")
	errStaleReport              = errors.New("vault hub: report not newer than last applied")
	errFeesDecreased            = errors.New("vault hub: cumulative fees decreased")
	errNegativeValue            = errors.New("vault hub: reported value negative")
	errRebalanceNotRequired     = errors.New("vault hub: reserve ratio within threshold")
)

var basisPoints = big.NewInt(10_000)

const moduleName = "vaulthub"

type engineState interface {
	GetConnection(vault crypto.Address) (*Connection, error)
	PutConnection(conn *Connection) error
	GetVaultRecord(vault crypto.Address) (*VaultRecord, error)
	PutVaultRecord(record *VaultRecord) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	VaultCount() (int, error)
	ListVaults(offset, limit int) ([]crypto.Address, error)
}

// CapacityGrid is the slice of the operator grid the registry consults on
// every liability-affecting operation.
type CapacityGrid interface {
	OnMinted(vault crypto.Address, shares *big.Int) error
	OnBurned(vault crypto.Address, shares *big.Int) error
	ResetToDefault(vault crypto.Address) error
	EffectiveShareLimit(vault crypto.Address) (*big.Int, error)
}

// ObligationsLedger is the claim-accounting surface the registry settles
// against when reports land and consults before releasing value.
type ObligationsLedger interface {
	AssignWithdrawals(vault crypto.Address, value, liabilityValue *big.Int) error
	Settle(vault crypto.Address, available, newFeeAccrual *big.Int) (*big.Int, *big.Int, error)
	Outstanding(vault crypto.Address) (*big.Int, error)
}

type hubEvent struct {
	evt *types.Event
}

func (e hubEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e hubEvent) Event() *types.Event { return e.evt }

// Engine is the top-level ledger for connected vaults. It owns the
// authoritative per-vault accounting record, enforces the solvency
// invariant, and orchestrates the capacity grid and obligations ledger on
// every liability-affecting operation.
type Engine struct {
	state       engineState
	capacity    CapacityGrid
	obligations ObligationsLedger
	emitter     events.Emitter
	pauses      nativecommon.PauseView

	treasury        crypto.Address
	withdrawalQueue crypto.Address
	maxVaults       int

	// Liability shares convert to underlying value through the global share
	// rate rateNum/rateDen.
	rateNum *big.Int
	rateDen *big.Int
}

// NewEngine constructs a vault hub engine paying settled claims to the
// supplied treasury and withdrawal queue accounts. The share rate defaults
// to 1:1.
func NewEngine(treasury, withdrawalQueue crypto.Address) *Engine {
	return &Engine{
		emitter:         events.NoopEmitter{},
		treasury:        treasury,
		withdrawalQueue: withdrawalQueue,
		rateNum:         big.NewInt(1),
		rateDen:         big.NewInt(1),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCapacityGrid wires the hierarchical limit authority.
func (e *Engine) SetCapacityGrid(grid CapacityGrid) { e.capacity = grid }

// SetObligations wires the obligations ledger.
func (e *Engine) SetObligations(ledger ObligationsLedger) { e.obligations = ledger }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the governance pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetMaxVaults caps how many vaults may connect. Zero disables the cap.
func (e *Engine) SetMaxVaults(limit int) {
	if e == nil {
		return
	}
	e.maxVaults = limit
}

// SetShareRate updates the global liability exchange rate. Both terms must
// be positive.
func (e *Engine) SetShareRate(num, den *big.Int) {
	if e == nil || num == nil || den == nil || num.Sign() <= 0 || den.Sign() <= 0 {
		return
	}
	e.rateNum = new(big.Int).Set(num)
	e.rateDen = new(big.Int).Set(den)
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(hubEvent{evt: event})
}

// liabilityValue converts shares to underlying value, rounding up so the
// solvency check never understates the claim.
func (e *Engine) liabilityValue(shares *big.Int) *big.Int {
	if shares == nil || shares.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(shares, e.rateNum)
	num.Add(num, new(big.Int).Sub(e.rateDen, big.NewInt(1)))
	return num.Quo(num, e.rateDen)
}

// sharesForValue converts value to shares, rounding down so a rebalance
// never retires more liability than the value moved covers.
func (e *Engine) sharesForValue(value *big.Int) *big.Int {
	if value == nil || value.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(value, e.rateDen)
	return num.Quo(num, e.rateNum)
}

// lockedValue is the minimum total value the vault must hold to back the
// liability at its reserve ratio: liabilityValue / (1 - reserveRatio),
// rounded up.
func lockedValue(liabilityValue *big.Int, reserveRatioBps uint64) *big.Int {
	if liabilityValue == nil || liabilityValue.Sign() == 0 {
		return big.NewInt(0)
	}
	den := new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(reserveRatioBps))
	num := new(big.Int).Mul(liabilityValue, basisPoints)
	num.Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	return num.Quo(num, den)
}

// totalValue is the vault's accounted value: the last applied report plus
// funding activity since that report.
func totalValue(record *VaultRecord) *big.Int {
	value := new(big.Int).Set(record.Report.TotalValue)
	delta := new(big.Int).Sub(record.InOutDelta, record.Report.InOutDelta)
	return value.Add(value, delta)
}

func ensureRecord(record *VaultRecord) *VaultRecord {
	if record == nil {
		return nil
	}
	if record.LiabilityShares == nil {
		record.LiabilityShares = big.NewInt(0)
	}
	if record.InOutDelta == nil {
		record.InOutDelta = big.NewInt(0)
	}
	if record.Report.TotalValue == nil {
		record.Report.TotalValue = big.NewInt(0)
	}
	if record.Report.InOutDelta == nil {
		record.Report.InOutDelta = big.NewInt(0)
	}
	if record.CumulativeFees == nil {
		record.CumulativeFees = big.NewInt(0)
	}
	return record
}

func (e *Engine) loadConnection(vault crypto.Address) (*Connection, error) {
	conn, err := e.state.GetConnection(vault)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, errVaultNotFound
	}
	if conn.ShareLimit == nil {
		conn.ShareLimit = big.NewInt(0)
	}
	return conn, nil
}

func (e *Engine) loadRecord(vault crypto.Address) (*VaultRecord, error) {
	record, err := e.state.GetVaultRecord(vault)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errVaultNotFound
	}
	return ensureRecord(record), nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Ensure(), nil
}

// Connect registers a vault with the supplied connection limits and creates
// its zeroed accounting record.
func (e *Engine) Connect(vault, owner, operator crypto.Address, limits ConnectionLimits) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if vault.IsZero() || owner.IsZero() || operator.IsZero() {
		return errZeroAddress
	}
	if limits.ShareLimit == nil || limits.ShareLimit.Sign() < 0 {
		return errInvalidAmount
	}
	if limits.ReserveRatioBps == 0 || limits.ReserveRatioBps >= 10_000 {
		return errInvalidReserveRatio
	}
	if limits.ForcedRebalanceThresholdBps > limits.ReserveRatioBps {
		return errInvalidThreshold
	}
	if limits.InfraFeeBps > 10_000 || limits.LiquidityFeeBps > 10_000 || limits.ReservationFeeBps > 10_000 {
		return errInvalidFee
	}
	existing, err := e.state.GetConnection(vault)
	if err != nil {
		return err
	}
	if existing != nil {
		return errVaultExists
	}
	if e.maxVaults > 0 {
		count, err := e.state.VaultCount()
		if err != nil {
			return err
		}
		if count >= e.maxVaults {
			return errMaxVaultsReached
		}
	}

	conn := &Connection{
		Vault:                       vault,
		Owner:                       owner,
		NodeOperator:                operator,
		ShareLimit:                  new(big.Int).Set(limits.ShareLimit),
		ReserveRatioBps:             limits.ReserveRatioBps,
		ForcedRebalanceThresholdBps: limits.ForcedRebalanceThresholdBps,
		InfraFeeBps:                 limits.InfraFeeBps,
		LiquidityFeeBps:             limits.LiquidityFeeBps,
		ReservationFeeBps:           limits.ReservationFeeBps,
	}
	if err := e.state.PutConnection(conn); err != nil {
		return err
	}
	record := ensureRecord(&VaultRecord{Vault: vault})
	if err := e.state.PutVaultRecord(record); err != nil {
		return err
	}
	e.emit(events.VaultConnected{
		Vault:        vault,
		Owner:        owner,
		NodeOperator: operator,
		ShareLimit:   new(big.Int).Set(limits.ShareLimit),
		ReserveRatio: limits.ReserveRatioBps,
	}.Event())
	return nil
}

// Disconnect flags a vault for removal. All liability shares must be burned
// and all obligations settled first; the vault then returns to the default
// tier.
func (e *Engine) Disconnect(vault crypto.Address) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.capacity == nil {
		return errCapacityNotConfigured
	}
	if e.obligations == nil {
		return errObligationsNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	if conn.PendingDisconnect {
		return errVaultDisconnecting
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	if record.LiabilityShares.Sign() != 0 {
		return errLiabilityOutstanding
	}
	outstanding, err := e.obligations.Outstanding(vault)
	if err != nil {
		return err
	}
	if outstanding.Sign() != 0 {
		return errObligationsOutstanding
	}
	if err := e.capacity.ResetToDefault(vault); err != nil {
		return err
	}
	conn.PendingDisconnect = true
	if err := e.state.PutConnection(conn); err != nil {
		return err
	}
	e.emit(events.VaultDisconnected{Vault: vault}.Event())
	return nil
}

// Fund moves collateral from the funder into the vault and records the
// funding delta.
func (e *Engine) Fund(funder, vault crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	if conn.PendingDisconnect {
		return errVaultDisconnecting
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	funderAcc, err := e.loadAccount(funder)
	if err != nil {
		return err
	}
	if funderAcc.Balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	vaultAcc, err := e.loadAccount(vault)
	if err != nil {
		return err
	}

	funderAcc.Balance = new(big.Int).Sub(funderAcc.Balance, amount)
	vaultAcc.Balance = new(big.Int).Add(vaultAcc.Balance, amount)
	if err := e.state.PutAccount(funder, funderAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(vault, vaultAcc); err != nil {
		return err
	}

	record.InOutDelta = new(big.Int).Add(record.InOutDelta, amount)
	if err := e.state.PutVaultRecord(record); err != nil {
		return err
	}
	e.emit(events.VaultFunded{
		Vault:      vault,
		Amount:     new(big.Int).Set(amount),
		InOutDelta: new(big.Int).Set(record.InOutDelta),
	}.Event())
	return nil
}

// unreservedValue is what the vault may release without breaching either the
// reserve requirement or its outstanding obligations.
func (e *Engine) unreservedValue(conn *Connection, record *VaultRecord) (*big.Int, error) {
	outstanding, err := e.obligations.Outstanding(conn.Vault)
	if err != nil {
		return nil, err
	}
	locked := lockedValue(e.liabilityValue(record.LiabilityShares), conn.ReserveRatioBps)
	if outstanding.Cmp(locked) > 0 {
		locked = outstanding
	}
	unreserved := new(big.Int).Sub(totalValue(record), locked)
	if unreserved.Sign() < 0 {
		unreserved = big.NewInt(0)
	}
	return unreserved, nil
}

// Withdraw releases unreserved collateral from the vault to the recipient.
func (e *Engine) Withdraw(vault, recipient crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.obligations == nil {
		return errObligationsNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if recipient.IsZero() {
		return errZeroAddress
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	unreserved, err := e.unreservedValue(conn, record)
	if err != nil {
		return err
	}
	if amount.Cmp(unreserved) > 0 {
		return errExceedsUnreserved
	}
	vaultAcc, err := e.loadAccount(vault)
	if err != nil {
		return err
	}
	if vaultAcc.Balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	recipientAcc, err := e.loadAccount(recipient)
	if err != nil {
		return err
	}

	vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, amount)
	recipientAcc.Balance = new(big.Int).Add(recipientAcc.Balance, amount)
	if err := e.state.PutAccount(vault, vaultAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(recipient, recipientAcc); err != nil {
		return err
	}

	record.InOutDelta = new(big.Int).Sub(record.InOutDelta, amount)
	if err := e.state.PutVaultRecord(record); err != nil {
		return err
	}
	e.emit(events.VaultWithdrawn{
		Vault:      vault,
		Recipient:  recipient,
		Amount:     new(big.Int).Set(amount),
		InOutDelta: new(big.Int).Set(record.InOutDelta),
	}.Event())
	return nil
}

// MintLiability issues liability shares against the vault's collateral. The
// post-mint locked requirement must stay within the vault's total value and
// the capacity grid must report headroom at tier and group level.
func (e *Engine) MintLiability(vault, recipient crypto.Address, shares *big.Int) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.capacity == nil {
		return errCapacityNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if shares == nil || shares.Sign() <= 0 {
		return errInvalidAmount
	}
	if recipient.IsZero() {
		return errZeroAddress
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	if conn.PendingDisconnect {
		return errVaultDisconnecting
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}

	projected := new(big.Int).Add(record.LiabilityShares, shares)
	if projected.Cmp(conn.ShareLimit) > 0 {
		return errShareLimitExceeded
	}
	locked := lockedValue(e.liabilityValue(projected), conn.ReserveRatioBps)
	if locked.Cmp(totalValue(record)) > 0 {
		return errInsufficientReserve
	}
	if err := e.capacity.OnMinted(vault, shares); err != nil {
		return err
	}

	recipientAcc, err := e.loadAccount(recipient)
	if err != nil {
		return err
	}
	recipientAcc.LiabilityTokens = new(big.Int).Add(recipientAcc.LiabilityTokens, shares)
	if err := e.state.PutAccount(recipient, recipientAcc); err != nil {
		return err
	}

	record.LiabilityShares = projected
	if err := e.state.PutVaultRecord(record); err != nil {
		return err
	}
	e.emit(events.VaultMinted{
		Vault:           vault,
		Recipient:       recipient,
		Shares:          new(big.Int).Set(shares),
		LiabilityShares: new(big.Int).Set(projected),
	}.Event())
	return nil
}

// BurnLiability retires liability shares from the vault owner's token
// balance.
func (e *Engine) BurnLiability(vault crypto.Address, shares *big.Int) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.capacity == nil {
		return errCapacityNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if shares == nil || shares.Sign() <= 0 {
		return errInvalidAmount
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	if record.LiabilityShares.Cmp(shares) < 0 {
		return errBurnExceedsLiability
	}
	ownerAcc, err := e.loadAccount(conn.Owner)
	if err != nil {
		return err
	}
	if ownerAcc.LiabilityTokens.Cmp(shares) < 0 {
		return errInsufficientBalance
	}
	if err := e.capacity.OnBurned(vault, shares); err != nil {
		return err
	}

	ownerAcc.LiabilityTokens = new(big.Int).Sub(ownerAcc.LiabilityTokens, shares)
	if err := e.state.PutAccount(conn.Owner, ownerAcc); err != nil {
		return err
	}
	record.LiabilityShares = new(big.Int).Sub(record.LiabilityShares, shares)
	if err := e.state.PutVaultRecord(record); err != nil {
		return err
	}
	e.emit(events.VaultBurned{
		Vault:           vault,
		Shares:          new(big.Int).Set(shares),
		LiabilityShares: new(big.Int).Set(record.LiabilityShares),
	}.Event())
	return nil
}

// Rebalance moves value from the vault back to the treasury and burns the
// equivalent liability shares.
func (e *Engine) Rebalance(vault crypto.Address, amount *big.Int) error {
	return e.rebalance(vault, amount, false)
}

// ForceRebalance is the permissionless path available once the vault's
// reserve shortfall crosses the forced-rebalance threshold. It moves exactly
// the value needed to restore the reserve ratio, bounded by the vault's
// balance.
func (e *Engine) ForceRebalance(vault crypto.Address) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	required, err := e.forcedRebalanceAmount(conn, record)
	if err != nil {
		return err
	}
	vaultAcc, err := e.loadAccount(vault)
	if err != nil {
		return err
	}
	if required.Cmp(vaultAcc.Balance) > 0 {
		required = new(big.Int).Set(vaultAcc.Balance)
	}
	if required.Sign() <= 0 {
		return errInsufficientBalance
	}
	return e.rebalance(vault, required, true)
}

// ForcedRebalanceRequired reports whether the vault's reserve shortfall has
// crossed the forced-rebalance threshold.
func (e *Engine) ForcedRebalanceRequired(vault crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errStateNotConfigured
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return false, err
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return false, err
	}
	_, err = e.forcedRebalanceAmount(conn, record)
	if errors.Is(err, errRebalanceNotRequired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// forcedRebalanceAmount solves for the smallest value transfer that restores
// liability <= (value - transferred) * (1 - reserveRatio).
func (e *Engine) forcedRebalanceAmount(conn *Connection, record *VaultRecord) (*big.Int, error) {
	liability := e.liabilityValue(record.LiabilityShares)
	value := totalValue(record)
	threshold := new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(conn.ForcedRebalanceThresholdBps))
	maxLiability := new(big.Int).Mul(value, threshold)
	maxLiability.Quo(maxLiability, basisPoints)
	if liability.Cmp(maxLiability) <= 0 {
		return nil, errRebalanceNotRequired
	}
	ratio := new(big.Int).SetUint64(conn.ReserveRatioBps)
	num := new(big.Int).Mul(liability, basisPoints)
	healthyValue := new(big.Int).Mul(value, new(big.Int).Sub(basisPoints, ratio))
	num.Sub(num, healthyValue)
	num.Add(num, new(big.Int).Sub(ratio, big.NewInt(1)))
	amount := num.Quo(num, ratio)
	if amount.Cmp(liability) > 0 {
		amount = liability
	}
	return amount, nil
}

func (e *Engine) rebalance(vault crypto.Address, amount *big.Int, forced bool) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.capacity == nil {
		return errCapacityNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	_, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	shares := e.sharesForValue(amount)
	if shares.Cmp(record.LiabilityShares) > 0 {
		return errBurnExceedsLiability
	}
	vaultAcc, err := e.loadAccount(vault)
	if err != nil {
		return err
	}
	if vaultAcc.Balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	if shares.Sign() > 0 {
		if err := e.capacity.OnBurned(vault, shares); err != nil {
			return err
		}
	}
	treasuryAcc, err := e.loadAccount(e.treasury)
	if err != nil {
		return err
	}

	vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, amount)
	treasuryAcc.Balance = new(big.Int).Add(treasuryAcc.Balance, amount)
	if err := e.state.PutAccount(vault, vaultAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.treasury, treasuryAcc); err != nil {
		return err
	}

	record.InOutDelta = new(big.Int).Sub(record.InOutDelta, amount)
	record.LiabilityShares = new(big.Int).Sub(record.LiabilityShares, shares)
	if err := e.state.PutVaultRecord(record); err != nil {
		return err
	}
	e.emit(events.VaultRebalanced{
		Vault:        vault,
		Amount:       new(big.Int).Set(amount),
		SharesBurned: new(big.Int).Set(shares),
		Forced:       forced,
	}.Event())
	return nil
}

// AssignWithdrawalsObligation records a withdrawal claim against the vault,
// capped at its current liability value.
func (e *Engine) AssignWithdrawalsObligation(vault crypto.Address, value *big.Int) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.obligations == nil {
		return errObligationsNotConfigured
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	return e.obligations.AssignWithdrawals(vault, value, e.liabilityValue(record.LiabilityShares))
}

// ApplyReport lands an oracle-smoothed valuation on the vault record and
// immediately settles outstanding obligations from the vault's balance,
// withdrawals before treasury fees. Only the report ingestion pipeline may
// call this; values arrive already quarantine-filtered.
func (e *Engine) ApplyReport(vault crypto.Address, timestamp uint64, reportValue, reportInOutDelta, cumulativeFees, liabilityShares *big.Int) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.obligations == nil {
		return errObligationsNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if reportValue == nil || reportValue.Sign() < 0 {
		return errNegativeValue
	}
	_, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return err
	}
	if timestamp <= record.Report.Timestamp {
		return errStaleReport
	}
	if cumulativeFees == nil || cumulativeFees.Cmp(record.CumulativeFees) < 0 {
		return errFeesDecreased
	}
	feeDelta := new(big.Int).Sub(cumulativeFees, record.CumulativeFees)

	record.Report = Report{
		TotalValue: new(big.Int).Set(reportValue),
		InOutDelta: new(big.Int).Set(reportInOutDelta),
		Timestamp:  timestamp,
	}
	record.CumulativeFees = new(big.Int).Set(cumulativeFees)

	vaultAcc, err := e.loadAccount(vault)
	if err != nil {
		return err
	}
	withdrawalsPaid, feesPaid, err := e.obligations.Settle(vault, vaultAcc.Balance, feeDelta)
	if err != nil {
		return err
	}

	moved := new(big.Int).Add(withdrawalsPaid, feesPaid)
	if moved.Sign() > 0 {
		vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, moved)
		if err := e.state.PutAccount(vault, vaultAcc); err != nil {
			return err
		}
		if withdrawalsPaid.Sign() > 0 {
			queueAcc, err := e.loadAccount(e.withdrawalQueue)
			if err != nil {
				return err
			}
			queueAcc.Balance = new(big.Int).Add(queueAcc.Balance, withdrawalsPaid)
			if err := e.state.PutAccount(e.withdrawalQueue, queueAcc); err != nil {
				return err
			}
		}
		if feesPaid.Sign() > 0 {
			treasuryAcc, err := e.loadAccount(e.treasury)
			if err != nil {
				return err
			}
			treasuryAcc.Balance = new(big.Int).Add(treasuryAcc.Balance, feesPaid)
			if err := e.state.PutAccount(e.treasury, treasuryAcc); err != nil {
				return err
			}
		}
		record.InOutDelta = new(big.Int).Sub(record.InOutDelta, moved)
	}

	if err := e.state.PutVaultRecord(record); err != nil {
		return err
	}
	e.emit(events.VaultReportApplied{
		Vault:           vault,
		Timestamp:       timestamp,
		TotalValue:      new(big.Int).Set(reportValue),
		InOutDelta:      new(big.Int).Set(reportInOutDelta),
		CumulativeFees:  new(big.Int).Set(cumulativeFees),
		WithdrawalsPaid: withdrawalsPaid,
		FeesPaid:        feesPaid,
	}.Event())
	return nil
}

// LatestReport exposes the last applied report for the ingestion pipeline's
// reference-slot arithmetic.
func (e *Engine) LatestReport(vault crypto.Address) (*big.Int, *big.Int, uint64, error) {
	if e == nil || e.state == nil {
		return nil, nil, 0, errStateNotConfigured
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return nil, nil, 0, err
	}
	return new(big.Int).Set(record.Report.TotalValue), new(big.Int).Set(record.Report.InOutDelta), record.Report.Timestamp, nil
}

// InOutDelta exposes the vault's current cumulative funding delta.
func (e *Engine) InOutDelta(vault crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(record.InOutDelta), nil
}

// TotalValue exposes the vault's accounted value.
func (e *Engine) TotalValue(vault crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return nil, err
	}
	return totalValue(record), nil
}

// VaultConnection returns a copy of the vault's connection.
func (e *Engine) VaultConnection(vault crypto.Address) (*Connection, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return nil, err
	}
	out := *conn
	out.ShareLimit = new(big.Int).Set(conn.ShareLimit)
	return &out, nil
}

// Record returns a copy of the vault's accounting record.
func (e *Engine) Record(vault crypto.Address) (*VaultRecord, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	record, err := e.loadRecord(vault)
	if err != nil {
		return nil, err
	}
	out := VaultRecord{
		Vault:           record.Vault,
		LiabilityShares: new(big.Int).Set(record.LiabilityShares),
		InOutDelta:      new(big.Int).Set(record.InOutDelta),
		Report: Report{
			TotalValue: new(big.Int).Set(record.Report.TotalValue),
			InOutDelta: new(big.Int).Set(record.Report.InOutDelta),
			Timestamp:  record.Report.Timestamp,
		},
		CumulativeFees: new(big.Int).Set(record.CumulativeFees),
	}
	return &out, nil
}

// ListVaults returns paginated connection+record snapshots for dashboards
// and external collaborators.
func (e *Engine) ListVaults(offset, limit int) ([]VaultSnapshot, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	vaults, err := e.state.ListVaults(offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]VaultSnapshot, 0, len(vaults))
	for _, vault := range vaults {
		conn, err := e.VaultConnection(vault)
		if err != nil {
			return nil, err
		}
		record, err := e.Record(vault)
		if err != nil {
			return nil, err
		}
		out = append(out, VaultSnapshot{Connection: *conn, Record: *record})
	}
	return out, nil
}

// VaultOwner implements the grid's vault directory.
func (e *Engine) VaultOwner(vault crypto.Address) (crypto.Address, error) {
	conn, err := e.loadConnection(vault)
	if err != nil {
		return crypto.Address{}, err
	}
	return conn.Owner, nil
}

// VaultOperator implements the grid's vault directory.
func (e *Engine) VaultOperator(vault crypto.Address) (crypto.Address, error) {
	conn, err := e.loadConnection(vault)
	if err != nil {
		return crypto.Address{}, err
	}
	return conn.NodeOperator, nil
}

// VaultShareLimit implements the grid's vault directory.
func (e *Engine) VaultShareLimit(vault crypto.Address) (*big.Int, error) {
	conn, err := e.loadConnection(vault)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(conn.ShareLimit), nil
}

// VaultLiabilityShares implements the grid's vault directory.
func (e *Engine) VaultLiabilityShares(vault crypto.Address) (*big.Int, error) {
	record, err := e.loadRecord(vault)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(record.LiabilityShares), nil
}

// UpdateConnectionParams applies grid-authorized connection updates after a
// confirmed tier change.
func (e *Engine) UpdateConnectionParams(vault crypto.Address, shareLimit *big.Int, reserveRatioBps, forcedRebalanceThresholdBps, infraFeeBps, liquidityFeeBps, reservationFeeBps uint64) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if shareLimit == nil || shareLimit.Sign() < 0 {
		return errInvalidAmount
	}
	if reserveRatioBps == 0 || reserveRatioBps >= 10_000 {
		return errInvalidReserveRatio
	}
	if forcedRebalanceThresholdBps > reserveRatioBps {
		return errInvalidThreshold
	}
	conn, err := e.loadConnection(vault)
	if err != nil {
		return err
	}
	conn.ShareLimit = new(big.Int).Set(shareLimit)
	conn.ReserveRatioBps = reserveRatioBps
	conn.ForcedRebalanceThresholdBps = forcedRebalanceThresholdBps
	conn.InfraFeeBps = infraFeeBps
	conn.LiquidityFeeBps = liquidityFeeBps
	conn.ReservationFeeBps = reservationFeeBps
	return e.state.PutConnection(conn)
}
