package lazyoracle

import (
	"bytes"
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	gocid "github.com/ipfs/go-cid"

	"stakehub/core/events"
	"stakehub/core/types"
	"stakehub/crypto"
	nativecommon "stakehub/native/common"
)

var (
	errStateNotConfigured    = errors.New("lazy oracle: state not configured")
	errRegistryNotConfigured = errors.New("lazy oracle: vault registry not configured")
	errNotConsensus          = errors.New("lazy oracle: caller is not the consensus identity")
	errInvalidCID            = errors.New("lazy oracle: invalid metadata cid")
	errStaleRoot             = errors.New("lazy oracle: root not newer than current")
	errNoRoot                = errors.New("lazy oracle: no report root published")
	errInvalidProof          = errors.New("lazy oracle: merkle proof does not match root")
	errNegativeValue         = errors.New("lazy oracle: reported values must be non-negative")
	errValueTooWide          = errors.New("lazy oracle: reported values must fit in 256 bits")
)

var basisPoints = big.NewInt(10_000)

const moduleName = "lazyoracle"

// ReportRoot is the per-period commitment published by the oracle consensus:
// a Merkle root over all vault report leaves, the content id of the full
// off-chain report document, and the reference timestamp.
type ReportRoot struct {
	Root      [32]byte
	CID       string
	Timestamp uint64
}

// Quarantine holds the unexplained portion of a vault valuation until the
// cooldown period passes without the excess growing further.
type Quarantine struct {
	Vault     crypto.Address
	Excess    *big.Int
	StartedAt uint64
}

type oracleState interface {
	GetReportRoot() (*ReportRoot, error)
	PutReportRoot(root *ReportRoot) error
	GetQuarantine(vault crypto.Address) (*Quarantine, error)
	PutQuarantine(q *Quarantine) error
	ClearQuarantine(vault crypto.Address) error
}

// VaultRegistry is the slice of the vault hub the ingestion pipeline reads
// reference values from and lands smoothed reports on.
type VaultRegistry interface {
	LatestReport(vault crypto.Address) (*big.Int, *big.Int, uint64, error)
	InOutDelta(vault crypto.Address) (*big.Int, error)
	ApplyReport(vault crypto.Address, timestamp uint64, totalValue, inOutDelta, cumulativeFees, liabilityShares *big.Int) error
}

type oracleEvent struct {
	evt *types.Event
}

func (e oracleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e oracleEvent) Event() *types.Event { return e.evt }

// Engine accepts the periodic Merkle-committed valuation report and applies
// the per-vault quarantine filter before the registry sees any value. A
// valuation jump that cannot be explained by on-chain funding activity is
// held back for quarantinePeriod seconds instead of being credited at once.
type Engine struct {
	state    oracleState
	registry VaultRegistry
	emitter  events.Emitter
	pauses   nativecommon.PauseView

	consensus         crypto.Address
	maxRewardRatioBps uint64
	quarantinePeriod  uint64
}

// NewEngine constructs an ingestion engine trusting roots published by the
// given consensus identity.
func NewEngine(consensus crypto.Address, maxRewardRatioBps, quarantinePeriod uint64) *Engine {
	return &Engine{
		emitter:           events.NoopEmitter{},
		consensus:         consensus,
		maxRewardRatioBps: maxRewardRatioBps,
		quarantinePeriod:  quarantinePeriod,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state oracleState) { e.state = state }

// SetRegistry wires the vault hub the smoothed reports land on.
func (e *Engine) SetRegistry(registry VaultRegistry) { e.registry = registry }

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

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(oracleEvent{evt: event})
}

// PublishReportRoot stores a new report commitment, superseding the previous
// one. Only the configured consensus identity may publish, roots must move
// strictly forward in time, and the metadata reference must be a well-formed
// content id.
func (e *Engine) PublishReportRoot(caller crypto.Address, root [32]byte, metadataCID string, timestamp uint64) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !caller.Equal(e.consensus) {
		return errNotConsensus
	}
	if _, err := gocid.Decode(metadataCID); err != nil {
		return errInvalidCID
	}
	current, err := e.state.GetReportRoot()
	if err != nil {
		return err
	}
	if current != nil && timestamp <= current.Timestamp {
		return errStaleRoot
	}
	next := &ReportRoot{Root: root, CID: metadataCID, Timestamp: timestamp}
	if err := e.state.PutReportRoot(next); err != nil {
		return err
	}
	e.emit(events.OracleRootPublished{Root: root, CID: metadataCID, Timestamp: timestamp}.Event())
	return nil
}

// CurrentRoot returns the active report commitment.
func (e *Engine) CurrentRoot() (*ReportRoot, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	root, err := e.state.GetReportRoot()
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errNoRoot
	}
	out := *root
	return &out, nil
}

// QuarantineFor returns the active quarantine for a vault, or nil.
func (e *Engine) QuarantineFor(vault crypto.Address) (*Quarantine, error) {
	if e == nil || e.state == nil {
		return nil, errStateNotConfigured
	}
	q, err := e.state.GetQuarantine(vault)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, nil
	}
	out := Quarantine{Vault: q.Vault, Excess: new(big.Int).Set(q.Excess), StartedAt: q.StartedAt}
	return &out, nil
}

// IngestVaultReport verifies a report leaf against the current root, runs the
// quarantine filter, and hands the smoothed value to the registry. Anyone may
// submit a leaf; the proof is the authorization. Re-submitting a leaf already
// applied for the same reference timestamp is a no-op.
func (e *Engine) IngestVaultReport(vault crypto.Address, totalValue, cumulativeFees, liabilityShares *big.Int, proof [][32]byte) error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.registry == nil {
		return errRegistryNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if totalValue == nil || totalValue.Sign() < 0 || cumulativeFees == nil || cumulativeFees.Sign() < 0 || liabilityShares == nil || liabilityShares.Sign() < 0 {
		return errNegativeValue
	}
	// Leaf fields are hashed as 32-byte words; wider values cannot appear in
	// a valid report.
	if totalValue.BitLen() > 256 || cumulativeFees.BitLen() > 256 || liabilityShares.BitLen() > 256 {
		return errValueTooWide
	}
	root, err := e.state.GetReportRoot()
	if err != nil {
		return err
	}
	if root == nil {
		return errNoRoot
	}
	leaf := ReportLeaf(vault, totalValue, cumulativeFees, liabilityShares)
	if !VerifyProof(leaf, proof, root.Root) {
		return errInvalidProof
	}

	lastValue, lastDelta, lastTimestamp, err := e.registry.LatestReport(vault)
	if err != nil {
		return err
	}
	if root.Timestamp <= lastTimestamp {
		return nil
	}
	currentDelta, err := e.registry.InOutDelta(vault)
	if err != nil {
		return err
	}

	// refSlotValue is the valuation explainable purely by on-chain funding
	// activity since the last applied report.
	refSlotValue := new(big.Int).Add(lastValue, new(big.Int).Sub(currentDelta, lastDelta))
	if refSlotValue.Sign() < 0 {
		refSlotValue = big.NewInt(0)
	}

	applied, err := e.filterValue(vault, refSlotValue, totalValue, root.Timestamp)
	if err != nil {
		return err
	}
	return e.registry.ApplyReport(vault, root.Timestamp, applied, currentDelta, cumulativeFees, liabilityShares)
}

// filterValue runs the quarantine algorithm and returns the value the
// registry may credit this round.
func (e *Engine) filterValue(vault crypto.Address, refSlotValue, reported *big.Int, now uint64) (*big.Int, error) {
	limit := new(big.Int).Add(refSlotValue, e.rewardAllowance(refSlotValue))
	q, err := e.state.GetQuarantine(vault)
	if err != nil {
		return nil, err
	}

	if reported.Cmp(limit) <= 0 {
		// Routine reward growth. A quarantine whose excess no longer shows up
		// in the reported value has evaporated and is dropped, not credited.
		if q != nil {
			if err := e.state.ClearQuarantine(vault); err != nil {
				return nil, err
			}
			e.emit(events.OracleQuarantineReleased{Vault: vault, Released: big.NewInt(0)}.Event())
		}
		return new(big.Int).Set(reported), nil
	}

	excess := new(big.Int).Sub(reported, refSlotValue)
	if q == nil {
		held := &Quarantine{Vault: vault, Excess: excess, StartedAt: now}
		if err := e.state.PutQuarantine(held); err != nil {
			return nil, err
		}
		e.emit(events.OracleQuarantineOpened{Vault: vault, Excess: new(big.Int).Set(excess), StartedAt: now}.Event())
		return new(big.Int).Set(refSlotValue), nil
	}

	if now < q.StartedAt+e.quarantinePeriod {
		// Cooldown still running. The round is clamped and the new excess is
		// not folded in; the held amount keeps its original start time.
		return new(big.Int).Set(refSlotValue), nil
	}

	// Cooldown elapsed: the held excess is released. If the fresh excess
	// outgrew the held amount beyond the reward envelope, the remainder opens
	// a new quarantine window starting at this report's timestamp.
	released := new(big.Int).Set(q.Excess)
	envelope := new(big.Int).Add(q.Excess, e.rewardAllowance(refSlotValue))
	if excess.Cmp(envelope) <= 0 {
		if err := e.state.ClearQuarantine(vault); err != nil {
			return nil, err
		}
	} else {
		remainder := new(big.Int).Sub(excess, q.Excess)
		held := &Quarantine{Vault: vault, Excess: remainder, StartedAt: now}
		if err := e.state.PutQuarantine(held); err != nil {
			return nil, err
		}
		e.emit(events.OracleQuarantineOpened{Vault: vault, Excess: new(big.Int).Set(remainder), StartedAt: now}.Event())
	}
	e.emit(events.OracleQuarantineReleased{Vault: vault, Released: new(big.Int).Set(released)}.Event())
	return new(big.Int).Add(refSlotValue, released), nil
}

func (e *Engine) rewardAllowance(refSlotValue *big.Int) *big.Int {
	allowance := new(big.Int).Mul(refSlotValue, new(big.Int).SetUint64(e.maxRewardRatioBps))
	return allowance.Quo(allowance, basisPoints)
}

// ReportLeaf hashes a per-vault report tuple into its Merkle leaf.
func ReportLeaf(vault crypto.Address, totalValue, cumulativeFees, liabilityShares *big.Int) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(
		vault.Bytes(),
		bigTo32(totalValue),
		bigTo32(cumulativeFees),
		bigTo32(liabilityShares),
	))
	return out
}

// VerifyProof folds a sorted-pair Merkle proof over the leaf and compares the
// result to the expected root.
func VerifyProof(leaf [32]byte, proof [][32]byte, root [32]byte) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

// BuildRoot computes the sorted-pair Merkle root over leaves, duplicating the
// last leaf on odd levels. Used by the off-chain report builder and tests.
func BuildRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// ProofFor returns the sibling path for the leaf at index, matching the
// BuildRoot tree shape.
func ProofFor(leaves [][32]byte, index int) [][32]byte {
	if index < 0 || index >= len(leaves) {
		return nil
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	var proof [][32]byte
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		sibling := index ^ 1
		proof = append(proof, level[sibling])
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
		index /= 2
	}
	return proof
}

func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	return out
}

func bigTo32(v *big.Int) []byte {
	buf := make([]byte, 32)
	if v == nil || v.Sign() <= 0 {
		return buf
	}
	// Values beyond 256 bits keep their low-order word instead of panicking
	// in FillBytes; callers reject them before any state is touched.
	raw := v.Bytes()
	if len(raw) > 32 {
		raw = raw[len(raw)-32:]
	}
	copy(buf[32-len(raw):], raw)
	return buf
}
