package confirm

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stakehub/core/events"
	"stakehub/core/types"
	"stakehub/crypto"
)

var (
	errStateNotConfigured = errors.New("confirm registry: state not configured")
	errNoRequired         = errors.New("confirm registry: required capability set empty")
	errNotAuthorized      = errors.New("confirm registry: caller holds no required capability")
)

// Capability names a role whose sign-off gates a guarded operation, e.g. the
// vault owner or the node operator.
type Capability string

// CapabilityView resolves whether a caller holds a capability in the context
// of the operation being confirmed. The guarded component supplies the view
// per call because capability membership usually depends on the subject (a
// vault's owner differs per vault).
type CapabilityView interface {
	HasCapability(caller crypto.Address, capability Capability) bool
}

type registryState interface {
	ConfirmationGet(fingerprint [32]byte) (map[Capability]uint64, error)
	ConfirmationPut(fingerprint [32]byte, capability Capability, timestamp uint64) error
	ConfirmationClear(fingerprint [32]byte) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Registry implements the multi-party approval primitive. A guarded action
// may run only once every required capability has signed off on the same
// operation fingerprint within the validity window.
type Registry struct {
	state   registryState
	emitter events.Emitter
	nowFn   func() uint64
	expiry  uint64
}

// NewRegistry constructs a registry with the provided confirmation validity
// window in seconds.
func NewRegistry(expirySeconds uint64) *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
		expiry:  expirySeconds,
	}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source used to stamp confirmations. Nil
// restores the default unix clock.
func (r *Registry) SetNowFunc(now func() uint64) {
	if now == nil {
		r.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	r.nowFn = now
}

// SetExpiry updates the confirmation validity window in seconds.
func (r *Registry) SetExpiry(expirySeconds uint64) {
	if r == nil {
		return
	}
	r.expiry = expirySeconds
}

func (r *Registry) emit(event *types.Event) {
	if r == nil || r.emitter == nil || event == nil {
		return
	}
	r.emitter.Emit(registryEvent{evt: event})
}

// Confirm records the caller's sign-off on the fingerprint and reports
// whether the guarded action may proceed. When the tally of fresh
// confirmations covers every required capability the stored records are
// cleared and true is returned; the caller is expected to run the guarded
// action in the same call. Otherwise the new signature persists and false is
// returned.
func (r *Registry) Confirm(view CapabilityView, caller crypto.Address, fingerprint [32]byte, required []Capability) (bool, error) {
	if r == nil || r.state == nil {
		return false, errStateNotConfigured
	}
	if len(required) == 0 {
		return false, errNoRequired
	}

	held := make([]Capability, 0, len(required))
	for _, capability := range required {
		if view != nil && view.HasCapability(caller, capability) {
			held = append(held, capability)
		}
	}
	if len(held) == 0 {
		return false, errNotAuthorized
	}

	recorded, err := r.state.ConfirmationGet(fingerprint)
	if err != nil {
		return false, err
	}

	now := r.nowFn()
	var cutoff uint64
	if r.expiry < now {
		cutoff = now - r.expiry
	}

	fresh := make(map[Capability]struct{}, len(required))
	for capability, ts := range recorded {
		if ts >= cutoff {
			fresh[capability] = struct{}{}
		}
	}
	for _, capability := range held {
		fresh[capability] = struct{}{}
	}

	tally := 0
	for _, capability := range required {
		if _, ok := fresh[capability]; ok {
			tally++
		}
	}

	for _, capability := range held {
		r.emit(events.ConfirmationCast{
			Fingerprint: fingerprint,
			Caller:      caller,
			Capability:  string(capability),
			Tally:       tally,
			Required:    len(required),
		}.Event())
	}

	if tally == len(required) {
		if err := r.state.ConfirmationClear(fingerprint); err != nil {
			return false, err
		}
		r.emit(events.ConfirmationComplete{Fingerprint: fingerprint}.Event())
		return true, nil
	}

	for _, capability := range held {
		if err := r.state.ConfirmationPut(fingerprint, capability, now); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Fingerprint derives the operation identity hashed over the supplied parts.
// Callers include every parameter of the guarded operation so a changed
// payload starts a fresh confirmation round.
func Fingerprint(parts ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(parts...))
	return out
}

// Uint64Bytes renders v as a fixed 8-byte big-endian slice for fingerprint
// composition.
func Uint64Bytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// BigIntBytes renders v as its canonical big-endian byte form for
// fingerprint composition. Nil renders as empty.
func BigIntBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}
