package relay

import (
	"errors"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/crypto"
	"github.com/eigerco/beacon/internal/groups"
	"github.com/eigerco/beacon/internal/height"
)

// GenesisEntry is the previous entry of the very first request
var GenesisEntry = crypto.HashToG1([]byte("beacon genesis entry")).Marshal()

// Verifier checks a group signature over a message
type Verifier interface {
	Verify(pubKey, message, signature []byte) (bool, error)
}

// Request is a pending relay entry request
type Request struct {
	ID            uint64
	StartHeight   height.Height
	PreviousEntry []byte
	GroupIndex    uint64
	CallbackGas   uint64
	Requester     common.Address
	Payment       uint256.Int
	Fees          Fees
}

// Beacon is the relay state machine. At most one request is pending.
type Beacon struct {
	InProgress    bool
	Current       Request
	LastEntry     []byte
	NextRequestID uint64
	EntryCount    uint64
}

// NewBeacon starts from the genesis entry
func NewBeacon() Beacon {
	return Beacon{LastEntry: slices.Clone(GenesisEntry), NextRequestID: 1}
}

// Clone returns a deep copy
func (b *Beacon) Clone() Beacon {
	c := *b
	c.LastEntry = slices.Clone(b.LastEntry)
	c.Current.PreviousEntry = slices.Clone(b.Current.PreviousEntry)
	return c
}

// TimedOut reports whether the pending request can no longer be served
func (b *Beacon) TimedOut(params config.Params, h height.Height) bool {
	w := height.Window{Start: b.Current.StartHeight, Length: params.RelayEntryTimeout}
	return b.InProgress && w.Exceeded(h)
}

// Request opens a new request signed by a group selected from the last
// entry. The pending request blocks new ones even after it timed out, until
// the timeout is reported.
func (b *Beacon) Request(params config.Params, callbackGas uint64, payment uint256.Int, requester common.Address, h height.Height, registry *groups.Registry) (Request, error) {
	if b.InProgress {
		return Request{}, ErrBeaconBusy
	}

	if callbackGas > params.CallbackGasLimit {
		return Request{}, ErrCallbackGasTooHigh
	}
	fees, err := EntryFees(params, callbackGas)
	if err != nil {
		return Request{}, err
	}
	minimum, err := fees.Total()
	if err != nil {
		return Request{}, err
	}
	if payment.Lt(&minimum) {
		return Request{}, ErrInsufficientPayment
	}

	index, err := registry.SelectGroup(params, crypto.KeccakData(b.LastEntry).Uint256(), h)
	if err != nil {
		return Request{}, err
	}

	b.Current = Request{
		ID:            b.NextRequestID,
		StartHeight:   h,
		PreviousEntry: slices.Clone(b.LastEntry),
		GroupIndex:    index,
		CallbackGas:   callbackGas,
		Requester:     requester,
		Payment:       payment,
		Fees:          fees,
	}
	b.NextRequestID++
	b.InProgress = true
	return b.Current, nil
}

// Submitted describes an accepted entry
type Submitted struct {
	Request Request
	Entry   []byte
	Rewards EntryRewards
}

// Submit accepts the group signature over the previous entry as the new
// entry. Signatures may be compressed or uncompressed G1 points; the stored
// entry is always uncompressed.
func (b *Beacon) Submit(params config.Params, signature []byte, h height.Height, registry *groups.Registry, verifier Verifier) (Submitted, error) {
	if !b.InProgress {
		return Submitted{}, ErrNoEntryInProgress
	}
	if b.TimedOut(params, h) {
		return Submitted{}, ErrEntryTimedOut
	}
	if len(signature) != crypto.G1Size && len(signature) != crypto.G1CompressedSize {
		return Submitted{}, ErrInvalidG1Length
	}

	g, err := registry.Get(b.Current.GroupIndex)
	if err != nil {
		return Submitted{}, err
	}
	ok, err := verifier.Verify(g.PublicKey, b.Current.PreviousEntry, signature)
	if err != nil || !ok {
		return Submitted{}, ErrInvalidSignature
	}
	entry, err := crypto.NormalizeG1(signature)
	if err != nil {
		return Submitted{}, ErrInvalidSignature
	}

	rewards, err := ComputeRewards(params, b.Current.Fees, b.Current.StartHeight, h)
	if err != nil {
		return Submitted{}, err
	}
	if err := registry.AddMemberReward(b.Current.GroupIndex, rewards.MemberReward); err != nil {
		return Submitted{}, err
	}

	out := Submitted{Request: b.Current, Entry: entry, Rewards: rewards}
	b.LastEntry = entry
	b.EntryCount++
	b.InProgress = false
	b.Current = Request{}
	return out, nil
}

// TimeoutReport describes what a timeout report changed
type TimeoutReport struct {
	Request         Request
	TerminatedGroup uint64
	Members         []common.Address
	Retried         bool
}

// ReportTimeout terminates the group that failed to produce the entry and
// hands the request to another active group. Without active groups the
// request is dropped and the beacon becomes idle.
func (b *Beacon) ReportTimeout(params config.Params, h height.Height, registry *groups.Registry) (TimeoutReport, error) {
	if !b.InProgress {
		return TimeoutReport{}, ErrNoEntryInProgress
	}
	if !b.TimedOut(params, h) {
		return TimeoutReport{}, ErrEntryNotTimedOut
	}

	failed := b.Current.GroupIndex
	g, err := registry.Get(failed)
	if err != nil {
		return TimeoutReport{}, err
	}
	members := slices.Clone(g.Members)
	if err := registry.Terminate(failed, h); err != nil {
		return TimeoutReport{}, err
	}

	report := TimeoutReport{Request: b.Current, TerminatedGroup: failed, Members: members}

	index, err := registry.SelectGroup(params, crypto.KeccakData(b.Current.PreviousEntry).Uint256(), h)
	switch {
	case errors.Is(err, groups.ErrNoActiveGroups):
		b.InProgress = false
		b.Current = Request{}
		return report, nil
	case err != nil:
		return TimeoutReport{}, err
	}

	b.Current.GroupIndex = index
	b.Current.StartHeight = h
	report.Retried = true
	report.Request = b.Current
	return report, nil
}

// Seed turns an entry into the seed of the next group selection
func Seed(entry []byte) uint256.Int {
	return crypto.KeccakData(entry).Uint256()
}
