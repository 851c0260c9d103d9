package rewards

import (
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/groups"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/safemath"
	"github.com/eigerco/beacon/internal/staking"
)

// Interval is the outcome of allocating one reward interval
type Interval struct {
	Created  uint64
	Amount   uint256.Int
	Share    uint256.Int
	Eligible []uint64
}

// Payment is a reward owed to a beneficiary
type Payment struct {
	Beneficiary common.Address
	Amount      uint256.Int
}

// Allocator distributes a fixed budget over consecutive intervals. The
// share of an interval is a weight of what is still unallocated, and each
// eligible group created in the interval gets an equal part of it.
type Allocator struct {
	FirstIntervalStart int64
	IntervalLength     int64
	Weights            []uint64
	MinimumGroups      uint64
	Unallocated        uint256.Int
	Intervals          []Interval
	Claimed            *bitset.BitSet
}

func NewAllocator(cfg config.Rewards) Allocator {
	return Allocator{
		FirstIntervalStart: cfg.FirstIntervalStart.Unix(),
		IntervalLength:     int64(cfg.IntervalLength / time.Second),
		Weights:            slices.Clone(cfg.IntervalWeights),
		MinimumGroups:      cfg.MinimumGroups,
		Unallocated:        cfg.Budget,
		Claimed:            bitset.New(0),
	}
}

// Clone returns a deep copy
func (a *Allocator) Clone() Allocator {
	c := *a
	c.Weights = slices.Clone(a.Weights)
	c.Intervals = slices.Clone(a.Intervals)
	for i := range c.Intervals {
		c.Intervals[i].Eligible = slices.Clone(a.Intervals[i].Eligible)
	}
	if a.Claimed != nil {
		c.Claimed = a.Claimed.Clone()
	}
	return c
}

// StartOf returns the unix time interval i begins at
func (a *Allocator) StartOf(i uint64) int64 {
	return a.FirstIntervalStart + int64(i)*a.IntervalLength
}

// EndOf returns the unix time interval i ends at, exclusive
func (a *Allocator) EndOf(i uint64) int64 {
	return a.StartOf(i + 1)
}

// IntervalOf returns the interval a unix time falls in
func (a *Allocator) IntervalOf(ts int64) (uint64, bool) {
	if ts < a.FirstIntervalStart || a.IntervalLength <= 0 {
		return 0, false
	}
	return uint64((ts - a.FirstIntervalStart) / a.IntervalLength), true
}

// Weight is the percentage of the unallocated pool interval i receives.
// Intervals past the table take everything left.
func (a *Allocator) Weight(i uint64) uint64 {
	if i < uint64(len(a.Weights)) {
		return a.Weights[i]
	}
	return 100
}

// Allocated reports whether interval i was allocated
func (a *Allocator) Allocated(i uint64) bool {
	return i < uint64(len(a.Intervals))
}

// AllocateInterval allocates interval i and every earlier interval that
// was not allocated yet, in order. It returns the newly allocated
// intervals keyed by number.
func (a *Allocator) AllocateInterval(i uint64, now int64, registry *groups.Registry) (map[uint64]Interval, error) {
	if a.Allocated(i) {
		return nil, ErrAlreadyAllocated
	}
	if now < a.EndOf(i) {
		return nil, ErrIntervalNotEnded
	}

	out := make(map[uint64]Interval)
	for next := uint64(len(a.Intervals)); next <= i; next++ {
		iv, err := a.allocate(next, registry)
		if err != nil {
			return nil, err
		}
		a.Intervals = append(a.Intervals, iv)
		out[next] = iv
	}
	return out, nil
}

func (a *Allocator) allocate(i uint64, registry *groups.Registry) (Interval, error) {
	start, end := a.StartOf(i), a.EndOf(i)

	var iv Interval
	for idx := range registry.Groups {
		g := &registry.Groups[idx]
		if g.RegisteredTime < start || g.RegisteredTime >= end {
			continue
		}
		iv.Created++
		if !g.Terminated {
			iv.Eligible = append(iv.Eligible, uint64(idx))
		}
	}

	amount, err := safemath.MulDiv(a.Unallocated, safemath.U64(a.Weight(i)), safemath.U64(100))
	if err != nil {
		return Interval{}, err
	}
	if a.MinimumGroups > 0 && iv.Created < a.MinimumGroups {
		amount, err = safemath.MulDiv(amount, safemath.U64(iv.Created), safemath.U64(a.MinimumGroups))
		if err != nil {
			return Interval{}, err
		}
	}
	if len(iv.Eligible) == 0 {
		return iv, nil
	}

	iv.Amount = amount
	iv.Share.Div(&amount, uint256.NewInt(uint64(len(iv.Eligible))))
	a.Unallocated = safemath.SaturatingSub(a.Unallocated, amount)
	return iv, nil
}

func (a *Allocator) intervalFor(g *groups.Group) (*Interval, error) {
	i, ok := a.IntervalOf(g.RegisteredTime)
	if !ok {
		return nil, ErrNotInInterval
	}
	if !a.Allocated(i) {
		return nil, ErrIntervalNotAllocated
	}
	iv := &a.Intervals[i]
	if !slices.Contains(iv.Eligible, g.Index) {
		return nil, ErrNotEligible
	}
	return iv, nil
}

func (a *Allocator) claim(index uint64) error {
	if a.Claimed == nil {
		a.Claimed = bitset.New(0)
	}
	if a.Claimed.Test(uint(index)) {
		return ErrRewardAlreadyClaimed
	}
	a.Claimed.Set(uint(index))
	return nil
}

// EligibleForReward reports whether the group's members can be paid now
func (a *Allocator) EligibleForReward(params config.Params, index uint64, h height.Height, registry *groups.Registry) bool {
	g, err := registry.Get(index)
	if err != nil || g.Terminated {
		return false
	}
	stale, err := registry.IsStale(params, index, h)
	return err == nil && stale
}

// ReceiveReward pays the interval share of a closed group to the
// beneficiaries of its members, share / members per seat.
func (a *Allocator) ReceiveReward(params config.Params, index uint64, h height.Height, registry *groups.Registry, st staking.Staking) ([]Payment, uint256.Int, error) {
	if !a.EligibleForReward(params, index, h, registry) {
		if _, err := registry.Get(index); err != nil {
			return nil, uint256.Int{}, err
		}
		return nil, uint256.Int{}, ErrGroupNotClosed
	}
	g, _ := registry.Get(index)

	iv, err := a.intervalFor(g)
	if err != nil {
		return nil, uint256.Int{}, err
	}
	if err := a.claim(index); err != nil {
		return nil, uint256.Int{}, err
	}
	if len(g.Members) == 0 {
		return nil, uint256.Int{}, nil
	}

	var perSeat uint256.Int
	perSeat.Div(&iv.Share, uint256.NewInt(uint64(len(g.Members))))

	payments := make([]Payment, 0, len(g.Members))
	var total uint256.Int
	for _, m := range g.Members {
		payments = append(payments, Payment{Beneficiary: st.BeneficiaryOf(m), Amount: perSeat})
		total.Add(&total, &perSeat)
	}
	return payments, total, nil
}

// ReportTermination returns the share of a group terminated after its
// interval was allocated to the unallocated pool
func (a *Allocator) ReportTermination(index uint64, registry *groups.Registry) (uint256.Int, error) {
	g, err := registry.Get(index)
	if err != nil {
		return uint256.Int{}, err
	}
	if !g.Terminated {
		return uint256.Int{}, ErrGroupNotTerminated
	}
	iv, err := a.intervalFor(g)
	if err != nil {
		return uint256.Int{}, err
	}
	if err := a.claim(index); err != nil {
		return uint256.Int{}, err
	}
	sum, err := safemath.Add(a.Unallocated, iv.Share)
	if err != nil {
		return uint256.Int{}, err
	}
	a.Unallocated = sum
	return iv.Share, nil
}
