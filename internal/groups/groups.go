package groups

import (
	"bytes"
	"slices"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/safemath"
)

// Group is a registered signing committee. Members may repeat when an
// operator won several seats.
type Group struct {
	Index          uint64
	PublicKey      []byte
	Members        []common.Address
	RegisteredAt   height.Height
	RegisteredTime int64
	Terminated     bool
	TerminatedAt   height.Height
	MemberReward   uint256.Int
	Withdrawn      *bitset.BitSet
}

func (g *Group) clone() Group {
	c := *g
	c.PublicKey = slices.Clone(g.PublicKey)
	c.Members = slices.Clone(g.Members)
	if g.Withdrawn != nil {
		c.Withdrawn = g.Withdrawn.Clone()
	}
	return c
}

// ActiveUntil is the last height the group can be selected at
func (g *Group) ActiveUntil(params config.Params) height.Height {
	return g.RegisteredAt.Plus(params.GroupActiveTime)
}

// ExpiredAt is when the group stopped being selectable, either by age or
// by termination
func (g *Group) ExpiredAt(params config.Params) height.Height {
	if g.Terminated {
		return g.TerminatedAt
	}
	return g.ActiveUntil(params)
}

// Slots returns the member positions held by operator
func (g *Group) Slots(operator common.Address) []uint {
	var slots []uint
	for i, m := range g.Members {
		if m == operator {
			slots = append(slots, uint(i))
		}
	}
	return slots
}

// Registry is the append only list of groups. Groups below ExpiredOffset
// have been marked expired; Terminated holds the ascending indices of
// terminated groups that are not yet below the offset.
type Registry struct {
	Groups        []Group
	ExpiredOffset uint64
	Terminated    []uint64
}

// Clone returns a deep copy of the registry
func (r *Registry) Clone() Registry {
	c := Registry{
		Groups:        slices.Clone(r.Groups),
		ExpiredOffset: r.ExpiredOffset,
		Terminated:    slices.Clone(r.Terminated),
	}
	for i := range c.Groups {
		c.Groups[i] = r.Groups[i].clone()
	}
	return c
}

// Register appends a new group and returns its index
func (r *Registry) Register(publicKey []byte, members []common.Address, h height.Height, timestamp int64) (uint64, error) {
	if _, err := r.ByPublicKey(publicKey); err == nil {
		return 0, ErrDuplicatePublicKey
	}
	index := uint64(len(r.Groups))
	r.Groups = append(r.Groups, Group{
		Index:          index,
		PublicKey:      slices.Clone(publicKey),
		Members:        slices.Clone(members),
		RegisteredAt:   h,
		RegisteredTime: timestamp,
		Withdrawn:      bitset.New(uint(len(members))),
	})
	return index, nil
}

func (r *Registry) Len() uint64 {
	return uint64(len(r.Groups))
}

// Get returns the group at index
func (r *Registry) Get(index uint64) (*Group, error) {
	if index >= uint64(len(r.Groups)) {
		return nil, ErrGroupNotFound
	}
	return &r.Groups[index], nil
}

// ByPublicKey returns the index of the group with the given key
func (r *Registry) ByPublicKey(publicKey []byte) (uint64, error) {
	for i := range r.Groups {
		if bytes.Equal(r.Groups[i].PublicKey, publicKey) {
			return uint64(i), nil
		}
	}
	return 0, ErrGroupNotFound
}

// expireOldGroups moves the offset past every group whose active time
// ended before h and forgets terminations that fell below it
func (r *Registry) expireOldGroups(params config.Params, h height.Height) {
	for r.ExpiredOffset < uint64(len(r.Groups)) && r.Groups[r.ExpiredOffset].ActiveUntil(params) < h {
		r.ExpiredOffset++
	}
	i := sort.Search(len(r.Terminated), func(i int) bool {
		return r.Terminated[i] >= r.ExpiredOffset
	})
	r.Terminated = r.Terminated[i:]
}

// ActiveCount returns how many groups can still be selected at h
func (r *Registry) ActiveCount(params config.Params, h height.Height) uint64 {
	offset := r.ExpiredOffset
	for offset < uint64(len(r.Groups)) && r.Groups[offset].ActiveUntil(params) < h {
		offset++
	}
	terminated := uint64(0)
	for _, idx := range r.Terminated {
		if idx >= offset {
			terminated++
		}
	}
	return uint64(len(r.Groups)) - offset - terminated
}

// SelectGroup marks old groups expired and picks an active group with
// seed % activeCount, skipping terminated groups.
func (r *Registry) SelectGroup(params config.Params, seed uint256.Int, h height.Height) (uint64, error) {
	r.expireOldGroups(params, h)

	active := uint64(len(r.Groups)) - r.ExpiredOffset - uint64(len(r.Terminated))
	if active == 0 {
		return 0, ErrNoActiveGroups
	}

	var rem uint256.Int
	rem.Mod(&seed, uint256.NewInt(active))
	selected := r.ExpiredOffset + rem.Uint64()
	for _, idx := range r.Terminated {
		if idx <= selected {
			selected++
		}
	}
	return selected, nil
}

// Terminate removes a group from selection. Its expiry becomes h.
func (r *Registry) Terminate(index uint64, h height.Height) error {
	g, err := r.Get(index)
	if err != nil {
		return err
	}
	if g.Terminated {
		return ErrGroupAlreadyTerminated
	}
	g.Terminated = true
	g.TerminatedAt = h
	if index >= r.ExpiredOffset {
		i, _ := slices.BinarySearch(r.Terminated, index)
		r.Terminated = slices.Insert(r.Terminated, i, index)
	}
	return nil
}

// IsExpired reports whether the group was marked expired or terminated
func (r *Registry) IsExpired(index uint64) (bool, error) {
	g, err := r.Get(index)
	if err != nil {
		return false, err
	}
	return index < r.ExpiredOffset || g.Terminated, nil
}

// IsStale reports whether the group is expired and can no longer be asked
// to produce an entry, which is relayEntryTimeout heights after expiry.
func (r *Registry) IsStale(params config.Params, index uint64, h height.Height) (bool, error) {
	expired, err := r.IsExpired(index)
	if err != nil || !expired {
		return false, err
	}
	g := &r.Groups[index]
	return h > g.ExpiredAt(params).Plus(params.RelayEntryTimeout), nil
}

// AddMemberReward credits every member of the group with amount
func (r *Registry) AddMemberReward(index uint64, amount uint256.Int) error {
	g, err := r.Get(index)
	if err != nil {
		return err
	}
	sum, err := safemath.Add(g.MemberReward, amount)
	if err != nil {
		return err
	}
	g.MemberReward = sum
	return nil
}

// WithdrawMemberRewards pays operator for every seat it holds in a stale
// group. An operator with no seats gets nothing without an error.
func (r *Registry) WithdrawMemberRewards(params config.Params, operator common.Address, index uint64, h height.Height) (uint256.Int, error) {
	stale, err := r.IsStale(params, index, h)
	if err != nil {
		return uint256.Int{}, err
	}
	if !stale {
		return uint256.Int{}, ErrGroupNotExpiredAndStale
	}

	g := &r.Groups[index]
	slots := g.Slots(operator)
	if len(slots) == 0 {
		return uint256.Int{}, nil
	}
	if g.Withdrawn == nil {
		g.Withdrawn = bitset.New(uint(len(g.Members)))
	}

	var pending uint64
	for _, s := range slots {
		if !g.Withdrawn.Test(s) {
			g.Withdrawn.Set(s)
			pending++
		}
	}
	if pending == 0 {
		return uint256.Int{}, ErrRewardsAlreadyWithdrawn
	}
	return safemath.Mul(g.MemberReward, safemath.U64(pending))
}
