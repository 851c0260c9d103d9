package relay

import (
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/safemath"
)

// DelayFactorScale is the fixed point unit of the delay factor before
// squaring. A squared factor of DelayFactorScale^2 means no delay.
const DelayFactorScale = 10_000_000_000_000_000

// SubmitterExtraRewardPercent is the share of the total delay penalty that
// goes to the entry submitter.
const SubmitterExtraRewardPercent = 5

var delayFactorUnit = func() uint256.Int {
	var v uint256.Int
	s := uint256.NewInt(DelayFactorScale)
	v.Mul(s, s)
	return v
}()

// DelayFactor is ((T_deadline - T_received) / (T_deadline - T_begin))^2 in
// fixed point, with T_begin = start + 1, T_deadline = start + timeout + 1
// and T_received clamped to T_begin. An entry in the first block after the
// request earns the full reward.
func DelayFactor(start height.Height, timeout uint64, received height.Height) uint256.Int {
	if timeout == 0 {
		return uint256.Int{}
	}
	begin := start.Plus(1)
	deadline := start.Plus(timeout).Plus(1)
	if received < begin {
		received = begin
	}
	if received >= deadline {
		return uint256.Int{}
	}

	var f uint256.Int
	f.Mul(uint256.NewInt(uint64(deadline-received)), uint256.NewInt(DelayFactorScale))
	f.Div(&f, uint256.NewInt(timeout))
	f.Mul(&f, &f)
	return f
}

// EntryRewards is how the group profit fee of a request is split once the
// entry is in
type EntryRewards struct {
	MemberReward    uint256.Int
	SubmitterExtra  uint256.Int
	SubmitterReward uint256.Int
	Subsidy         uint256.Int
}

// ComputeRewards applies the delay factor to the base member reward. The
// base reward and group size come from the fees paid at request time, so
// parameter updates finalized while the request is pending do not change
// the split. The delay penalty is taken from every member; a part of it
// rewards the submitter and the rest returns to the subsidy pool, so that
// memberReward*groupSize + submitterExtra + subsidy == groupProfitFee.
func ComputeRewards(params config.Params, fees Fees, start height.Height, received height.Height) (EntryRewards, error) {
	if fees.GroupSize == 0 {
		return EntryRewards{
			SubmitterReward: fees.EntryVerificationFee,
			Subsidy:         fees.GroupProfitFee,
		}, nil
	}
	df := DelayFactor(start, params.RelayEntryTimeout, received)
	size := safemath.U64(fees.GroupSize)

	var base uint256.Int
	base.Div(&fees.GroupProfitFee, &size)
	memberReward, err := safemath.MulDiv(base, df, delayFactorUnit)
	if err != nil {
		return EntryRewards{}, err
	}
	penalty := safemath.SaturatingSub(base, memberReward)

	totalPenalty, err := safemath.Mul(penalty, size)
	if err != nil {
		return EntryRewards{}, err
	}
	extra, err := safemath.MulDiv(totalPenalty, safemath.U64(SubmitterExtraRewardPercent), safemath.U64(100))
	if err != nil {
		return EntryRewards{}, err
	}

	submitterReward, err := safemath.Add(fees.EntryVerificationFee, extra)
	if err != nil {
		return EntryRewards{}, err
	}

	paidMembers, err := safemath.Mul(memberReward, size)
	if err != nil {
		return EntryRewards{}, err
	}
	subsidy, err := safemath.Sub(fees.GroupProfitFee, paidMembers)
	if err != nil {
		return EntryRewards{}, err
	}
	if subsidy, err = safemath.Sub(subsidy, extra); err != nil {
		return EntryRewards{}, err
	}

	return EntryRewards{
		MemberReward:    memberReward,
		SubmitterExtra:  extra,
		SubmitterReward: submitterReward,
		Subsidy:         subsidy,
	}, nil
}
