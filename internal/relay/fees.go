package relay

import (
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/safemath"
)

// Fees is the breakdown of what a requester pays for one entry. GroupSize
// is the group size the profit fee was priced with.
type Fees struct {
	EntryVerificationFee uint256.Int
	DKGContributionFee   uint256.Int
	GroupProfitFee       uint256.Int
	CallbackFee          uint256.Int
	GroupSize            uint64
}

// Total is the minimum payment for a request
func (f Fees) Total() (uint256.Int, error) {
	total := f.EntryVerificationFee
	for _, v := range []uint256.Int{f.DKGContributionFee, f.GroupProfitFee, f.CallbackFee} {
		var err error
		if total, err = safemath.Add(total, v); err != nil {
			return uint256.Int{}, err
		}
	}
	return total, nil
}

// EntryFees prices a request at the gas price ceiling
func EntryFees(params config.Params, callbackGas uint64) (Fees, error) {
	ceiling := params.GasPriceCeiling

	verification, err := safemath.Mul(safemath.U64(params.EntryVerificationGasEstimate), ceiling)
	if err != nil {
		return Fees{}, err
	}

	creation, err := GroupCreationFee(params)
	if err != nil {
		return Fees{}, err
	}
	contribution, err := safemath.MulDiv(creation, safemath.U64(params.DKGContributionMargin), safemath.U64(100))
	if err != nil {
		return Fees{}, err
	}

	profit, err := safemath.Mul(params.GroupMemberBaseReward, safemath.U64(params.GroupSize))
	if err != nil {
		return Fees{}, err
	}

	callback, err := CallbackFee(params, callbackGas)
	if err != nil {
		return Fees{}, err
	}

	return Fees{
		EntryVerificationFee: verification,
		DKGContributionFee:   contribution,
		GroupProfitFee:       profit,
		CallbackFee:          callback,
		GroupSize:            params.GroupSize,
	}, nil
}

// GroupCreationFee is what the DKG fee pool must hold to start a new group
// selection
func GroupCreationFee(params config.Params) (uint256.Int, error) {
	return safemath.Mul(safemath.U64(params.GroupCreationGasEstimate), params.GasPriceCeiling)
}

// CallbackFee covers the callback gas at the ceiling price. Requests
// without a callback pay nothing for it.
func CallbackFee(params config.Params, callbackGas uint64) (uint256.Int, error) {
	if callbackGas == 0 {
		return uint256.Int{}, nil
	}
	gas, ok := safemath.Add64(callbackGas, params.BaseCallbackGas)
	if !ok {
		return uint256.Int{}, safemath.ErrOverflow
	}
	return safemath.Mul(safemath.U64(gas), params.GasPriceCeiling)
}

// CallbackSurplus is the part of the callback fee returned to the
// requester when the actual gas price was below the ceiling
func CallbackSurplus(params config.Params, callbackGas uint64, gasPrice uint256.Int) (uint256.Int, error) {
	if callbackGas == 0 {
		return uint256.Int{}, nil
	}
	gas, ok := safemath.Add64(callbackGas, params.BaseCallbackGas)
	if !ok {
		return uint256.Int{}, safemath.ErrOverflow
	}
	price := safemath.Min(gasPrice, params.GasPriceCeiling)
	return safemath.Mul(safemath.U64(gas), safemath.SaturatingSub(params.GasPriceCeiling, price))
}
