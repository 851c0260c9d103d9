package dkg

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/crypto"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/safemath"
)

// Result is what a selected member publishes after the off chain key
// generation. Misbehaved holds one byte per excluded member, the 1 based
// index into the selected participants. Signatures are concatenated 65
// byte secp256k1 signatures, the i-th one made by the member at
// SigningMemberIndices[i].
type Result struct {
	SubmitterIndex       uint64
	GroupPublicKey       []byte
	Misbehaved           []byte
	Signatures           []byte
	SigningMemberIndices []uint64
}

// Hash is the digest members sign: keccak256(groupPublicKey ++ misbehaved)
func (r Result) Hash() crypto.Hash {
	return crypto.KeccakData(r.GroupPublicKey, r.Misbehaved)
}

// Round tracks a key generation started after a group selection. Escrow
// holds the funds set aside to reimburse the result submitter.
type Round struct {
	InProgress     bool
	SelectionStart height.Height
	Escrow         uint256.Int
}

// Begin starts a key generation for a selection that opened at start
func (d *Round) Begin(start height.Height, escrow uint256.Int) {
	d.InProgress = true
	d.SelectionStart = start
	d.Escrow = escrow
}

// PublicationStart is the first height a result can be published at
func (d *Round) PublicationStart(params config.Params) height.Height {
	return d.SelectionStart.Plus(params.ResultPublicationTime())
}

// EligibleAt is the first height the member at the 1 based submitterIndex
// may publish. Members become eligible one block step after another.
func (d *Round) EligibleAt(params config.Params, submitterIndex uint64) height.Height {
	if submitterIndex == 0 {
		return d.PublicationStart(params)
	}
	steps, ok := safemath.Mul64(submitterIndex-1, params.ResultPublicationBlockStep)
	if !ok {
		return height.Height(^uint64(0))
	}
	return d.PublicationStart(params).Plus(steps)
}

// RemainingEligibilityBlocks is how long the member must still wait
func (d *Round) RemainingEligibilityBlocks(params config.Params, submitterIndex uint64, h height.Height) uint64 {
	return d.EligibleAt(params, submitterIndex).Since(h)
}

// TimedOut reports whether every member had its chance to publish
func (d *Round) TimedOut(params config.Params, h height.Height) bool {
	w := height.Window{Start: d.PublicationStart(params), Length: params.DKGResultWindow()}
	return w.Exceeded(h)
}

// Validate checks a submitted result against the selected participants and
// returns the members of the new group, the selected participants minus
// the misbehaved ones.
func (d *Round) Validate(params config.Params, r Result, submitter common.Address, h height.Height, selected []common.Address) ([]common.Address, error) {
	if !d.InProgress {
		return nil, ErrNoDKGInProgress
	}

	n := uint64(len(selected))
	if r.SubmitterIndex == 0 || r.SubmitterIndex > n || selected[r.SubmitterIndex-1] != submitter {
		return nil, ErrUnexpectedSubmitterIndex
	}
	if h < d.EligibleAt(params, r.SubmitterIndex) {
		return nil, ErrSubmitterNotEligible
	}

	if len(r.GroupPublicKey) != crypto.G2Size {
		return nil, ErrMalformedGroupPublicKey
	}

	if uint64(len(r.Misbehaved)) > params.MaxMisbehaved() {
		return nil, ErrMalformedMisbehaved
	}
	excluded := bitset.New(uint(n))
	for _, idx := range r.Misbehaved {
		if idx == 0 || uint64(idx) > n {
			return nil, ErrMalformedMisbehaved
		}
		excluded.Set(uint(idx - 1))
	}

	if len(r.Signatures)%crypto.SignatureSize != 0 {
		return nil, ErrMalformedSignatures
	}
	count := uint64(len(r.Signatures) / crypto.SignatureSize)
	if count != uint64(len(r.SigningMemberIndices)) {
		return nil, ErrUnexpectedSignaturesCount
	}
	if count < params.SignatureThreshold {
		return nil, ErrTooFewSignatures
	}
	if count > params.GroupSize {
		return nil, ErrTooManySignatures
	}

	hash := r.Hash()
	signed := bitset.New(uint(n))
	for i, idx := range r.SigningMemberIndices {
		if idx == 0 || idx > n {
			return nil, ErrInvalidMemberIndex
		}
		if signed.Test(uint(idx - 1)) {
			return nil, ErrDuplicateMemberIndex
		}
		signed.Set(uint(idx - 1))

		sig := r.Signatures[i*crypto.SignatureSize : (i+1)*crypto.SignatureSize]
		signer, err := crypto.RecoverPrefixed(hash[:], sig)
		if err != nil || signer != selected[idx-1] {
			return nil, ErrInvalidSignature
		}
	}

	members := make([]common.Address, 0, n-uint64(excluded.Count()))
	for i, op := range selected {
		if !excluded.Test(uint(i)) {
			members = append(members, op)
		}
	}
	return members, nil
}

// Reimbursement splits the escrow between the result submitter and the
// subsidy pool. The submitter gets its gas at the capped gas price.
func Reimbursement(params config.Params, escrow, gasPrice uint256.Int) (paid, surplus uint256.Int, err error) {
	price := safemath.Min(gasPrice, params.GasPriceCeiling)
	cost, err := safemath.Mul(price, safemath.U64(params.GroupCreationGasEstimate))
	if err != nil {
		return uint256.Int{}, uint256.Int{}, err
	}
	paid = safemath.Min(cost, escrow)
	surplus = safemath.SaturatingSub(escrow, paid)
	return paid, surplus, nil
}

// Finish ends the key generation and hands back the escrow
func (d *Round) Finish() uint256.Int {
	escrow := d.Escrow
	d.InProgress = false
	d.Escrow = uint256.Int{}
	return escrow
}
