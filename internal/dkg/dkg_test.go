package dkg

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/crypto"
	"github.com/eigerco/beacon/internal/height"
)

const selectionStart = height.Height(100)

type member struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func testParams() config.Params {
	p := config.DefaultParams()
	p.GroupSize = 20
	p.SignatureThreshold = 15
	p.ResultPublicationBlockStep = 6
	p.TicketSubmissionTimeout = 12
	p.TimeDKG = 13
	return p
}

func newMembers(t *testing.T, n int) ([]member, []common.Address) {
	t.Helper()
	members := make([]member, n)
	selected := make([]common.Address, n)
	for i := range members {
		key, addr, err := crypto.GenerateOperatorKey()
		require.NoError(t, err)
		members[i] = member{key: key, addr: addr}
		selected[i] = addr
	}
	return members, selected
}

func groupKey() []byte {
	_, pub := crypto.BLSKeyFromScalar(uint256.NewInt(42).ToBig())
	return pub
}

// signedResult builds a result signed by the members at the given 1 based
// indices
func signedResult(t *testing.T, members []member, submitter uint64, misbehaved []byte, indices []uint64) Result {
	t.Helper()
	r := Result{
		SubmitterIndex:       submitter,
		GroupPublicKey:       groupKey(),
		Misbehaved:           misbehaved,
		SigningMemberIndices: indices,
	}
	hash := r.Hash()
	for _, idx := range indices {
		sig, err := crypto.SignPrefixed(members[idx-1].key, hash[:])
		require.NoError(t, err)
		r.Signatures = append(r.Signatures, sig...)
	}
	return r
}

func seq(from, to uint64) []uint64 {
	var out []uint64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func newRound() *Round {
	d := &Round{}
	d.Begin(selectionStart, *uint256.NewInt(1000))
	return d
}

func TestValidateHappyPath(t *testing.T) {
	params := testParams()
	members, selected := newMembers(t, 20)
	d := newRound()

	r := signedResult(t, members, 1, []byte{3, 20}, seq(1, 15))
	got, err := d.Validate(params, r, selected[0], d.PublicationStart(params), selected)
	require.NoError(t, err)

	require.Len(t, got, 18)
	assert.NotContains(t, got, selected[2])
	assert.NotContains(t, got, selected[19])
	assert.Equal(t, selected[0], got[0])
	assert.Equal(t, selected[3], got[2])
}

func TestValidateAllSignatures(t *testing.T) {
	params := testParams()
	members, selected := newMembers(t, 20)
	d := newRound()

	r := signedResult(t, members, 2, nil, seq(1, 20))
	got, err := d.Validate(params, r, selected[1], d.EligibleAt(params, 2), selected)
	require.NoError(t, err)
	assert.Equal(t, selected, got)
}

func TestValidateRejections(t *testing.T) {
	params := testParams()
	members, selected := newMembers(t, 20)
	pubStart := newRound().PublicationStart(params)
	valid := func() Result { return signedResult(t, members, 1, nil, seq(1, 16)) }

	tests := []struct {
		name      string
		round     *Round
		result    func() Result
		submitter common.Address
		height    height.Height
		err       error
	}{
		{
			name:      "no dkg in progress",
			round:     &Round{},
			result:    valid,
			submitter: selected[0],
			height:    pubStart,
			err:       ErrNoDKGInProgress,
		},
		{
			name:  "submitter index zero",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.SubmitterIndex = 0
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrUnexpectedSubmitterIndex,
		},
		{
			name:  "submitter index out of range",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.SubmitterIndex = 21
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrUnexpectedSubmitterIndex,
		},
		{
			name:      "submitter index of another member",
			round:     newRound(),
			result:    valid,
			submitter: selected[1],
			height:    pubStart,
			err:       ErrUnexpectedSubmitterIndex,
		},
		{
			name:      "first submitter before publication",
			round:     newRound(),
			result:    valid,
			submitter: selected[0],
			height:    pubStart - 1,
			err:       ErrSubmitterNotEligible,
		},
		{
			name:  "second submitter before its turn",
			round: newRound(),
			result: func() Result {
				return signedResult(t, members, 2, nil, seq(1, 16))
			},
			submitter: selected[1],
			height:    pubStart + 5,
			err:       ErrSubmitterNotEligible,
		},
		{
			name:  "malformed public key",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.GroupPublicKey = r.GroupPublicKey[:127]
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrMalformedGroupPublicKey,
		},
		{
			name:  "too many misbehaved",
			round: newRound(),
			result: func() Result {
				return signedResult(t, members, 1, []byte{2, 3, 4, 5, 6, 7}, seq(1, 16))
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrMalformedMisbehaved,
		},
		{
			name:  "misbehaved index out of range",
			round: newRound(),
			result: func() Result {
				return signedResult(t, members, 1, []byte{21}, seq(1, 16))
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrMalformedMisbehaved,
		},
		{
			name:  "misbehaved index zero",
			round: newRound(),
			result: func() Result {
				return signedResult(t, members, 1, []byte{0}, seq(1, 16))
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrMalformedMisbehaved,
		},
		{
			name:  "signatures not a multiple of 65",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.Signatures = append(r.Signatures, 0x01)
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrMalformedSignatures,
		},
		{
			name:  "signature count differs from indices",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.SigningMemberIndices = r.SigningMemberIndices[:15]
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrUnexpectedSignaturesCount,
		},
		{
			name:  "too few signatures",
			round: newRound(),
			result: func() Result {
				return signedResult(t, members, 1, nil, seq(1, 14))
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrTooFewSignatures,
		},
		{
			name:  "too many signatures",
			round: newRound(),
			result: func() Result {
				r := signedResult(t, members, 1, nil, seq(1, 20))
				r.Signatures = append(r.Signatures, r.Signatures[:crypto.SignatureSize]...)
				r.SigningMemberIndices = append(r.SigningMemberIndices, 1)
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrTooManySignatures,
		},
		{
			name:  "member index out of range",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.SigningMemberIndices[3] = 21
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrInvalidMemberIndex,
		},
		{
			name:  "duplicate member index",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.SigningMemberIndices[3] = 1
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrDuplicateMemberIndex,
		},
		{
			name:  "signature from the wrong member",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.SigningMemberIndices[0], r.SigningMemberIndices[1] = r.SigningMemberIndices[1], r.SigningMemberIndices[0]
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrInvalidSignature,
		},
		{
			name:  "signature over another result",
			round: newRound(),
			result: func() Result {
				r := valid()
				r.Misbehaved = []byte{20}
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrInvalidSignature,
		},
		{
			name:  "garbage signature",
			round: newRound(),
			result: func() Result {
				r := valid()
				for i := 0; i < crypto.SignatureSize; i++ {
					r.Signatures[i] = 0xff
				}
				return r
			},
			submitter: selected[0],
			height:    pubStart,
			err:       ErrInvalidSignature,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.round.Validate(params, tc.result(), tc.submitter, tc.height, selected)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestEligibility(t *testing.T) {
	params := testParams()
	d := newRound()

	assert.Equal(t, height.Height(125), d.PublicationStart(params))
	assert.Equal(t, height.Height(125), d.EligibleAt(params, 1))
	assert.Equal(t, height.Height(131), d.EligibleAt(params, 2))
	assert.Equal(t, height.Height(125+19*6), d.EligibleAt(params, 20))

	assert.Equal(t, uint64(6), d.RemainingEligibilityBlocks(params, 2, 125))
	assert.Equal(t, uint64(0), d.RemainingEligibilityBlocks(params, 2, 140))

	// all 20 members get a 6 block turn
	assert.False(t, d.TimedOut(params, 125+120))
	assert.True(t, d.TimedOut(params, 125+121))
}

func TestReimbursement(t *testing.T) {
	params := testParams()
	params.GasPriceCeiling = *uint256.NewInt(30)
	params.GroupCreationGasEstimate = 100

	tests := []struct {
		name     string
		escrow   uint64
		gasPrice uint64
		paid     uint64
		surplus  uint64
	}{
		{"below ceiling", 5000, 20, 2000, 3000},
		{"capped by ceiling", 5000, 50, 3000, 2000},
		{"capped by escrow", 1000, 30, 1000, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			paid, surplus, err := Reimbursement(params, *uint256.NewInt(tc.escrow), *uint256.NewInt(tc.gasPrice))
			require.NoError(t, err)
			assert.Equal(t, *uint256.NewInt(tc.paid), paid)
			assert.Equal(t, *uint256.NewInt(tc.surplus), surplus)
		})
	}
}

func TestFinishReturnsEscrow(t *testing.T) {
	d := newRound()
	escrow := d.Finish()
	assert.Equal(t, *uint256.NewInt(1000), escrow)
	assert.False(t, d.InProgress)
	assert.True(t, d.Escrow.IsZero())
}
