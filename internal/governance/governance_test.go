package governance

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/beacon/internal/config"
)

var (
	owner    = common.HexToAddress("0x0ee")
	stranger = common.HexToAddress("0x5aa")
)

const start = int64(1_700_000_000)

func u(v uint64) uint256.Int { return *uint256.NewInt(v) }

func TestOwnerOnly(t *testing.T) {
	g := New(owner)
	params := config.DefaultParams()

	_, err := g.BeginUpdate(params, stranger, "callbackGasLimit", u(100), start)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = g.FinalizeUpdate(&params, stranger, "callbackGasLimit", start)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestTimelock(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		delay time.Duration
	}{
		{"groupMemberBaseReward", 123, StandardDelay},
		{"entryVerificationGasEstimate", 1_000_000, StandardDelay},
		{"tattletaleRewardMultiplier", 50, StandardDelay},
		{"groupActiveTime", 1000, ExtendedDelay},
		{"relayEntryTimeout", 100, ExtendedDelay},
		{"callbackGasLimit", 999_999, ExtendedDelay},
		{"groupCreationGasEstimate", 3_000_000, ExtendedDelay},
		{"dkgContributionMargin", 20, ExtendedDelay},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := New(owner)
			params := config.DefaultParams()
			before, err := params.Get(tc.name)
			require.NoError(t, err)

			_, err = g.FinalizeUpdate(&params, owner, tc.name, start)
			assert.ErrorIs(t, err, ErrChangeNotInitiated)

			started, err := g.BeginUpdate(params, owner, tc.name, u(tc.value), start)
			require.NoError(t, err)
			assert.Equal(t, tc.name, started.Parameter)
			assert.Equal(t, start, started.Timestamp)
			assert.Equal(t, tc.delay, Delay(tc.name))

			delay := int64(tc.delay / time.Second)
			remaining, err := g.RemainingUpdateTime(tc.name, start+delay-1)
			require.NoError(t, err)
			assert.Equal(t, time.Second, remaining)

			_, err = g.FinalizeUpdate(&params, owner, tc.name, start+delay-1)
			assert.ErrorIs(t, err, ErrDelayNotElapsed)
			got, _ := params.Get(tc.name)
			assert.Equal(t, before, got, "value unchanged before the delay")

			updated, err := g.FinalizeUpdate(&params, owner, tc.name, start+delay)
			require.NoError(t, err)
			assert.Equal(t, u(tc.value), updated.Value)
			got, _ = params.Get(tc.name)
			assert.Equal(t, u(tc.value), got)

			_, err = g.FinalizeUpdate(&params, owner, tc.name, start+delay)
			assert.ErrorIs(t, err, ErrChangeNotInitiated)
		})
	}
}

func TestBeginAgainRestartsDelay(t *testing.T) {
	g := New(owner)
	params := config.DefaultParams()

	_, err := g.BeginUpdate(params, owner, "groupMemberBaseReward", u(1), start)
	require.NoError(t, err)
	_, err = g.BeginUpdate(params, owner, "groupMemberBaseReward", u(2), start+3600)
	require.NoError(t, err)

	remaining, err := g.RemainingUpdateTime("groupMemberBaseReward", start+int64(StandardDelay/time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, remaining)
	assert.Equal(t, u(2), g.Pending["groupMemberBaseReward"].Value)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name  string
		value uint256.Int
		err   error
	}{
		{"callbackGasLimit", u(0), ErrInvalidCallbackGasLimit},
		{"callbackGasLimit", u(1_000_000), ErrInvalidCallbackGasLimit},
		{"groupActiveTime", u(0), ErrInvalidGroupActiveTime},
		{"relayEntryTimeout", u(0), ErrInvalidRelayEntryTimeout},
		{"signatureThreshold", u(65), ErrInvalidThreshold},
		{"dkgContributionMargin", u(101), ErrInvalidContributionMargin},
		{"gasPriceCeiling", u(0), ErrInvalidGasPriceCeiling},
		{"groupSize", *new(uint256.Int).Lsh(uint256.NewInt(1), 70), config.ErrValueTooLarge},
		{"noSuchParameter", u(1), config.ErrUnknownParameter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := New(owner)
			_, err := g.BeginUpdate(config.DefaultParams(), owner, tc.name, tc.value, start)
			assert.ErrorIs(t, err, tc.err)
			assert.Empty(t, g.Pending)
		})
	}
}

func TestFinalizeRechecksConsistency(t *testing.T) {
	g := New(owner)
	params := config.DefaultParams()

	_, err := g.BeginUpdate(params, owner, "signatureThreshold", u(60), start)
	require.NoError(t, err)

	params.GroupSize = 40
	_, err = g.FinalizeUpdate(&params, owner, "signatureThreshold", start+int64(ExtendedDelay/time.Second))
	assert.ErrorIs(t, err, ErrInvalidThreshold)
	assert.Equal(t, uint64(33), params.SignatureThreshold)
}

func TestRemainingUpdateTimeUnknown(t *testing.T) {
	g := New(owner)
	_, err := g.RemainingUpdateTime("bogus", start)
	assert.ErrorIs(t, err, config.ErrUnknownParameter)

	_, err = g.RemainingUpdateTime("groupSize", start)
	assert.ErrorIs(t, err, ErrChangeNotInitiated)
}

func TestCloneIsIndependent(t *testing.T) {
	g := New(owner)
	_, err := g.BeginUpdate(config.DefaultParams(), owner, "timeDKG", u(20), start)
	require.NoError(t, err)

	c := g.Clone()
	delete(c.Pending, "timeDKG")
	assert.Contains(t, g.Pending, "timeDKG")
}
