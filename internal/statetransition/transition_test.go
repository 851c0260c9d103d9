package statetransition

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/crypto"
	"github.com/eigerco/beacon/internal/dkg"
	"github.com/eigerco/beacon/internal/events"
	"github.com/eigerco/beacon/internal/groups"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/relay"
	"github.com/eigerco/beacon/internal/sortition"
)

var (
	owner     = common.HexToAddress("0x0ee")
	requester = common.HexToAddress("0x4e9")
	reporter  = common.HexToAddress("0x7a7")
	gwei      = uint256.NewInt(1_000_000_000)
)

func u(v uint64) uint256.Int { return *uint256.NewInt(v) }

func mustDec(s string) uint256.Int { return *uint256.MustFromDecimal(s) }

type fixture struct {
	t        *testing.T
	keys     map[common.Address]*ecdsa.PrivateKey
	groupKey *crypto.BLSSecretKey
	groupPub []byte
	verifier relay.Verifier
	state    State
}

func testConfig(t *testing.T) (config.Config, map[common.Address]*ecdsa.PrivateKey) {
	t.Helper()
	cfg := config.Default()
	cfg.Params.GroupSize = 3
	cfg.Params.SignatureThreshold = 2
	cfg.Params.TicketSubmissionTimeout = 3
	cfg.Params.TimeDKG = 2
	cfg.Params.ResultPublicationBlockStep = 1
	cfg.Params.RelayEntryTimeout = 5
	cfg.Params.GroupActiveTime = 100
	cfg.Genesis.Owner = owner
	cfg.Genesis.MinimumStake = u(100)

	fee, err := relay.GroupCreationFee(cfg.Params)
	require.NoError(t, err)
	cfg.Genesis.DKGFeePool.Mul(&fee, uint256.NewInt(2))

	keys := make(map[common.Address]*ecdsa.PrivateKey)
	for i := 0; i < 5; i++ {
		key, addr, err := crypto.GenerateOperatorKey()
		require.NoError(t, err)
		keys[addr] = key
		cfg.Genesis.Stakes = append(cfg.Genesis.Stakes, config.GenesisStake{
			Operator:        addr,
			StakingProvider: addr,
			Amount:          u(300),
		})
	}
	return cfg, keys
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg, keys := testConfig(t)
	s, err := NewGenesisState(cfg)
	require.NoError(t, err)

	verifier, err := crypto.NewBLSVerifier(8)
	require.NoError(t, err)
	sk, pub := crypto.BLSKeyFromScalar(uint256.NewInt(7).ToBig())

	return &fixture{t: t, keys: keys, groupKey: sk, groupPub: pub, verifier: verifier, state: s}
}

func (f *fixture) env(h height.Height) Env {
	return Env{Height: h, Timestamp: f.state.Rewards.FirstIntervalStart + int64(h)*15, GasPrice: *new(uint256.Int).Mul(gwei, uint256.NewInt(10))}
}

func (f *fixture) apply(tx Tx, h height.Height) Effects {
	f.t.Helper()
	next, fx, err := Apply(f.state, tx, f.env(h), f.verifier)
	require.NoError(f.t, err)
	f.state = next
	return fx
}

func (f *fixture) submitAllTickets(h height.Height) {
	f.t.Helper()
	for addr := range f.keys {
		weight := sortition.Weight(f.state.Staking, addr, f.state.Params.OperatorContract)
		for _, tk := range sortition.GenerateTickets(f.state.Selection.Seed, addr, weight) {
			f.apply(SubmitTicket{From: addr, Ticket: tk}, h)
		}
	}
}

func (f *fixture) result(selected []common.Address) dkg.Result {
	f.t.Helper()
	r := dkg.Result{SubmitterIndex: 1, GroupPublicKey: f.groupPub}
	hash := r.Hash()
	for i, addr := range selected {
		sig, err := crypto.SignPrefixed(f.keys[addr], hash[:])
		require.NoError(f.t, err)
		r.Signatures = append(r.Signatures, sig...)
		r.SigningMemberIndices = append(r.SigningMemberIndices, uint64(i+1))
	}
	return r
}

// formGroup runs genesis, ticket submission and key generation starting
// at height 10, leaving one registered group at height 15
func (f *fixture) formGroup() []common.Address {
	f.t.Helper()
	fx := f.apply(Genesis{From: owner}, 10)
	require.Len(f.t, fx.Events, 1)
	assert.IsType(f.t, events.GroupSelectionStarted{}, fx.Events[0])

	f.submitAllTickets(11)

	selected, err := f.state.Selection.SelectedParticipants(f.state.Params, 15)
	require.NoError(f.t, err)
	require.Len(f.t, selected, 3)

	fx = f.apply(SubmitDKGResult{From: selected[0], Result: f.result(selected)}, 15)
	require.Len(f.t, fx.Events, 2)
	registered, ok := fx.Events[1].(events.GroupRegistered)
	require.True(f.t, ok)
	assert.Equal(f.t, selected, registered.Members)
	return selected
}

func TestGenesisRequiresFundsAndNoGroups(t *testing.T) {
	f := newFixture(t)
	f.state.Pools.DKGFeePool = u(1)
	_, _, err := Apply(f.state, Genesis{From: owner}, f.env(1), f.verifier)
	assert.ErrorIs(t, err, ErrInsufficientPool)

	f = newFixture(t)
	f.formGroup()
	_, _, err = Apply(f.state, Genesis{From: owner}, f.env(20), f.verifier)
	assert.ErrorIs(t, err, ErrGroupsExist)
}

func TestGroupFormationReimbursesSubmitter(t *testing.T) {
	f := newFixture(t)
	fee := mustDec("67800000000000000")
	assert.Equal(t, mustDec("135600000000000000"), f.state.Pools.DKGFeePool)

	f.apply(Genesis{From: owner}, 10)
	assert.Equal(t, fee, f.state.Pools.DKGFeePool)
	assert.Equal(t, fee, f.state.DKG.Escrow)

	f.submitAllTickets(11)
	selected, err := f.state.Selection.SelectedParticipants(f.state.Params, 15)
	require.NoError(t, err)

	t.Run("not yet eligible", func(t *testing.T) {
		_, _, err := Apply(f.state, SubmitDKGResult{From: selected[0], Result: f.result(selected)}, f.env(14), f.verifier)
		assert.ErrorIs(t, err, dkg.ErrSubmitterNotEligible)
	})

	fx := f.apply(SubmitDKGResult{From: selected[0], Result: f.result(selected)}, 15)

	// 10 gwei * 2260000 gas
	require.Len(t, fx.Payouts, 1)
	assert.Equal(t, selected[0], fx.Payouts[0].To)
	assert.Equal(t, mustDec("22600000000000000"), fx.Payouts[0].Amount)
	assert.Equal(t, mustDec("45200000000000000"), f.state.Pools.SubsidyPool)

	assert.False(t, f.state.DKG.InProgress)
	assert.False(t, f.state.Selection.InProgress)
	assert.Equal(t, uint64(1), f.state.Groups.Len())
}

func TestRelayEntryLifecycle(t *testing.T) {
	f := newFixture(t)
	f.formGroup()

	fees, err := relay.EntryFees(f.state.Params, 0)
	require.NoError(t, err)
	total, err := fees.Total()
	require.NoError(t, err)

	t.Run("insufficient payment leaves the state untouched", func(t *testing.T) {
		short := u(1)
		before := f.state.Clone()
		next, fx, err := Apply(f.state, RequestEntry{From: requester, Payment: short}, f.env(20), f.verifier)
		assert.ErrorIs(t, err, relay.ErrInsufficientPayment)
		assert.Empty(t, fx.Events)
		assert.Equal(t, before, next)
	})

	payment := total
	payment.Add(&payment, uint256.NewInt(5))
	fx := f.apply(RequestEntry{From: requester, Payment: payment}, 20)
	require.Len(t, fx.Events, 1)
	req, ok := fx.Events[0].(events.RelayEntryRequested)
	require.True(t, ok)
	assert.Equal(t, relay.GenesisEntry, req.PreviousEntry)
	assert.Equal(t, mustDec("74580000000000000"), f.state.Pools.DKGFeePool)
	assert.Equal(t, mustDec("45200000000000005"), f.state.Pools.SubsidyPool)

	_, _, err = Apply(f.state, RequestEntry{From: requester, Payment: payment}, f.env(20), f.verifier)
	assert.ErrorIs(t, err, relay.ErrBeaconBusy)

	fx = f.apply(SubmitEntry{From: reporter, Signature: f.groupKey.Sign(relay.GenesisEntry)}, 21)

	require.Len(t, fx.Events, 2)
	submitted, ok := fx.Events[0].(events.RelayEntrySubmitted)
	require.True(t, ok)
	assert.Equal(t, f.state.Relay.LastEntry, submitted.Entry)
	started, ok := fx.Events[1].(events.GroupSelectionStarted)
	require.True(t, ok)
	assert.Equal(t, relay.Seed(submitted.Entry), started.Seed)

	// full entry verification fee, no delay penalty, 1% of the subsidy pool
	require.Len(t, fx.Payouts, 2)
	assert.Equal(t, Payout{To: reporter, Amount: mustDec("37200000000000000"), Reason: "relay entry submission"}, fx.Payouts[0])
	assert.Equal(t, requester, fx.Payouts[1].To)
	assert.Equal(t, mustDec("452000000000000"), fx.Payouts[1].Amount)

	g, err := f.state.Groups.Get(0)
	require.NoError(t, err)
	assert.Equal(t, f.state.Params.GroupMemberBaseReward, g.MemberReward)
	assert.Equal(t, mustDec("6780000000000000"), f.state.Pools.DKGFeePool)
	assert.False(t, f.state.Relay.InProgress)

	_, _, err = Apply(f.state, SubmitEntry{From: reporter, Signature: f.groupKey.Sign(submitted.Entry)}, f.env(22), f.verifier)
	assert.ErrorIs(t, err, relay.ErrNoEntryInProgress)
}

func TestRelayTimeoutDropsRequest(t *testing.T) {
	f := newFixture(t)
	selected := f.formGroup()

	payment := mustDec("1000000000000000000")
	f.apply(RequestEntry{From: requester, Payment: payment}, 20)

	_, _, err := Apply(f.state, ReportRelayTimeout{From: reporter}, f.env(25), f.verifier)
	assert.ErrorIs(t, err, relay.ErrEntryNotTimedOut)

	fx := f.apply(ReportRelayTimeout{From: reporter}, 26)
	require.Len(t, fx.Events, 2)
	assert.Equal(t, events.GroupTerminated{Index: 0}, fx.Events[1])

	// entry verification 37.2e15 + group profit 3 * 1.05e15
	require.Len(t, fx.Payouts, 1)
	assert.Equal(t, requester, fx.Payouts[0].To)
	assert.Equal(t, mustDec("40350000000000000"), fx.Payouts[0].Amount)

	distinct := make(map[common.Address]struct{})
	for _, m := range selected {
		distinct[m] = struct{}{}
		stake := f.state.Staking.Stakes[m]
		assert.True(t, stake.Amount.IsZero())
	}
	seized := uint64(300 * len(distinct))
	assert.Equal(t, u(seized*5/100), f.state.Staking.BalanceOf(reporter))
	assert.False(t, f.state.Relay.InProgress)

	_, _, err = Apply(f.state, RequestEntry{From: requester, Payment: payment}, f.env(27), f.verifier)
	assert.ErrorIs(t, err, groups.ErrNoActiveGroups)
}

func TestDKGTimeout(t *testing.T) {
	f := newFixture(t)
	f.apply(Genesis{From: owner}, 10)

	// publication starts at 15 and lasts groupSize * step
	_, _, err := Apply(f.state, ReportDKGTimeout{From: reporter}, f.env(18), f.verifier)
	assert.ErrorIs(t, err, dkg.ErrDKGNotTimedOut)

	fx := f.apply(ReportDKGTimeout{From: reporter}, 19)
	assert.Equal(t, []events.Event{events.DkgResultTimedOut{SelectionStart: 10}}, fx.Events)
	assert.Equal(t, mustDec("135600000000000000"), f.state.Pools.DKGFeePool)
	assert.False(t, f.state.Selection.InProgress)

	_, _, err = Apply(f.state, ReportDKGTimeout{From: reporter}, f.env(20), f.verifier)
	assert.ErrorIs(t, err, dkg.ErrNoDKGInProgress)
}

func TestGovernanceThroughApply(t *testing.T) {
	f := newFixture(t)
	now := f.env(1).Timestamp

	_, _, err := Apply(f.state, BeginParameterUpdate{From: reporter, Name: "groupMemberBaseReward", Value: u(7)}, f.env(1), f.verifier)
	require.Error(t, err)

	fx := f.apply(BeginParameterUpdate{From: owner, Name: "groupMemberBaseReward", Value: u(7)}, 1)
	assert.Equal(t, []events.Event{events.ParameterUpdateStarted{Parameter: "groupMemberBaseReward", Value: u(7), Timestamp: now}}, fx.Events)

	later := height.Height(1 + uint64(24*time.Hour/time.Second)/15)
	fx = f.apply(FinalizeParameterUpdate{From: owner, Name: "groupMemberBaseReward"}, later)
	assert.Equal(t, []events.Event{events.ParameterUpdated{Parameter: "groupMemberBaseReward", Value: u(7)}}, fx.Events)
	assert.Equal(t, u(7), f.state.Params.GroupMemberBaseReward)
}

func TestEntryPricedAtRequestTime(t *testing.T) {
	f := newFixture(t)
	f.state.Params.GroupActiveTime = 100_000
	f.formGroup()
	paidBase := f.state.Params.GroupMemberBaseReward

	var raised uint256.Int
	raised.Mul(&paidBase, uint256.NewInt(10))
	f.apply(BeginParameterUpdate{From: owner, Name: "groupMemberBaseReward", Value: raised}, 16)

	fees, err := relay.EntryFees(f.state.Params, 0)
	require.NoError(t, err)
	total, err := fees.Total()
	require.NoError(t, err)

	finalizeAt := height.Height(16 + uint64(24*time.Hour/time.Second)/15)
	f.apply(RequestEntry{From: requester, Payment: total}, finalizeAt-1)
	poolBefore := f.state.Pools.SubsidyPool

	f.apply(FinalizeParameterUpdate{From: owner, Name: "groupMemberBaseReward"}, finalizeAt)
	require.Equal(t, raised, f.state.Params.GroupMemberBaseReward)

	fx := f.apply(SubmitEntry{From: reporter, Signature: f.groupKey.Sign(relay.GenesisEntry)}, finalizeAt)

	g, err := f.state.Groups.Get(0)
	require.NoError(t, err)
	assert.Equal(t, paidBase, g.MemberReward)

	// nothing of the profit fee is left for the pool, it all goes to members
	require.Len(t, fx.Payouts, 2)
	assert.Equal(t, fees.EntryVerificationFee, fx.Payouts[0].Amount)
	var subsidy uint256.Int
	subsidy.Div(&poolBefore, uint256.NewInt(100))
	assert.Equal(t, subsidy, fx.Payouts[1].Amount)
	var rest uint256.Int
	rest.Sub(&poolBefore, &subsidy)
	assert.Equal(t, rest, f.state.Pools.SubsidyPool)
}

func TestFundingAndStaking(t *testing.T) {
	f := newFixture(t)

	_, _, err := Apply(f.state, FundSubsidyPool{From: requester}, f.env(1), f.verifier)
	assert.ErrorIs(t, err, ErrZeroAmount)

	f.apply(FundSubsidyPool{From: requester, Amount: u(9)}, 1)
	assert.Equal(t, u(9), f.state.Pools.SubsidyPool)

	operator := common.HexToAddress("0x0bb")
	f.apply(Stake{From: operator, StakingProvider: operator, Amount: u(250)}, 1)
	assert.Equal(t, uint64(2), sortition.Weight(f.state.Staking, operator, f.state.Params.OperatorContract))
}

func TestTxCodec(t *testing.T) {
	txs := []Tx{
		RequestEntry{From: requester, CallbackGas: 100, Payment: u(12345)},
		SubmitEntry{From: reporter, Signature: []byte{1, 2, 3}},
		BeginParameterUpdate{From: owner, Name: "timeDKG", Value: u(4)},
		Genesis{From: owner},
	}
	for _, tx := range txs {
		data, err := EncodeTx(tx)
		require.NoError(t, err)
		got, err := DecodeTx(data)
		require.NoError(t, err)
		assert.Equal(t, tx, got)
	}

	_, err := newTx(Kind(200))
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}
