package statetransition

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/dkg"
	"github.com/eigerco/beacon/internal/events"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/relay"
	"github.com/eigerco/beacon/internal/safemath"
	"github.com/eigerco/beacon/internal/sortition"
)

// RequesterSubsidyPercent is the share of the subsidy pool paid to the
// requester of every served entry
const RequesterSubsidyPercent = 1

// Env is what the execution environment supplies with a transaction
type Env struct {
	Height    height.Height
	Timestamp int64
	GasPrice  uint256.Int
}

// Payout is native currency the protocol sends out
type Payout struct {
	To     common.Address
	Amount uint256.Int
	Reason string
}

// Effects are the observable results of a successful transition
type Effects struct {
	Events  []events.Event
	Payouts []Payout
}

func (fx *Effects) emit(evs ...events.Event) {
	fx.Events = append(fx.Events, evs...)
}

func (fx *Effects) pay(to common.Address, amount uint256.Int, reason string) {
	if amount.IsZero() {
		return
	}
	fx.Payouts = append(fx.Payouts, Payout{To: to, Amount: amount, Reason: reason})
}

// Apply runs tx against a copy of s. On error s is returned unchanged
// together with the error.
func Apply(s State, tx Tx, env Env, verifier relay.Verifier) (State, Effects, error) {
	next := s.Clone()
	var fx Effects

	var err error
	switch t := tx.(type) {
	case SubmitTicket:
		err = submitTicket(&next, t, env)
	case SubmitDKGResult:
		err = submitDKGResult(&next, t, env, &fx)
	case ReportDKGTimeout:
		err = reportDKGTimeout(&next, env, &fx)
	case RequestEntry:
		err = requestEntry(&next, t, env, &fx)
	case SubmitEntry:
		err = submitEntry(&next, t, env, verifier, &fx)
	case ReportRelayTimeout:
		err = reportRelayTimeout(&next, t, env, &fx)
	case WithdrawMemberRewards:
		err = withdrawMemberRewards(&next, t, env, &fx)
	case BeginParameterUpdate:
		err = beginParameterUpdate(&next, t, env, &fx)
	case FinalizeParameterUpdate:
		err = finalizeParameterUpdate(&next, t, env, &fx)
	case AllocateRewards:
		err = allocateRewards(&next, t, env, &fx)
	case ReceiveReward:
		err = receiveReward(&next, t, env, &fx)
	case ReportGroupTermination:
		_, err = next.Rewards.ReportTermination(t.GroupIndex, &next.Groups)
	case FundDKGFeePool:
		err = fund(&next.Pools.DKGFeePool, t.Amount)
	case FundSubsidyPool:
		err = fund(&next.Pools.SubsidyPool, t.Amount)
	case Stake:
		err = stake(&next, t)
	case Genesis:
		err = genesis(&next, env, &fx)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownTransaction, tx)
	}
	if err != nil {
		return s, Effects{}, err
	}
	return next, fx, nil
}

func submitTicket(s *State, t SubmitTicket, env Env) error {
	return s.Selection.SubmitTicket(s.Params, t.Ticket, env.Height, s.Staking)
}

func submitDKGResult(s *State, t SubmitDKGResult, env Env, fx *Effects) error {
	if !s.DKG.InProgress {
		return dkg.ErrNoDKGInProgress
	}
	if s.DKG.TimedOut(s.Params, env.Height) {
		return ErrDKGTimedOut
	}
	selected, err := s.Selection.SelectedParticipants(s.Params, env.Height)
	if err != nil {
		return err
	}
	members, err := s.DKG.Validate(s.Params, t.Result, t.From, env.Height, selected)
	if err != nil {
		return err
	}

	index, err := s.Groups.Register(t.Result.GroupPublicKey, members, env.Height, env.Timestamp)
	if err != nil {
		return err
	}

	escrow := s.DKG.Finish()
	s.Selection.Finish()
	paid, surplus, err := dkg.Reimbursement(s.Params, escrow, env.GasPrice)
	if err != nil {
		return err
	}
	fx.pay(t.From, paid, "dkg result reimbursement")
	if err := addTo(&s.Pools.SubsidyPool, surplus); err != nil {
		return err
	}

	fx.emit(
		events.DkgResultSubmitted{
			SubmitterIndex: t.Result.SubmitterIndex,
			Submitter:      t.From,
			GroupPublicKey: slices.Clone(t.Result.GroupPublicKey),
			Misbehaved:     slices.Clone(t.Result.Misbehaved),
		},
		events.GroupRegistered{
			Index:     index,
			PublicKey: slices.Clone(t.Result.GroupPublicKey),
			Members:   slices.Clone(members),
		},
	)
	return nil
}

func reportDKGTimeout(s *State, env Env, fx *Effects) error {
	if !s.DKG.InProgress {
		return dkg.ErrNoDKGInProgress
	}
	if !s.DKG.TimedOut(s.Params, env.Height) {
		return dkg.ErrDKGNotTimedOut
	}
	return abandonDKG(s, fx)
}

// abandonDKG ends a timed out key generation and returns its escrow to the
// DKG fee pool
func abandonDKG(s *State, fx *Effects) error {
	start := s.DKG.SelectionStart
	escrow := s.DKG.Finish()
	s.Selection.Finish()

	if err := addTo(&s.Pools.DKGFeePool, escrow); err != nil {
		return err
	}
	fx.emit(events.DkgResultTimedOut{SelectionStart: start})
	return nil
}

// maybeStartSelection opens a new group selection seeded by entry when no
// selection is running and the DKG fee pool covers a group creation. A key
// generation that timed out without being reported is abandoned first.
func maybeStartSelection(s *State, entry []byte, env Env, fx *Effects) error {
	if s.DKG.InProgress && s.DKG.TimedOut(s.Params, env.Height) {
		if err := abandonDKG(s, fx); err != nil {
			return err
		}
	}
	if s.Selection.InProgress || s.DKG.InProgress {
		return nil
	}

	fee, err := relay.GroupCreationFee(s.Params)
	if err != nil {
		return err
	}
	if s.Pools.DKGFeePool.Lt(&fee) {
		return nil
	}
	s.Pools.DKGFeePool = safemath.SaturatingSub(s.Pools.DKGFeePool, fee)

	seed := relay.Seed(entry)
	s.Selection.Begin(seed, env.Height)
	s.DKG.Begin(env.Height, fee)
	fx.emit(events.GroupSelectionStarted{Seed: seed, StartHeight: env.Height})
	return nil
}

func genesis(s *State, env Env, fx *Effects) error {
	if s.Groups.Len() > 0 {
		return ErrGroupsExist
	}
	if s.Selection.InProgress || s.DKG.InProgress {
		return ErrSelectionRunning
	}
	fee, err := relay.GroupCreationFee(s.Params)
	if err != nil {
		return err
	}
	if s.Pools.DKGFeePool.Lt(&fee) {
		return ErrInsufficientPool
	}
	return maybeStartSelection(s, s.Relay.LastEntry, env, fx)
}

func requestEntry(s *State, t RequestEntry, env Env, fx *Effects) error {
	req, err := s.Relay.Request(s.Params, t.CallbackGas, t.Payment, t.From, env.Height, &s.Groups)
	if err != nil {
		return err
	}

	if err := addTo(&s.Pools.DKGFeePool, req.Fees.DKGContributionFee); err != nil {
		return err
	}
	total, err := req.Fees.Total()
	if err != nil {
		return err
	}
	excess := safemath.SaturatingSub(t.Payment, total)
	if err := addTo(&s.Pools.SubsidyPool, excess); err != nil {
		return err
	}

	fx.emit(requested(req))
	return nil
}

func requested(req relay.Request) events.RelayEntryRequested {
	return events.RelayEntryRequested{
		RequestID:     req.ID,
		PreviousEntry: slices.Clone(req.PreviousEntry),
		GroupIndex:    req.GroupIndex,
		Requester:     req.Requester,
	}
}

func submitEntry(s *State, t SubmitEntry, env Env, verifier relay.Verifier, fx *Effects) error {
	out, err := s.Relay.Submit(s.Params, t.Signature, env.Height, &s.Groups, verifier)
	if err != nil {
		return err
	}
	req := out.Request

	fx.pay(t.From, out.Rewards.SubmitterReward, "relay entry submission")

	surplus, err := relay.CallbackSurplus(s.Params, req.CallbackGas, env.GasPrice)
	if err != nil {
		return err
	}
	surplus = safemath.Min(surplus, req.Fees.CallbackFee)
	fx.pay(t.From, safemath.SaturatingSub(req.Fees.CallbackFee, surplus), "callback execution")
	fx.pay(req.Requester, surplus, "callback surplus")

	pool, err := safemath.Add(s.Pools.SubsidyPool, out.Rewards.Subsidy)
	if err != nil {
		return err
	}
	subsidy, err := safemath.MulDiv(pool, safemath.U64(RequesterSubsidyPercent), safemath.U64(100))
	if err != nil {
		return err
	}
	s.Pools.SubsidyPool = safemath.SaturatingSub(pool, subsidy)
	fx.pay(req.Requester, subsidy, "request subsidy")

	fx.emit(events.RelayEntrySubmitted{
		RequestID: req.ID,
		Entry:     slices.Clone(out.Entry),
		Submitter: t.From,
	})
	return maybeStartSelection(s, out.Entry, env, fx)
}

func reportRelayTimeout(s *State, t ReportRelayTimeout, env Env, fx *Effects) error {
	report, err := s.Relay.ReportTimeout(s.Params, env.Height, &s.Groups)
	if err != nil {
		return err
	}

	s.Staking.Seize(s.Params.RelayEntryTimeoutPenalty, s.Params.TattletaleRewardMultiplier, t.From, report.Members)

	fx.emit(
		events.RelayEntryTimedOut{
			RequestID:  report.Request.ID,
			GroupIndex: report.TerminatedGroup,
			Reporter:   t.From,
		},
		events.GroupTerminated{Index: report.TerminatedGroup},
	)

	if report.Retried {
		fx.emit(requested(report.Request))
		return nil
	}

	// Nobody is left to serve the request, the requester gets back what
	// was held for it.
	fees := report.Request.Fees
	refund, err := safemath.Add(fees.EntryVerificationFee, fees.GroupProfitFee)
	if err != nil {
		return err
	}
	if refund, err = safemath.Add(refund, fees.CallbackFee); err != nil {
		return err
	}
	fx.pay(report.Request.Requester, refund, "dropped request refund")
	return nil
}

func withdrawMemberRewards(s *State, t WithdrawMemberRewards, env Env, fx *Effects) error {
	amount, err := s.Groups.WithdrawMemberRewards(s.Params, t.Operator, t.GroupIndex, env.Height)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}

	beneficiary := s.Staking.BeneficiaryOf(t.Operator)
	fx.pay(beneficiary, amount, "group member rewards")
	fx.emit(events.GroupMemberRewardsWithdrawn{
		Beneficiary: beneficiary,
		Operator:    t.Operator,
		GroupIndex:  t.GroupIndex,
		Amount:      amount,
	})
	return nil
}

func beginParameterUpdate(s *State, t BeginParameterUpdate, env Env, fx *Effects) error {
	ev, err := s.Governance.BeginUpdate(s.Params, t.From, t.Name, t.Value, env.Timestamp)
	if err != nil {
		return err
	}
	fx.emit(ev)
	return nil
}

func finalizeParameterUpdate(s *State, t FinalizeParameterUpdate, env Env, fx *Effects) error {
	ev, err := s.Governance.FinalizeUpdate(&s.Params, t.From, t.Name, env.Timestamp)
	if err != nil {
		return err
	}
	fx.emit(ev)
	return nil
}

func allocateRewards(s *State, t AllocateRewards, env Env, fx *Effects) error {
	allocated, err := s.Rewards.AllocateInterval(t.Interval, env.Timestamp, &s.Groups)
	if err != nil {
		return err
	}
	intervals := make([]uint64, 0, len(allocated))
	for i := range allocated {
		intervals = append(intervals, i)
	}
	slices.Sort(intervals)
	for _, i := range intervals {
		fx.emit(events.RewardsAllocated{Interval: i, Amount: allocated[i].Amount})
	}
	return nil
}

func receiveReward(s *State, t ReceiveReward, env Env, fx *Effects) error {
	payments, total, err := s.Rewards.ReceiveReward(s.Params, t.GroupIndex, env.Height, &s.Groups, s.Staking)
	if err != nil {
		return err
	}
	for _, p := range payments {
		s.Staking.Credit(p.Beneficiary, p.Amount)
	}
	fx.emit(events.RewardReceived{GroupIndex: t.GroupIndex, Amount: total})
	return nil
}

func stake(s *State, t Stake) error {
	if err := s.Staking.Deposit(t.From, t.StakingProvider, t.Beneficiary, t.Amount); err != nil {
		return err
	}
	return s.Staking.AuthorizeOperatorContract(t.From, s.Params.OperatorContract)
}

func fund(pool *uint256.Int, amount uint256.Int) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	return addTo(pool, amount)
}

func addTo(pool *uint256.Int, amount uint256.Int) error {
	sum, err := safemath.Add(*pool, amount)
	if err != nil {
		return err
	}
	*pool = sum
	return nil
}

// Tickets returns the tickets operator may submit to the running
// selection: those below the natural threshold for its weight
func Tickets(s *State, operator common.Address, poolWeight uint64) []sortition.Ticket {
	weight := sortition.Weight(s.Staking, operator, s.Params.OperatorContract)
	all := sortition.GenerateTickets(s.Selection.Seed, operator, weight)
	return sortition.FilterBelow(all, sortition.NaturalThreshold(s.Params.GroupSize, poolWeight))
}
