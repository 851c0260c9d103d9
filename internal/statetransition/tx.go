package statetransition

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/dkg"
	"github.com/eigerco/beacon/internal/sortition"
)

// Kind identifies a transaction type on the wire and in the log
type Kind uint8

const (
	KindSubmitTicket Kind = iota + 1
	KindSubmitDKGResult
	KindReportDKGTimeout
	KindRequestEntry
	KindSubmitEntry
	KindReportRelayTimeout
	KindWithdrawMemberRewards
	KindBeginParameterUpdate
	KindFinalizeParameterUpdate
	KindAllocateRewards
	KindReceiveReward
	KindReportGroupTermination
	KindFundDKGFeePool
	KindFundSubsidyPool
	KindStake
	KindGenesis
)

var kindNames = map[Kind]string{
	KindSubmitTicket:            "submit_ticket",
	KindSubmitDKGResult:         "submit_dkg_result",
	KindReportDKGTimeout:        "report_dkg_timeout",
	KindRequestEntry:            "request_entry",
	KindSubmitEntry:             "submit_entry",
	KindReportRelayTimeout:      "report_relay_timeout",
	KindWithdrawMemberRewards:   "withdraw_member_rewards",
	KindBeginParameterUpdate:    "begin_parameter_update",
	KindFinalizeParameterUpdate: "finalize_parameter_update",
	KindAllocateRewards:         "allocate_rewards",
	KindReceiveReward:           "receive_reward",
	KindReportGroupTermination:  "report_group_termination",
	KindFundDKGFeePool:          "fund_dkg_fee_pool",
	KindFundSubsidyPool:         "fund_subsidy_pool",
	KindStake:                   "stake",
	KindGenesis:                 "genesis",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Tx is a state changing call made by Sender
type Tx interface {
	Kind() Kind
	Sender() common.Address
}

type SubmitTicket struct {
	From   common.Address
	Ticket sortition.Ticket
}

type SubmitDKGResult struct {
	From   common.Address
	Result dkg.Result
}

type ReportDKGTimeout struct {
	From common.Address
}

type RequestEntry struct {
	From        common.Address
	CallbackGas uint64
	Payment     uint256.Int
}

type SubmitEntry struct {
	From      common.Address
	Signature []byte
}

type ReportRelayTimeout struct {
	From common.Address
}

type WithdrawMemberRewards struct {
	From       common.Address
	Operator   common.Address
	GroupIndex uint64
}

type BeginParameterUpdate struct {
	From  common.Address
	Name  string
	Value uint256.Int
}

type FinalizeParameterUpdate struct {
	From common.Address
	Name string
}

type AllocateRewards struct {
	From     common.Address
	Interval uint64
}

type ReceiveReward struct {
	From       common.Address
	GroupIndex uint64
}

type ReportGroupTermination struct {
	From       common.Address
	GroupIndex uint64
}

type FundDKGFeePool struct {
	From   common.Address
	Amount uint256.Int
}

type FundSubsidyPool struct {
	From   common.Address
	Amount uint256.Int
}

// Stake deposits a stake for the sender and authorizes the beacon
// operator contract for it
type Stake struct {
	From            common.Address
	StakingProvider common.Address
	Beneficiary     common.Address
	Amount          uint256.Int
}

// Genesis starts the very first group selection, seeded by the genesis
// entry and paid from the DKG fee pool
type Genesis struct {
	From common.Address
}

func (SubmitTicket) Kind() Kind            { return KindSubmitTicket }
func (SubmitDKGResult) Kind() Kind         { return KindSubmitDKGResult }
func (ReportDKGTimeout) Kind() Kind        { return KindReportDKGTimeout }
func (RequestEntry) Kind() Kind            { return KindRequestEntry }
func (SubmitEntry) Kind() Kind             { return KindSubmitEntry }
func (ReportRelayTimeout) Kind() Kind      { return KindReportRelayTimeout }
func (WithdrawMemberRewards) Kind() Kind   { return KindWithdrawMemberRewards }
func (BeginParameterUpdate) Kind() Kind    { return KindBeginParameterUpdate }
func (FinalizeParameterUpdate) Kind() Kind { return KindFinalizeParameterUpdate }
func (AllocateRewards) Kind() Kind         { return KindAllocateRewards }
func (ReceiveReward) Kind() Kind           { return KindReceiveReward }
func (ReportGroupTermination) Kind() Kind  { return KindReportGroupTermination }
func (FundDKGFeePool) Kind() Kind          { return KindFundDKGFeePool }
func (FundSubsidyPool) Kind() Kind         { return KindFundSubsidyPool }
func (Stake) Kind() Kind                   { return KindStake }
func (Genesis) Kind() Kind                 { return KindGenesis }

func (t SubmitTicket) Sender() common.Address            { return t.From }
func (t SubmitDKGResult) Sender() common.Address         { return t.From }
func (t ReportDKGTimeout) Sender() common.Address        { return t.From }
func (t RequestEntry) Sender() common.Address            { return t.From }
func (t SubmitEntry) Sender() common.Address             { return t.From }
func (t ReportRelayTimeout) Sender() common.Address      { return t.From }
func (t WithdrawMemberRewards) Sender() common.Address   { return t.From }
func (t BeginParameterUpdate) Sender() common.Address    { return t.From }
func (t FinalizeParameterUpdate) Sender() common.Address { return t.From }
func (t AllocateRewards) Sender() common.Address         { return t.From }
func (t ReceiveReward) Sender() common.Address           { return t.From }
func (t ReportGroupTermination) Sender() common.Address  { return t.From }
func (t FundDKGFeePool) Sender() common.Address          { return t.From }
func (t FundSubsidyPool) Sender() common.Address         { return t.From }
func (t Stake) Sender() common.Address                   { return t.From }
func (t Genesis) Sender() common.Address                 { return t.From }

func newTx(k Kind) (Tx, error) {
	switch k {
	case KindSubmitTicket:
		return &SubmitTicket{}, nil
	case KindSubmitDKGResult:
		return &SubmitDKGResult{}, nil
	case KindReportDKGTimeout:
		return &ReportDKGTimeout{}, nil
	case KindRequestEntry:
		return &RequestEntry{}, nil
	case KindSubmitEntry:
		return &SubmitEntry{}, nil
	case KindReportRelayTimeout:
		return &ReportRelayTimeout{}, nil
	case KindWithdrawMemberRewards:
		return &WithdrawMemberRewards{}, nil
	case KindBeginParameterUpdate:
		return &BeginParameterUpdate{}, nil
	case KindFinalizeParameterUpdate:
		return &FinalizeParameterUpdate{}, nil
	case KindAllocateRewards:
		return &AllocateRewards{}, nil
	case KindReceiveReward:
		return &ReceiveReward{}, nil
	case KindReportGroupTermination:
		return &ReportGroupTermination{}, nil
	case KindFundDKGFeePool:
		return &FundDKGFeePool{}, nil
	case KindFundSubsidyPool:
		return &FundSubsidyPool{}, nil
	case KindStake:
		return &Stake{}, nil
	case KindGenesis:
		return &Genesis{}, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownTransaction, k)
	}
}

type envelope struct {
	Kind Kind
	Body cbor.RawMessage
}

// EncodeTx serializes a transaction together with its kind
func EncodeTx(tx Tx) ([]byte, error) {
	body, err := cbor.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal tx body: %w", err)
	}
	return cbor.Marshal(envelope{Kind: tx.Kind(), Body: body})
}

// DecodeTx is the inverse of EncodeTx. It returns the transaction by value.
func DecodeTx(data []byte) (Tx, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal tx envelope: %w", err)
	}
	ptr, err := newTx(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := cbor.Unmarshal(env.Body, ptr); err != nil {
		return nil, fmt.Errorf("unmarshal tx body: %w", err)
	}
	return deref(ptr), nil
}

func deref(tx Tx) Tx {
	switch t := tx.(type) {
	case *SubmitTicket:
		return *t
	case *SubmitDKGResult:
		return *t
	case *ReportDKGTimeout:
		return *t
	case *RequestEntry:
		return *t
	case *SubmitEntry:
		return *t
	case *ReportRelayTimeout:
		return *t
	case *WithdrawMemberRewards:
		return *t
	case *BeginParameterUpdate:
		return *t
	case *FinalizeParameterUpdate:
		return *t
	case *AllocateRewards:
		return *t
	case *ReceiveReward:
		return *t
	case *ReportGroupTermination:
		return *t
	case *FundDKGFeePool:
		return *t
	case *FundSubsidyPool:
		return *t
	case *Stake:
		return *t
	case *Genesis:
		return *t
	}
	return tx
}
