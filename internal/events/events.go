package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/height"
)

// Event is something observable that happened during a transition
type Event interface {
	Name() string
}

type GroupSelectionStarted struct {
	Seed        uint256.Int
	StartHeight height.Height
}

type DkgResultSubmitted struct {
	SubmitterIndex uint64
	Submitter      common.Address
	GroupPublicKey []byte
	Misbehaved     []byte
}

type DkgResultTimedOut struct {
	SelectionStart height.Height
}

type GroupRegistered struct {
	Index     uint64
	PublicKey []byte
	Members   []common.Address
}

type RelayEntryRequested struct {
	RequestID     uint64
	PreviousEntry []byte
	GroupIndex    uint64
	Requester     common.Address
}

type RelayEntrySubmitted struct {
	RequestID uint64
	Entry     []byte
	Submitter common.Address
}

type RelayEntryTimedOut struct {
	RequestID  uint64
	GroupIndex uint64
	Reporter   common.Address
}

type GroupTerminated struct {
	Index uint64
}

type GroupMemberRewardsWithdrawn struct {
	Beneficiary common.Address
	Operator    common.Address
	GroupIndex  uint64
	Amount      uint256.Int
}

type ParameterUpdateStarted struct {
	Parameter string
	Value     uint256.Int
	Timestamp int64
}

type ParameterUpdated struct {
	Parameter string
	Value     uint256.Int
}

type RewardsAllocated struct {
	Interval uint64
	Amount   uint256.Int
}

type RewardReceived struct {
	GroupIndex uint64
	Amount     uint256.Int
}

func (GroupSelectionStarted) Name() string       { return "GroupSelectionStarted" }
func (DkgResultSubmitted) Name() string          { return "DkgResultSubmitted" }
func (DkgResultTimedOut) Name() string           { return "DkgResultTimedOut" }
func (GroupRegistered) Name() string             { return "GroupRegistered" }
func (RelayEntryRequested) Name() string         { return "RelayEntryRequested" }
func (RelayEntrySubmitted) Name() string         { return "RelayEntrySubmitted" }
func (RelayEntryTimedOut) Name() string          { return "RelayEntryTimedOut" }
func (GroupTerminated) Name() string             { return "GroupTerminated" }
func (GroupMemberRewardsWithdrawn) Name() string { return "GroupMemberRewardsWithdrawn" }
func (ParameterUpdateStarted) Name() string      { return "ParameterUpdateStarted" }
func (ParameterUpdated) Name() string            { return "ParameterUpdated" }
func (RewardsAllocated) Name() string            { return "RewardsAllocated" }
func (RewardReceived) Name() string              { return "RewardReceived" }
