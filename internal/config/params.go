package config

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Params are the protocol constants every transition reads. Durations are
// counted in heights.
type Params struct {
	GroupSize                  uint64 `mapstructure:"group_size"`
	SignatureThreshold         uint64 `mapstructure:"signature_threshold"`
	TicketSubmissionTimeout    uint64 `mapstructure:"ticket_submission_timeout"`
	TimeDKG                    uint64 `mapstructure:"time_dkg"`
	ResultPublicationBlockStep uint64 `mapstructure:"result_publication_block_step"`
	RelayEntryTimeout          uint64 `mapstructure:"relay_entry_timeout"`
	GroupActiveTime            uint64 `mapstructure:"group_active_time"`

	GasPriceCeiling              uint256.Int `mapstructure:"gas_price_ceiling"`
	EntryVerificationGasEstimate uint64      `mapstructure:"entry_verification_gas_estimate"`
	GroupCreationGasEstimate     uint64      `mapstructure:"group_creation_gas_estimate"`
	DKGContributionMargin        uint64      `mapstructure:"dkg_contribution_margin"`
	GroupMemberBaseReward        uint256.Int `mapstructure:"group_member_base_reward"`
	CallbackGasLimit             uint64      `mapstructure:"callback_gas_limit"`
	BaseCallbackGas              uint64      `mapstructure:"base_callback_gas"`

	RelayEntryTimeoutPenalty   uint256.Int    `mapstructure:"relay_entry_timeout_penalty"`
	TattletaleRewardMultiplier uint64         `mapstructure:"tattletale_reward_multiplier"`
	OperatorContract           common.Address `mapstructure:"operator_contract"`
}

// DefaultParams returns mainnet like constants
func DefaultParams() Params {
	return Params{
		GroupSize:                    64,
		SignatureThreshold:           33,
		TicketSubmissionTimeout:      12,
		TimeDKG:                      13,
		ResultPublicationBlockStep:   3,
		RelayEntryTimeout:            384,
		GroupActiveTime:              80640,
		GasPriceCeiling:              *uint256.NewInt(30_000_000_000),
		EntryVerificationGasEstimate: 1_240_000,
		GroupCreationGasEstimate:     2_260_000,
		DKGContributionMargin:        10,
		GroupMemberBaseReward:        *uint256.NewInt(1_050_000_000_000_000),
		CallbackGasLimit:             200_000,
		BaseCallbackGas:              18_845,
		RelayEntryTimeoutPenalty:     *uint256.MustFromDecimal("100000000000000000000000"),
		TattletaleRewardMultiplier:   100,
		OperatorContract:             common.HexToAddress("0x000000000000000000000000000000000000bEac"),
	}
}

// ResultPublicationTime is how many heights after the start of ticket
// submission the first DKG result may be published.
func (p Params) ResultPublicationTime() uint64 {
	return p.TicketSubmissionTimeout + p.TimeDKG
}

// DKGResultWindow is how long all eligible submitters have to publish a
// result once publication opens.
func (p Params) DKGResultWindow() uint64 {
	return p.GroupSize * p.ResultPublicationBlockStep
}

// MaxMisbehaved is the number of members that can be excluded before the
// group is unable to reach the signature threshold.
func (p Params) MaxMisbehaved() uint64 {
	if p.SignatureThreshold > p.GroupSize {
		return 0
	}
	return p.GroupSize - p.SignatureThreshold
}

type field struct {
	u64 func(p *Params) *uint64
	big func(p *Params) *uint256.Int
}

var fields = map[string]field{
	"groupSize":                    {u64: func(p *Params) *uint64 { return &p.GroupSize }},
	"signatureThreshold":           {u64: func(p *Params) *uint64 { return &p.SignatureThreshold }},
	"ticketSubmissionTimeout":      {u64: func(p *Params) *uint64 { return &p.TicketSubmissionTimeout }},
	"timeDKG":                      {u64: func(p *Params) *uint64 { return &p.TimeDKG }},
	"resultPublicationBlockStep":   {u64: func(p *Params) *uint64 { return &p.ResultPublicationBlockStep }},
	"relayEntryTimeout":            {u64: func(p *Params) *uint64 { return &p.RelayEntryTimeout }},
	"groupActiveTime":              {u64: func(p *Params) *uint64 { return &p.GroupActiveTime }},
	"gasPriceCeiling":              {big: func(p *Params) *uint256.Int { return &p.GasPriceCeiling }},
	"entryVerificationGasEstimate": {u64: func(p *Params) *uint64 { return &p.EntryVerificationGasEstimate }},
	"groupCreationGasEstimate":     {u64: func(p *Params) *uint64 { return &p.GroupCreationGasEstimate }},
	"dkgContributionMargin":        {u64: func(p *Params) *uint64 { return &p.DKGContributionMargin }},
	"groupMemberBaseReward":        {big: func(p *Params) *uint256.Int { return &p.GroupMemberBaseReward }},
	"callbackGasLimit":             {u64: func(p *Params) *uint64 { return &p.CallbackGasLimit }},
	"baseCallbackGas":              {u64: func(p *Params) *uint64 { return &p.BaseCallbackGas }},
	"relayEntryTimeoutPenalty":     {big: func(p *Params) *uint256.Int { return &p.RelayEntryTimeoutPenalty }},
	"tattletaleRewardMultiplier":   {u64: func(p *Params) *uint64 { return &p.TattletaleRewardMultiplier }},
}

// ParamNames lists every named parameter in lexical order
func ParamNames() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the value of a named parameter
func (p *Params) Get(name string) (uint256.Int, error) {
	f, ok := fields[name]
	if !ok {
		return uint256.Int{}, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	if f.u64 != nil {
		return *uint256.NewInt(*f.u64(p)), nil
	}
	return *f.big(p), nil
}

// Set updates a named parameter
func (p *Params) Set(name string, v uint256.Int) error {
	f, ok := fields[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	if f.u64 != nil {
		if !v.IsUint64() {
			return fmt.Errorf("%w: %s", ErrValueTooLarge, name)
		}
		*f.u64(p) = v.Uint64()
		return nil
	}
	*f.big(p) = v
	return nil
}
