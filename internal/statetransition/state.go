package statetransition

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/dkg"
	"github.com/eigerco/beacon/internal/governance"
	"github.com/eigerco/beacon/internal/groups"
	"github.com/eigerco/beacon/internal/relay"
	"github.com/eigerco/beacon/internal/rewards"
	"github.com/eigerco/beacon/internal/sortition"
	"github.com/eigerco/beacon/internal/staking"
)

// Pools are funds held by the protocol itself
type Pools struct {
	DKGFeePool  uint256.Int
	SubsidyPool uint256.Int
}

// State is everything a transition reads or writes
type State struct {
	Params     config.Params
	Selection  sortition.Pool
	DKG        dkg.Round
	Relay      relay.Beacon
	Groups     groups.Registry
	Staking    *staking.Ledger
	Rewards    rewards.Allocator
	Governance governance.Governance
	Pools      Pools
}

// Clone returns a deep copy. Transitions only ever mutate a clone.
func (s *State) Clone() State {
	c := State{
		Params:     s.Params,
		Selection:  s.Selection.Clone(),
		DKG:        s.DKG,
		Relay:      s.Relay.Clone(),
		Groups:     s.Groups.Clone(),
		Rewards:    s.Rewards.Clone(),
		Governance: s.Governance.Clone(),
		Pools:      s.Pools,
	}
	if s.Staking != nil {
		c.Staking = s.Staking.Clone()
	}
	return c
}

// NewGenesisState builds the first state of a chain: the genesis stakes
// authorize the beacon operator contract right away.
func NewGenesisState(cfg config.Config) (State, error) {
	ledger := staking.NewLedger(cfg.Genesis.MinimumStake)
	for _, st := range cfg.Genesis.Stakes {
		if err := ledger.Deposit(st.Operator, st.StakingProvider, st.Beneficiary, st.Amount); err != nil {
			return State{}, fmt.Errorf("genesis stake %s: %w", st.Operator, err)
		}
		if err := ledger.AuthorizeOperatorContract(st.Operator, cfg.Params.OperatorContract); err != nil {
			return State{}, fmt.Errorf("authorize %s: %w", st.Operator, err)
		}
	}

	return State{
		Params:     cfg.Params,
		Relay:      relay.NewBeacon(),
		Staking:    ledger,
		Rewards:    rewards.NewAllocator(cfg.Rewards),
		Governance: governance.New(cfg.Genesis.Owner),
		Pools:      Pools{DKGFeePool: cfg.Genesis.DKGFeePool},
	}, nil
}
