package staking

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/safemath"
)

// TattletaleRewardPercent is the share of seized tokens the reporter
// receives before the reward multiplier is applied.
const TattletaleRewardPercent = 5

// Staking is the view of the token staking contract used by the beacon.
type Staking interface {
	MinimumStake() uint256.Int
	EligibleStake(operator, operatorContract common.Address) uint256.Int
	AuthorizeOperatorContract(operator, operatorContract common.Address) error
	Slash(amount uint256.Int, operators []common.Address) uint256.Int
	Seize(amount uint256.Int, rewardMultiplier uint64, tattletale common.Address, operators []common.Address) (seized, reward uint256.Int)
	OperatorToStakingProvider(operator common.Address) (common.Address, error)
	BeneficiaryOf(operator common.Address) common.Address
}

// Stake is what an operator has locked
type Stake struct {
	Amount          uint256.Int
	StakingProvider common.Address
	Beneficiary     common.Address
	Authorized      []common.Address
}

// Ledger is an in memory staking contract. It is part of the beacon state
// and cloned with it on every transition.
type Ledger struct {
	Minimum  uint256.Int
	Stakes   map[common.Address]Stake
	Balances map[common.Address]uint256.Int
	Burned   uint256.Int
}

var _ Staking = (*Ledger)(nil)

func NewLedger(minimumStake uint256.Int) *Ledger {
	return &Ledger{
		Minimum:  minimumStake,
		Stakes:   make(map[common.Address]Stake),
		Balances: make(map[common.Address]uint256.Int),
	}
}

// Clone returns a deep copy of the ledger
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Minimum:  l.Minimum,
		Stakes:   make(map[common.Address]Stake, len(l.Stakes)),
		Balances: make(map[common.Address]uint256.Int, len(l.Balances)),
		Burned:   l.Burned,
	}
	for op, s := range l.Stakes {
		s.Authorized = slices.Clone(s.Authorized)
		c.Stakes[op] = s
	}
	for addr, b := range l.Balances {
		c.Balances[addr] = b
	}
	return c
}

// Deposit registers a new stake for operator
func (l *Ledger) Deposit(operator, provider, beneficiary common.Address, amount uint256.Int) error {
	if amount.IsZero() {
		return ErrZeroStake
	}
	if _, ok := l.Stakes[operator]; ok {
		return ErrAlreadyStaked
	}
	l.Stakes[operator] = Stake{
		Amount:          amount,
		StakingProvider: provider,
		Beneficiary:     beneficiary,
	}
	return nil
}

func (l *Ledger) MinimumStake() uint256.Int {
	return l.Minimum
}

// EligibleStake is the operator stake if the operator authorized the
// contract, zero otherwise
func (l *Ledger) EligibleStake(operator, operatorContract common.Address) uint256.Int {
	s, ok := l.Stakes[operator]
	if !ok || !slices.Contains(s.Authorized, operatorContract) {
		return uint256.Int{}
	}
	return s.Amount
}

func (l *Ledger) AuthorizeOperatorContract(operator, operatorContract common.Address) error {
	s, ok := l.Stakes[operator]
	if !ok {
		return ErrStakeNotActive
	}
	if !slices.Contains(s.Authorized, operatorContract) {
		s.Authorized = append(s.Authorized, operatorContract)
		l.Stakes[operator] = s
	}
	return nil
}

// Slash burns up to amount from each operator. Operators with less stake
// lose everything they have. It returns the total burned.
func (l *Ledger) Slash(amount uint256.Int, operators []common.Address) uint256.Int {
	total := l.take(amount, operators)
	l.Burned = saturatingAdd(l.Burned, total)
	return total
}

// Seize works like Slash but pays a part of the total to the tattletale:
// total * 5% * rewardMultiplier%. The rest is burned.
func (l *Ledger) Seize(amount uint256.Int, rewardMultiplier uint64, tattletale common.Address, operators []common.Address) (uint256.Int, uint256.Int) {
	total := l.take(amount, operators)

	var reward uint256.Int
	reward.Mul(&total, uint256.NewInt(TattletaleRewardPercent))
	reward.Div(&reward, uint256.NewInt(100))
	reward.Mul(&reward, uint256.NewInt(rewardMultiplier))
	reward.Div(&reward, uint256.NewInt(100))

	l.Balances[tattletale] = saturatingAdd(l.Balances[tattletale], reward)
	l.Burned = saturatingAdd(l.Burned, safemath.SaturatingSub(total, reward))
	return total, reward
}

func (l *Ledger) take(amount uint256.Int, operators []common.Address) uint256.Int {
	var total uint256.Int
	for _, op := range operators {
		s, ok := l.Stakes[op]
		if !ok {
			continue
		}
		applied := safemath.Min(amount, s.Amount)
		s.Amount.Sub(&s.Amount, &applied)
		l.Stakes[op] = s
		total = saturatingAdd(total, applied)
	}
	return total
}

func (l *Ledger) OperatorToStakingProvider(operator common.Address) (common.Address, error) {
	s, ok := l.Stakes[operator]
	if !ok {
		return common.Address{}, ErrStakeNotActive
	}
	return s.StakingProvider, nil
}

// BeneficiaryOf returns where operator rewards go. Operators without a
// stake or without a configured beneficiary are paid directly.
func (l *Ledger) BeneficiaryOf(operator common.Address) common.Address {
	s, ok := l.Stakes[operator]
	if !ok || s.Beneficiary == (common.Address{}) {
		return operator
	}
	return s.Beneficiary
}

// BalanceOf returns tokens paid out to addr by the ledger
func (l *Ledger) BalanceOf(addr common.Address) uint256.Int {
	return l.Balances[addr]
}

// Credit adds tokens to addr's balance
func (l *Ledger) Credit(addr common.Address, amount uint256.Int) {
	if l.Balances == nil {
		l.Balances = make(map[common.Address]uint256.Int)
	}
	l.Balances[addr] = saturatingAdd(l.Balances[addr], amount)
}

func saturatingAdd(a, b uint256.Int) uint256.Int {
	v, err := safemath.Add(a, b)
	if err != nil {
		return *new(uint256.Int).SetAllOne()
	}
	return v
}
