package sortition

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/crypto"
)

// Ticket is a claim to a seat in the next group. Lower values win.
type Ticket struct {
	Value        uint256.Int
	Operator     common.Address
	VirtualIndex uint64
}

// TicketValue computes keccak256(seed ++ operator ++ virtualIndex) where
// the seed and virtual index are 32 byte big endian words.
func TicketValue(seed uint256.Int, operator common.Address, virtualIndex uint64) uint256.Int {
	seedBytes := seed.Bytes32()
	var index [32]byte
	binary.BigEndian.PutUint64(index[24:], virtualIndex)
	return crypto.KeccakData(seedBytes[:], operator.Bytes(), index[:]).Uint256()
}

// NewTicket builds a ticket with its computed value
func NewTicket(seed uint256.Int, operator common.Address, virtualIndex uint64) Ticket {
	return Ticket{
		Value:        TicketValue(seed, operator, virtualIndex),
		Operator:     operator,
		VirtualIndex: virtualIndex,
	}
}

// GenerateTickets returns all tickets an operator of the given weight can
// claim, sorted by ascending value.
func GenerateTickets(seed uint256.Int, operator common.Address, weight uint64) []Ticket {
	tickets := make([]Ticket, 0, weight)
	for i := uint64(1); i <= weight; i++ {
		tickets = append(tickets, NewTicket(seed, operator, i))
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].Value.Lt(&tickets[j].Value)
	})
	return tickets
}

// NaturalThreshold is the ticket value below which, on average, exactly
// groupSize of totalWeight uniformly distributed tickets fall.
func NaturalThreshold(groupSize, totalWeight uint64) uint256.Int {
	max := new(uint256.Int).SetAllOne()
	if totalWeight == 0 || groupSize >= totalWeight {
		return *max
	}
	var t uint256.Int
	if _, overflow := t.MulDivOverflow(max, uint256.NewInt(groupSize), uint256.NewInt(totalWeight)); overflow {
		return *max
	}
	return t
}

// FilterBelow keeps the tickets whose value is strictly below threshold
func FilterBelow(tickets []Ticket, threshold uint256.Int) []Ticket {
	var out []Ticket
	for _, t := range tickets {
		if t.Value.Lt(&threshold) {
			out = append(out, t)
		}
	}
	return out
}

func ticketID(operator common.Address, virtualIndex uint64) TicketID {
	var id TicketID
	copy(id[:common.AddressLength], operator.Bytes())
	binary.BigEndian.PutUint64(id[common.AddressLength:], virtualIndex)
	return id
}

// TicketID identifies a submission independently of its value
type TicketID [common.AddressLength + 8]byte
