package sortition

import (
	"maps"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/staking"
)

// Pool is a single group selection round. It keeps at most GroupSize
// tickets ordered by value and remembers every submission to reject
// duplicates.
type Pool struct {
	InProgress bool
	Seed       uint256.Int
	Start      height.Height
	Tickets    []Ticket
	Submitted  map[TicketID]struct{}
}

// Clone returns a deep copy of the round
func (p *Pool) Clone() Pool {
	return Pool{
		InProgress: p.InProgress,
		Seed:       p.Seed,
		Start:      p.Start,
		Tickets:    slices.Clone(p.Tickets),
		Submitted:  maps.Clone(p.Submitted),
	}
}

// Begin opens a new round and discards everything from the previous one
func (p *Pool) Begin(seed uint256.Int, h height.Height) {
	p.InProgress = true
	p.Seed = seed
	p.Start = h
	p.Tickets = nil
	p.Submitted = make(map[TicketID]struct{})
}

// Finish closes the round once the group it selected was registered or
// abandoned
func (p *Pool) Finish() {
	p.InProgress = false
}

// SubmissionWindow is the range of heights tickets are accepted in
func (p *Pool) SubmissionWindow(params config.Params) height.Window {
	return height.Window{Start: p.Start, Length: params.TicketSubmissionTimeout}
}

// Weight returns how many virtual stakers an operator counts as
func Weight(st staking.Staking, operator, operatorContract common.Address) uint64 {
	minimum := st.MinimumStake()
	if minimum.IsZero() {
		return 0
	}
	eligible := st.EligibleStake(operator, operatorContract)
	var w uint256.Int
	w.Div(&eligible, &minimum)
	if !w.IsUint64() {
		return ^uint64(0)
	}
	return w.Uint64()
}

// SubmitTicket validates a ticket and stores it if it ranks among the
// GroupSize lowest values seen so far. A valid ticket that does not make
// the cut is still recorded for duplicate detection.
func (p *Pool) SubmitTicket(params config.Params, t Ticket, h height.Height, st staking.Staking) error {
	if !p.InProgress {
		return ErrNoSelectionInProgress
	}
	if p.SubmissionWindow(params).Closed(h) {
		return ErrTicketSubmissionOver
	}

	weight := Weight(st, t.Operator, params.OperatorContract)
	if t.VirtualIndex == 0 || t.VirtualIndex > weight {
		return ErrInvalidTicket
	}
	expected := TicketValue(p.Seed, t.Operator, t.VirtualIndex)
	if !expected.Eq(&t.Value) {
		return ErrInvalidTicket
	}

	if p.Submitted == nil {
		p.Submitted = make(map[TicketID]struct{})
	}
	id := ticketID(t.Operator, t.VirtualIndex)
	if _, ok := p.Submitted[id]; ok {
		return ErrDuplicateTicket
	}
	p.Submitted[id] = struct{}{}

	p.insert(t, params.GroupSize)
	return nil
}

func (p *Pool) insert(t Ticket, limit uint64) {
	if limit == 0 {
		return
	}
	// first stored ticket with a strictly greater value, equal values keep
	// their submission order
	i := sort.Search(len(p.Tickets), func(i int) bool {
		return p.Tickets[i].Value.Gt(&t.Value)
	})
	if uint64(len(p.Tickets)) >= limit {
		if i == len(p.Tickets) {
			return
		}
		p.Tickets = p.Tickets[:len(p.Tickets)-1]
	}
	p.Tickets = slices.Insert(p.Tickets, i, t)
}

// SelectedParticipants returns the operators of the stored tickets in
// ascending ticket value order once ticket submission is over. An operator
// appears once per stored ticket. Fewer than GroupSize tickets yield a
// shorter list.
func (p *Pool) SelectedParticipants(params config.Params, h height.Height) ([]common.Address, error) {
	if !p.InProgress {
		return nil, ErrNoSelectionInProgress
	}
	if !p.SubmissionWindow(params).Closed(h) {
		return nil, ErrTicketSubmissionInProgress
	}
	out := make([]common.Address, len(p.Tickets))
	for i, t := range p.Tickets {
		out[i] = t.Operator
	}
	return out, nil
}
