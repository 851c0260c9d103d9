package ledger

import (
	"github.com/eigerco/beacon/internal/height"
)

// Status summarizes the beacon for peers and the HTTP server
type Status struct {
	Seq                 uint64
	Height              height.Height
	Groups              uint64
	ActiveGroups        uint64
	SelectionInProgress bool
	DKGInProgress       bool
	RequestInProgress   bool
	EntryCount          uint64
	LastEntry           []byte
}

func (l *Ledger) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h := l.env().Height
	s := &l.state
	return Status{
		Seq:                 l.seq,
		Height:              h,
		Groups:              s.Groups.Len(),
		ActiveGroups:        s.Groups.ActiveCount(s.Params, h),
		SelectionInProgress: s.Selection.InProgress,
		DKGInProgress:       s.DKG.InProgress,
		RequestInProgress:   s.Relay.InProgress,
		EntryCount:          s.Relay.EntryCount,
		LastEntry:           append([]byte(nil), s.Relay.LastEntry...),
	}
}
