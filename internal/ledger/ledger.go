package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/events"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/relay"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/internal/store"
	"github.com/eigerco/beacon/pkg/log"
)

// Config holds what the ledger needs besides its store and bus
type Config struct {
	Clock    *height.Clock
	Verifier relay.Verifier
	GasPrice uint256.Int
	// SnapshotInterval is the number of applied transactions between two
	// state snapshots. Zero disables snapshots.
	SnapshotInterval uint64
	QueueSize        int
	Metrics          Metrics
	// Now defaults to time.Now
	Now func() time.Time
}

// Metrics observes transaction processing
type Metrics interface {
	TransactionApplied(kind string, duration time.Duration)
	TransactionRejected(kind string)
	LedgerHeight(h height.Height)
}

type noopMetrics struct{}

func (noopMetrics) TransactionApplied(string, time.Duration) {}
func (noopMetrics) TransactionRejected(string)               {}
func (noopMetrics) LedgerHeight(height.Height)               {}

// Receipt describes an applied transaction
type Receipt struct {
	Seq     uint64
	Height  height.Height
	Effects statetransition.Effects
}

type result struct {
	receipt Receipt
	err     error
}

type submission struct {
	tx   statetransition.Tx
	done chan result
}

// Ledger applies transactions one at a time in submission order. Every
// applied transaction is appended to the transaction log before the new
// state becomes visible, and its events are published on the bus
// afterwards.
type Ledger struct {
	cfg   Config
	store *store.Store
	bus   *events.Bus

	mu    sync.RWMutex
	state statetransition.State
	seq   uint64
	last  statetransition.Env

	queue   chan submission
	running atomic.Bool
	stopped chan struct{}
}

// New restores the ledger from the latest snapshot and the transactions
// logged after it. An empty store starts from genesis.
func New(genesis statetransition.State, st *store.Store, bus *events.Bus, cfg Config) (*Ledger, error) {
	if cfg.Clock == nil {
		return nil, errors.New("ledger: clock is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if bus == nil {
		bus = events.NewBus()
	}
	l := &Ledger{
		cfg:     cfg,
		store:   st,
		bus:     bus,
		state:   genesis,
		queue:   make(chan submission, cfg.QueueSize),
		stopped: make(chan struct{}),
	}
	if err := l.restore(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) restore() error {
	snap, err := l.store.Snapshots.Latest()
	switch {
	case err == nil:
		l.state = snap.State
		l.seq = snap.Seq
		l.last.Height = snap.Height
		if snap.Seq > 0 {
			r, err := l.store.Txs.Get(snap.Seq)
			if err != nil {
				return fmt.Errorf("get snapshot record %d: %w", snap.Seq, err)
			}
			l.last = r.Env()
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("load snapshot: %w", err)
	}

	replayed := 0
	err = l.store.Txs.Range(l.seq+1, func(r store.Record) error {
		tx, err := r.Decode()
		if err != nil {
			return fmt.Errorf("decode record %d: %w", r.Seq, err)
		}
		next, _, err := statetransition.Apply(l.state, tx, r.Env(), l.cfg.Verifier)
		if err != nil {
			return fmt.Errorf("replay record %d: %w", r.Seq, err)
		}
		l.state = next
		l.seq = r.Seq
		l.last = r.Env()
		replayed++
		return nil
	})
	if err != nil {
		return err
	}

	log.Beacon.Info().
		Uint64("seq", l.seq).
		Uint64("height", uint64(l.last.Height)).
		Int("replayed", replayed).
		Msg("ledger restored")
	return nil
}

// Run applies queued transactions until ctx is done. A storage failure
// stops the ledger and is returned.
func (l *Ledger) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.stopped)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sub := <-l.queue:
			receipt, txErr, err := l.apply(sub.tx)
			if err != nil {
				sub.done <- result{err: err}
				return err
			}
			sub.done <- result{receipt: receipt, err: txErr}
		}
	}
}

// Submit queues tx and waits for it to be applied. When ctx ends first the
// transaction may still be applied later.
func (l *Ledger) Submit(ctx context.Context, tx statetransition.Tx) (Receipt, error) {
	done := make(chan result, 1)
	select {
	case l.queue <- submission{tx: tx, done: done}:
	case <-l.stopped:
		return Receipt{}, ErrStopped
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}

	select {
	case r := <-done:
		return r.receipt, r.err
	case <-l.stopped:
		// Run may have answered right before stopping
		select {
		case r := <-done:
			return r.receipt, r.err
		default:
			return Receipt{}, ErrStopped
		}
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// env builds the environment of the next transaction. Height and time never
// go backwards even if the wall clock does.
func (l *Ledger) env() statetransition.Env {
	now := l.cfg.Now()
	h, err := l.cfg.Clock.At(now)
	if err != nil {
		h = 0
	}
	env := statetransition.Env{Height: h, Timestamp: now.Unix(), GasPrice: l.cfg.GasPrice}
	if env.Height < l.last.Height {
		env.Height = l.last.Height
	}
	if env.Timestamp < l.last.Timestamp {
		env.Timestamp = l.last.Timestamp
	}
	return env
}

// apply returns the transaction's own error separately from a storage
// error, which is fatal
func (l *Ledger) apply(tx statetransition.Tx) (Receipt, error, error) {
	started := time.Now()
	env := l.env()

	l.mu.RLock()
	next, fx, err := statetransition.Apply(l.state, tx, env, l.cfg.Verifier)
	seq := l.seq + 1
	l.mu.RUnlock()
	if err != nil {
		log.Beacon.Debug().
			Stringer("kind", tx.Kind()).
			Str("sender", tx.Sender().Hex()).
			Uint64("height", uint64(env.Height)).
			Err(err).
			Msg("transaction rejected")
		l.cfg.Metrics.TransactionRejected(tx.Kind().String())
		return Receipt{}, err, nil
	}

	record, err := store.NewRecord(seq, tx, env)
	if err != nil {
		return Receipt{}, nil, fmt.Errorf("encode record %d: %w", seq, err)
	}
	if err := l.store.Txs.Append(record); err != nil {
		return Receipt{}, nil, fmt.Errorf("append record %d: %w", seq, err)
	}

	l.mu.Lock()
	l.state = next
	l.seq = seq
	l.last = env
	l.mu.Unlock()
	l.cfg.Metrics.TransactionApplied(tx.Kind().String(), time.Since(started))
	l.cfg.Metrics.LedgerHeight(env.Height)

	log.Beacon.Info().
		Uint64("seq", seq).
		Stringer("kind", tx.Kind()).
		Str("sender", tx.Sender().Hex()).
		Uint64("height", uint64(env.Height)).
		Int("events", len(fx.Events)).
		Msg("transaction applied")
	for _, p := range fx.Payouts {
		log.Beacon.Info().
			Str("to", p.To.Hex()).
			Str("amount", p.Amount.Dec()).
			Str("reason", p.Reason).
			Msg("payout")
	}

	if err := l.bus.Publish(env.Height, fx.Events); err != nil {
		log.Beacon.Error().Err(err).Uint64("seq", seq).Msg("publish events")
	}

	if l.cfg.SnapshotInterval > 0 && seq%l.cfg.SnapshotInterval == 0 {
		if err := l.snapshot(seq, env.Height, next); err != nil {
			log.Beacon.Error().Err(err).Uint64("seq", seq).Msg("snapshot")
		}
	}
	return Receipt{Seq: seq, Height: env.Height, Effects: fx}, nil, nil
}

func (l *Ledger) snapshot(seq uint64, h height.Height, s statetransition.State) error {
	if err := l.store.Snapshots.Put(store.Snapshot{Seq: seq, Height: h, State: s}); err != nil {
		return err
	}
	return l.store.Snapshots.PruneBefore(seq)
}

// State returns a copy of the current state
func (l *Ledger) State() statetransition.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone()
}

// Seq returns the sequence number of the last applied transaction
func (l *Ledger) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Height returns the height the next transaction will run at
func (l *Ledger) Height() height.Height {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.env().Height
}

// Bus returns the bus applied events are published on
func (l *Ledger) Bus() *events.Bus {
	return l.bus
}
