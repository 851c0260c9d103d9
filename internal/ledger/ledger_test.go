package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/events"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/relay"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/internal/store"
	"github.com/eigerco/beacon/pkg/db/pebble"
)

var (
	genesisTime = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	funder      = common.HexToAddress("0xf0")
)

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

type recorder struct {
	mu     sync.Mutex
	names  []string
	height []height.Height
}

func (r *recorder) Handle(h height.Height, evs []events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range evs {
		r.names = append(r.names, ev.Name())
		r.height = append(r.height, h)
	}
	return nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	s := store.New(kv)
	t.Cleanup(func() {
		require.NoError(t, s.Close(), "failed to close db")
	})
	return s
}

func genesisState(t *testing.T) statetransition.State {
	t.Helper()
	cfg := config.Default()
	fee, err := relay.GroupCreationFee(cfg.Params)
	require.NoError(t, err)
	cfg.Genesis.DKGFeePool = fee
	s, err := statetransition.NewGenesisState(cfg)
	require.NoError(t, err)
	return s
}

func newLedger(t *testing.T, st *store.Store, clock *fakeTime, bus *events.Bus, snapshotInterval uint64) *Ledger {
	t.Helper()
	c, err := height.NewClock(genesisTime, time.Second)
	require.NoError(t, err)
	l, err := New(genesisState(t), st, bus, Config{
		Clock:            c,
		GasPrice:         *uint256.NewInt(20_000_000_000),
		SnapshotInterval: snapshotInterval,
		Now:              clock.Now,
	})
	require.NoError(t, err)
	return l
}

// start runs l until the test ends or stop is called
func start(t *testing.T, l *Ledger) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var once sync.Once
	var runErr error
	stop = func() error {
		once.Do(func() {
			cancel()
			runErr = <-done
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func fundSubsidy(amount uint64) statetransition.FundSubsidyPool {
	return statetransition.FundSubsidyPool{From: funder, Amount: *uint256.NewInt(amount)}
}

func TestSubmit(t *testing.T) {
	st := newStore(t)
	clock := &fakeTime{now: genesisTime.Add(10 * time.Second)}
	rec := &recorder{}
	l := newLedger(t, st, clock, events.NewBus(rec), 0)
	start(t, l)
	ctx := context.Background()

	receipt, err := l.Submit(ctx, statetransition.Genesis{From: funder})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Seq)
	assert.Equal(t, height.Height(10), receipt.Height)
	require.Len(t, receipt.Effects.Events, 1)
	assert.Equal(t, "GroupSelectionStarted", receipt.Effects.Events[0].Name())
	assert.Equal(t, []string{"GroupSelectionStarted"}, rec.names)
	assert.Equal(t, []height.Height{10}, rec.height)

	s := l.State()
	assert.True(t, s.Selection.InProgress)
	assert.True(t, s.DKG.InProgress)
	assert.True(t, s.Pools.DKGFeePool.IsZero())

	t.Run("rejected transaction leaves no trace", func(t *testing.T) {
		_, err := l.Submit(ctx, statetransition.Genesis{From: funder})
		assert.ErrorIs(t, err, statetransition.ErrSelectionRunning)
		assert.Equal(t, uint64(1), l.Seq())

		last, err := st.Txs.Last()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), last)
	})

	t.Run("logged record replays", func(t *testing.T) {
		r, err := st.Txs.Get(1)
		require.NoError(t, err)
		tx, err := r.Decode()
		require.NoError(t, err)
		assert.Equal(t, statetransition.Genesis{From: funder}, tx)
		assert.Equal(t, height.Height(10), r.Height)
		assert.Equal(t, genesisTime.Add(10*time.Second).Unix(), r.Timestamp)
	})
}

func TestSubmitConcurrently(t *testing.T) {
	st := newStore(t)
	clock := &fakeTime{now: genesisTime}
	l := newLedger(t, st, clock, nil, 0)
	start(t, l)

	const n = 20
	seqs := make([]uint64, n)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			r, err := l.Submit(ctx, fundSubsidy(1))
			seqs[i] = r.Seq
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, uint64(n), l.Seq())
	s := l.State()
	assert.Equal(t, uint64(n), s.Pools.SubsidyPool.Uint64())
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, seqs)
}

func TestHeightNeverDecreases(t *testing.T) {
	st := newStore(t)
	clock := &fakeTime{now: genesisTime.Add(50 * time.Second)}
	l := newLedger(t, st, clock, nil, 0)
	start(t, l)
	ctx := context.Background()

	r, err := l.Submit(ctx, fundSubsidy(1))
	require.NoError(t, err)
	assert.Equal(t, height.Height(50), r.Height)

	clock.Set(genesisTime.Add(20 * time.Second))
	r, err = l.Submit(ctx, fundSubsidy(1))
	require.NoError(t, err)
	assert.Equal(t, height.Height(50), r.Height)

	rec, err := st.Txs.Get(2)
	require.NoError(t, err)
	assert.Equal(t, genesisTime.Add(50*time.Second).Unix(), rec.Timestamp)

	clock.Set(genesisTime.Add(70 * time.Second))
	assert.Equal(t, height.Height(70), l.Height())
}

func TestRestore(t *testing.T) {
	st := newStore(t)
	clock := &fakeTime{now: genesisTime.Add(5 * time.Second)}
	l := newLedger(t, st, clock, nil, 2)
	stop := start(t, l)
	ctx := context.Background()

	for _, amount := range []uint64{1, 2, 3} {
		_, err := l.Submit(ctx, fundSubsidy(amount))
		require.NoError(t, err)
	}
	require.NoError(t, stop())
	want := l.State()

	snap, err := st.Snapshots.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Seq)

	restored := newLedger(t, st, clock, nil, 2)
	assert.Equal(t, uint64(3), restored.Seq())
	got := restored.State()
	assert.Equal(t, want.Pools, got.Pools)
	assert.Equal(t, uint64(6), got.Pools.SubsidyPool.Uint64())
	assert.Equal(t, want.Relay.LastEntry, got.Relay.LastEntry)
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	st := newStore(t)
	clock := &fakeTime{now: genesisTime}
	l := newLedger(t, st, clock, nil, 0)
	stop := start(t, l)

	_, err := l.Submit(context.Background(), fundSubsidy(9))
	require.NoError(t, err)
	require.NoError(t, stop())

	restored := newLedger(t, st, clock, nil, 0)
	assert.Equal(t, uint64(1), restored.Seq())
	got := restored.State()
	assert.Equal(t, uint64(9), got.Pools.SubsidyPool.Uint64())
}

func TestStopped(t *testing.T) {
	st := newStore(t)
	clock := &fakeTime{now: genesisTime}
	l := newLedger(t, st, clock, nil, 0)
	stop := start(t, l)
	require.NoError(t, stop())

	_, err := l.Submit(context.Background(), fundSubsidy(1))
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, l.Run(context.Background()), ErrAlreadyRunning)
}

func TestSubmitHonoursContext(t *testing.T) {
	st := newStore(t)
	clock := &fakeTime{now: genesisTime}
	l := newLedger(t, st, clock, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Submit(ctx, fundSubsidy(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStorageFailureStopsLedger(t *testing.T) {
	kv, err := pebble.NewKVStore()
	require.NoError(t, err)
	st := store.New(kv)
	clock := &fakeTime{now: genesisTime}
	l := newLedger(t, st, clock, nil, 0)
	stop := start(t, l)

	require.NoError(t, st.Close())
	_, err = l.Submit(context.Background(), fundSubsidy(1))
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.ErrorIs(t, stop(), store.ErrStoreClosed)
	assert.Equal(t, uint64(0), l.Seq())
}
