package metrics

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eigerco/beacon/internal/events"
	"github.com/eigerco/beacon/internal/height"
)

// Collector turns ledger activity and published events into prometheus
// metrics. It is both an events.Sink and the ledger's Metrics.
type Collector struct {
	events          *prometheus.CounterVec
	applied         *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	applyDuration   prometheus.Histogram
	height          prometheus.Gauge
	groupsActive    prometheus.Gauge
	groupsTotal     prometheus.Counter
	terminated      prometheus.Counter
	entries         prometheus.Counter
	timeouts        prometheus.Counter
	requestPending  prometheus.Gauge
	dkgInProgress   prometheus.Gauge
	dkgTimeouts     prometheus.Counter
	rewardsAlloc    prometheus.Counter
	rewardsReceived prometheus.Counter
	withdrawn       prometheus.Counter
}

// NewCollector registers the beacon metrics on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "events_total",
			Namespace: namespaceBeacon,
			Help:      "number of events emitted, by event name",
		}, []string{LabelEvent}),
		applied: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "transactions_applied_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemLedger,
			Help:      "number of applied transactions, by kind",
		}, []string{LabelKind}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "transactions_rejected_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemLedger,
			Help:      "number of rejected transactions, by kind",
		}, []string{LabelKind}),
		applyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "apply_duration_seconds",
			Namespace: namespaceBeacon,
			Subsystem: subsystemLedger,
			Help:      "time taken to apply and persist a transaction",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		height: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "height",
			Namespace: namespaceBeacon,
			Subsystem: subsystemLedger,
			Help:      "height of the last applied transaction",
		}),
		groupsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "registered_not_terminated",
			Namespace: namespaceBeacon,
			Subsystem: subsystemGroups,
			Help:      "number of registered groups that were not terminated",
		}),
		groupsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:      "registered_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemGroups,
			Help:      "number of registered groups",
		}),
		terminated: factory.NewCounter(prometheus.CounterOpts{
			Name:      "terminated_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemGroups,
			Help:      "number of terminated groups",
		}),
		entries: factory.NewCounter(prometheus.CounterOpts{
			Name:      "entries_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemRelay,
			Help:      "number of relay entries submitted",
		}),
		timeouts: factory.NewCounter(prometheus.CounterOpts{
			Name:      "entry_timeouts_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemRelay,
			Help:      "number of relay entries reported as timed out",
		}),
		requestPending: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "request_in_progress",
			Namespace: namespaceBeacon,
			Subsystem: subsystemRelay,
			Help:      "1 while a relay request waits for its entry",
		}),
		dkgInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "in_progress",
			Namespace: namespaceBeacon,
			Subsystem: subsystemDKG,
			Help:      "1 while a group selection and key generation run",
		}),
		dkgTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name:      "timeouts_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemDKG,
			Help:      "number of key generations that timed out",
		}),
		rewardsAlloc: factory.NewCounter(prometheus.CounterOpts{
			Name:      "allocated_tokens_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemReward,
			Help:      "tokens allocated to reward intervals",
		}),
		rewardsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name:      "received_tokens_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemReward,
			Help:      "interval reward tokens paid to group members",
		}),
		withdrawn: factory.NewCounter(prometheus.CounterOpts{
			Name:      "member_withdrawn_wei_total",
			Namespace: namespaceBeacon,
			Subsystem: subsystemGroups,
			Help:      "member rewards withdrawn from expired groups",
		}),
	}
}

func (c *Collector) TransactionApplied(kind string, duration time.Duration) {
	c.applied.WithLabelValues(kind).Inc()
	c.applyDuration.Observe(duration.Seconds())
}

func (c *Collector) TransactionRejected(kind string) {
	c.rejected.WithLabelValues(kind).Inc()
}

func (c *Collector) LedgerHeight(h height.Height) {
	c.height.Set(float64(h))
}

// Handle implements events.Sink
func (c *Collector) Handle(_ height.Height, evs []events.Event) error {
	for _, ev := range evs {
		c.events.WithLabelValues(ev.Name()).Inc()

		switch e := ev.(type) {
		case events.GroupSelectionStarted:
			c.dkgInProgress.Set(1)
		case events.DkgResultSubmitted:
			c.dkgInProgress.Set(0)
		case events.DkgResultTimedOut:
			c.dkgInProgress.Set(0)
			c.dkgTimeouts.Inc()
		case events.GroupRegistered:
			c.groupsTotal.Inc()
			c.groupsActive.Inc()
		case events.GroupTerminated:
			c.terminated.Inc()
			c.groupsActive.Dec()
		case events.RelayEntryRequested:
			c.requestPending.Set(1)
		case events.RelayEntrySubmitted:
			c.entries.Inc()
			c.requestPending.Set(0)
		case events.RelayEntryTimedOut:
			c.timeouts.Inc()
			c.requestPending.Set(0)
		case events.RewardsAllocated:
			c.rewardsAlloc.Add(toFloat(e.Amount))
		case events.RewardReceived:
			c.rewardsReceived.Add(toFloat(e.Amount))
		case events.GroupMemberRewardsWithdrawn:
			c.withdrawn.Add(toFloat(e.Amount))
		}
	}
	return nil
}

func toFloat(v uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
