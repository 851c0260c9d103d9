package governance

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/events"
)

const (
	StandardDelay = 24 * time.Hour
	ExtendedDelay = 14 * 24 * time.Hour
)

// parameters that change group creation or group lifetime wait longer
var extended = map[string]bool{
	"groupActiveTime":          true,
	"relayEntryTimeout":        true,
	"groupSize":                true,
	"signatureThreshold":       true,
	"groupCreationGasEstimate": true,
	"dkgContributionMargin":    true,
	"callbackGasLimit":         true,
}

type validator func(v uint256.Int, p config.Params) error

func positive(err error) validator {
	return func(v uint256.Int, _ config.Params) error {
		if v.IsZero() {
			return err
		}
		return nil
	}
}

var validators = map[string]validator{
	"groupSize":                  positive(ErrInvalidGroupSize),
	"ticketSubmissionTimeout":    positive(ErrInvalidWindow),
	"timeDKG":                    positive(ErrInvalidWindow),
	"resultPublicationBlockStep": positive(ErrInvalidWindow),
	"relayEntryTimeout":          positive(ErrInvalidRelayEntryTimeout),
	"groupActiveTime":            positive(ErrInvalidGroupActiveTime),
	"gasPriceCeiling":            positive(ErrInvalidGasPriceCeiling),
	"signatureThreshold": func(v uint256.Int, p config.Params) error {
		if v.IsZero() || !v.IsUint64() || v.Uint64() > p.GroupSize {
			return ErrInvalidThreshold
		}
		return nil
	},
	"callbackGasLimit": func(v uint256.Int, _ config.Params) error {
		if v.IsZero() || v.CmpUint64(1_000_000) >= 0 {
			return ErrInvalidCallbackGasLimit
		}
		return nil
	},
	"dkgContributionMargin": func(v uint256.Int, _ config.Params) error {
		if v.CmpUint64(100) > 0 {
			return ErrInvalidContributionMargin
		}
		return nil
	},
}

// Delay returns how long an update of name waits before it can be
// finalized
func Delay(name string) time.Duration {
	if extended[name] {
		return ExtendedDelay
	}
	return StandardDelay
}

// Update is a parameter change waiting for its delay to pass
type Update struct {
	Value       uint256.Int
	RequestedAt int64
}

// Governance is a two-phase timelock over the named protocol parameters.
// Only the owner may begin or finalize an update.
type Governance struct {
	Owner   common.Address
	Pending map[string]Update
}

func New(owner common.Address) Governance {
	return Governance{Owner: owner, Pending: make(map[string]Update)}
}

func (g *Governance) Clone() Governance {
	return Governance{Owner: g.Owner, Pending: maps.Clone(g.Pending)}
}

func validate(params config.Params, name string, value uint256.Int) error {
	if v, ok := validators[name]; ok {
		if err := v(value, params); err != nil {
			return err
		}
	}
	if err := params.Set(name, value); err != nil {
		return err
	}
	return params.Validate()
}

// BeginUpdate records value as pending for name. Beginning again replaces
// the pending value and restarts the delay.
func (g *Governance) BeginUpdate(params config.Params, caller common.Address, name string, value uint256.Int, now int64) (events.ParameterUpdateStarted, error) {
	if caller != g.Owner {
		return events.ParameterUpdateStarted{}, ErrNotOwner
	}
	if err := validate(params, name, value); err != nil {
		return events.ParameterUpdateStarted{}, err
	}
	if g.Pending == nil {
		g.Pending = make(map[string]Update)
	}
	g.Pending[name] = Update{Value: value, RequestedAt: now}
	return events.ParameterUpdateStarted{Parameter: name, Value: value, Timestamp: now}, nil
}

// FinalizeUpdate applies the pending value of name to params once the
// delay has passed and clears it
func (g *Governance) FinalizeUpdate(params *config.Params, caller common.Address, name string, now int64) (events.ParameterUpdated, error) {
	if caller != g.Owner {
		return events.ParameterUpdated{}, ErrNotOwner
	}
	remaining, err := g.RemainingUpdateTime(name, now)
	if err != nil {
		return events.ParameterUpdated{}, err
	}
	if remaining > 0 {
		return events.ParameterUpdated{}, ErrDelayNotElapsed
	}

	u := g.Pending[name]
	if err := validate(*params, name, u.Value); err != nil {
		return events.ParameterUpdated{}, fmt.Errorf("finalize %s: %w", name, err)
	}
	if err := params.Set(name, u.Value); err != nil {
		return events.ParameterUpdated{}, err
	}
	delete(g.Pending, name)
	return events.ParameterUpdated{Parameter: name, Value: u.Value}, nil
}

// RemainingUpdateTime returns how long until the pending update of name
// can be finalized
func (g *Governance) RemainingUpdateTime(name string, now int64) (time.Duration, error) {
	if _, err := new(config.Params).Get(name); errors.Is(err, config.ErrUnknownParameter) {
		return 0, err
	}
	u, ok := g.Pending[name]
	if !ok {
		return 0, ErrChangeNotInitiated
	}
	ready := u.RequestedAt + int64(Delay(name)/time.Second)
	if now >= ready {
		return 0, nil
	}
	return time.Duration(ready-now) * time.Second, nil
}
