package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/holiman/uint256"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, BEACON_NODE_LISTEN
// for node.listen.
const EnvPrefix = "BEACON"

// Config is everything a beacon node needs to start
type Config struct {
	Params  Params  `mapstructure:"params"`
	Node    Node    `mapstructure:"node"`
	Rewards Rewards `mapstructure:"rewards"`
	Genesis Genesis `mapstructure:"genesis"`
}

// Node holds local settings that do not influence state transitions
type Node struct {
	DataDir           string        `mapstructure:"data_dir"`
	Listen            string        `mapstructure:"listen"`
	HTTP              string        `mapstructure:"http"`
	Peers             []string      `mapstructure:"peers"`
	NetworkKey        string        `mapstructure:"network_key"`
	OperatorKey       string        `mapstructure:"operator_key"`
	LogLevel          string        `mapstructure:"log_level"`
	LogType           string        `mapstructure:"log_type"`
	VerifierCacheSize int           `mapstructure:"verifier_cache_size"`
	SnapshotInterval  uint64        `mapstructure:"snapshot_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	GasPrice          uint256.Int   `mapstructure:"gas_price"`
}

// Rewards configures the interval reward allocator
type Rewards struct {
	Budget             uint256.Int   `mapstructure:"budget"`
	FirstIntervalStart time.Time     `mapstructure:"first_interval_start"`
	IntervalLength     time.Duration `mapstructure:"interval_length"`
	IntervalWeights    []uint64      `mapstructure:"interval_weights"`
	MinimumGroups      uint64        `mapstructure:"minimum_groups"`
}

// GenesisStake is a stake present from the first height
type GenesisStake struct {
	Operator        common.Address `mapstructure:"operator"`
	StakingProvider common.Address `mapstructure:"staking_provider"`
	Beneficiary     common.Address `mapstructure:"beneficiary"`
	Amount          uint256.Int    `mapstructure:"amount"`
}

// Genesis describes the initial state shared by all nodes of a chain
type Genesis struct {
	Time          time.Time      `mapstructure:"time"`
	BlockDuration time.Duration  `mapstructure:"block_duration"`
	ChainHash     string         `mapstructure:"chain_hash"`
	Owner         common.Address `mapstructure:"owner"`
	MinimumStake  uint256.Int    `mapstructure:"minimum_stake"`
	Stakes        []GenesisStake `mapstructure:"stakes"`
	DKGFeePool    uint256.Int    `mapstructure:"dkg_fee_pool"`
}

func Default() Config {
	return Config{
		Params: DefaultParams(),
		Node: Node{
			DataDir:           "beacon-data",
			Listen:            "0.0.0.0:40000",
			HTTP:              "127.0.0.1:8080",
			LogLevel:          "info",
			LogType:           "console",
			VerifierCacheSize: 128,
			SnapshotInterval:  1,
			RequestTimeout:    5 * time.Second,
			GasPrice:          *uint256.NewInt(20_000_000_000),
		},
		Rewards: Rewards{
			Budget:             *uint256.MustFromDecimal("19800000000000000000000000"),
			FirstIntervalStart: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
			IntervalLength:     30 * 24 * time.Hour,
			IntervalWeights:    []uint64{4, 8, 10, 12, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15},
			MinimumGroups:      2,
		},
		Genesis: Genesis{
			Time:          time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
			BlockDuration: 15 * time.Second,
			ChainHash:     "00000000",
			MinimumStake:  *uint256.MustFromDecimal("200000000000000000000000"),
		},
	}
}

// Validate checks the whole configuration and reports every problem at once
func (c Config) Validate() error {
	var result *multierror.Error
	if err := c.Params.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Genesis.BlockDuration <= 0 {
		result = multierror.Append(result, errors.New("genesis.block_duration must be positive"))
	}
	if c.Genesis.MinimumStake.IsZero() {
		result = multierror.Append(result, errors.New("genesis.minimum_stake must be positive"))
	}
	if c.Genesis.ChainHash == "" {
		result = multierror.Append(result, errors.New("genesis.chain_hash must be set"))
	}
	if c.Rewards.IntervalLength <= 0 {
		result = multierror.Append(result, errors.New("rewards.interval_length must be positive"))
	}
	if c.Rewards.MinimumGroups == 0 {
		result = multierror.Append(result, errors.New("rewards.minimum_groups must be positive"))
	}
	for i, w := range c.Rewards.IntervalWeights {
		if w > 100 {
			result = multierror.Append(result, fmt.Errorf("rewards.interval_weights[%d] is above 100", i))
		}
	}
	if c.Node.VerifierCacheSize <= 0 {
		result = multierror.Append(result, errors.New("node.verifier_cache_size must be positive"))
	}
	return result.ErrorOrNil()
}

// Validate checks the protocol constants for consistency
func (p Params) Validate() error {
	var result *multierror.Error
	if p.GroupSize == 0 {
		result = multierror.Append(result, errors.New("params.group_size must be positive"))
	}
	if p.SignatureThreshold == 0 || p.SignatureThreshold > p.GroupSize {
		result = multierror.Append(result, errors.New("params.signature_threshold must be in [1, group_size]"))
	}
	if p.TicketSubmissionTimeout == 0 {
		result = multierror.Append(result, errors.New("params.ticket_submission_timeout must be positive"))
	}
	if p.ResultPublicationBlockStep == 0 {
		result = multierror.Append(result, errors.New("params.result_publication_block_step must be positive"))
	}
	if p.RelayEntryTimeout == 0 {
		result = multierror.Append(result, errors.New("params.relay_entry_timeout must be positive"))
	}
	if p.GroupActiveTime == 0 {
		result = multierror.Append(result, errors.New("params.group_active_time must be positive"))
	}
	if p.GasPriceCeiling.IsZero() {
		result = multierror.Append(result, errors.New("params.gas_price_ceiling must be positive"))
	}
	if p.CallbackGasLimit == 0 || p.CallbackGasLimit >= 1_000_000 {
		result = multierror.Append(result, errors.New("params.callback_gas_limit must be in (0, 1000000)"))
	}
	if p.DKGContributionMargin > 100 {
		result = multierror.Append(result, errors.New("params.dkg_contribution_margin must be at most 100"))
	}
	return result.ErrorOrNil()
}

// NewViper returns a viper instance reading BEACON_ prefixed environment
// variables. Every key of the default configuration is registered so that
// environment overrides are visible to Unmarshal.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

var envKeys = []string{
	"node.data_dir",
	"node.listen",
	"node.http",
	"node.network_key",
	"node.operator_key",
	"node.log_level",
	"node.log_type",
	"genesis.chain_hash",
}

// Load reads the optional config file at path on top of the defaults and
// applies environment overrides and bound flags.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
		numberToUint256HookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// numberToUint256HookFunc lets small amounts be written as plain YAML numbers
func numberToUint256HookFunc() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(uint256.Int{})
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			if n < 0 {
				return nil, fmt.Errorf("negative amount %d", n)
			}
			return *uint256.NewInt(uint64(n)), nil
		case int64:
			if n < 0 {
				return nil, fmt.Errorf("negative amount %d", n)
			}
			return *uint256.NewInt(uint64(n)), nil
		case uint64:
			return *uint256.NewInt(n), nil
		case float64:
			if n < 0 || n != float64(uint64(n)) {
				return nil, fmt.Errorf("amount %v is not a whole number", n)
			}
			return *uint256.NewInt(uint64(n)), nil
		}
		return data, nil
	}
}
