package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/spf13/viper"
)

// EVMConfig is the configuration for the EVM Chains.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type EVMConfig struct {
	DeployerKey string `mapstructure:"deployer_key" yaml:"deployer_key"` // Secret: The private key of the account sending role transactions.
}

// OnchainConfig wraps the configuration for the onchain components.
type OnchainConfig struct {
	EVM EVMConfig `mapstructure:"evm" yaml:"evm"`
}

// ReconcileConfig tunes how a reconciliation run talks to the chains.
type ReconcileConfig struct {
	MaxConcurrentReads int           `mapstructure:"max_concurrent_reads" yaml:"max_concurrent_reads"` // Bound on concurrent role reads per chain. 0 is unbounded.
	ConfirmTimeout     time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`           // How long to wait for a transaction to be mined.
	DialAttempts       uint          `mapstructure:"dial_attempts" yaml:"dial_attempts"`               // Rounds over the RPC list before a chain is marked failed.
}

// ChainAddress is a contract address on one chain.
type ChainAddress struct {
	ChainSelector uint64 `mapstructure:"chain_selector" yaml:"chain_selector"`
	Address       string `mapstructure:"address" yaml:"address"`
}

// MCMSConfig is the configuration of timelock proposals. When Timelocks is set the role calls
// are proposed instead of sent with the deployer key.
type MCMSConfig struct {
	Timelocks   []ChainAddress `mapstructure:"timelocks" yaml:"timelocks"`
	MCMs        []ChainAddress `mapstructure:"mcms" yaml:"mcms"`
	Delay       time.Duration  `mapstructure:"delay" yaml:"delay"`             // Timelock delay of the proposal.
	ValidFor    time.Duration  `mapstructure:"valid_for" yaml:"valid_for"`     // How long the signed proposal stays valid.
	Description string         `mapstructure:"description" yaml:"description"` // Proposal description.
}

// Enabled reports whether role calls should be proposed through a timelock.
func (c MCMSConfig) Enabled() bool {
	return len(c.Timelocks) > 0
}

// Config wraps the entire configuration of the rolesync tool.
type Config struct {
	Onchain   OnchainConfig   `mapstructure:"onchain" yaml:"onchain"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" yaml:"reconcile"`
	MCMS      MCMSConfig      `mapstructure:"mcms" yaml:"mcms"`
}

// Load loads the config from the file path, falling back to env vars if the file does not exist.
// If the file exists, any env vars that are set will override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	// a missing file is not an error, the env vars are used alone
	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	v := viper.New()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// LoadFile loads the config from a file.
func LoadFile(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// envBindings maps config keys to the environment variables that can provide them. The first
// name is preferred; later names are legacy aliases. Viper uses the first one that is set.
var envBindings = map[string][]string{
	"onchain.evm.deployer_key":       {"ONCHAIN_EVM_DEPLOYER_KEY", "DEPLOYER_KEY"},
	"reconcile.max_concurrent_reads": {"RECONCILE_MAX_CONCURRENT_READS"},
	"reconcile.confirm_timeout":      {"RECONCILE_CONFIRM_TIMEOUT"},
	"reconcile.dial_attempts":        {"RECONCILE_DIAL_ATTEMPTS"},
	"mcms.delay":                     {"MCMS_DELAY"},
	"mcms.valid_for":                 {"MCMS_VALID_FOR"},
	"mcms.description":               {"MCMS_DESCRIPTION"},
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
