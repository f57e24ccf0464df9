// Package config loads the configuration of a rolesync run: the network manifest the chains
// are dialed from and the environment settings holding keys and reconciliation tuning.
package config

import (
	"errors"
	"fmt"
	"os"

	chainsel "github.com/smartcontractkit/chain-selectors"

	config_env "github.com/smartcontractkit/access-control-sync/engine/config/env"
	config_network "github.com/smartcontractkit/access-control-sync/engine/config/network"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

// Config aggregates the network manifest and the environment settings.
type Config struct {
	// Networks holds the EVM networks of the selected network types.
	Networks *config_network.Config

	// Env holds credentials and run settings. It contains sensitive data.
	Env *config_env.Config
}

// LoadOptions selects the files a Config is loaded from.
type LoadOptions struct {
	// NetworkFiles are the YAML network manifests. Required.
	NetworkFiles []string
	// NetworkTypes keeps only networks of these types. Empty keeps every type.
	NetworkTypes []config_network.NetworkType
	// EnvFile is the optional env config file. Env vars override its values.
	EnvFile string
}

// Load loads the network manifests and the env config. RPC URLs may reference environment
// variables, which are expanded after loading.
func Load(opts LoadOptions, lggr logger.Logger) (*Config, error) {
	if len(opts.NetworkFiles) == 0 {
		return nil, errors.New("at least one network file is required")
	}

	networks, err := config_network.Load(opts.NetworkFiles, config_network.WithURLTransformer(os.ExpandEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to load networks: %w", err)
	}

	filters := []config_network.NetworkFilter{config_network.ChainFamilyFilter(chainsel.FamilyEVM)}
	if len(opts.NetworkTypes) > 0 {
		filters = append(filters, config_network.TypesFilter(opts.NetworkTypes...))
	}
	networks = networks.FilterWith(filters...)
	lggr.Infow("Loaded networks", "count", len(networks.ChainSelectors()), "types", opts.NetworkTypes)

	envCfg, err := LoadEnvConfig(opts.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	return &Config{
		Networks: networks,
		Env:      envCfg,
	}, nil
}

// LoadEnvConfig loads the env config.
//
// Loading strategy:
//   - In CI environments, or when no file is given: env vars only.
//   - Otherwise: the file if it exists, with env vars overriding its values.
func LoadEnvConfig(filePath string) (*config_env.Config, error) {
	if isCI() || filePath == "" {
		return config_env.LoadEnv()
	}

	return config_env.Load(filePath)
}

// isCI returns true if we are running in CI. This env var is set by Github Actions.
func isCI() bool {
	return os.Getenv("CI") == "true"
}
