package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/chain/evm"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

const (
	defaultDialAttempts = 3
	defaultDialDelay    = 2 * time.Second
)

// RPCChainLoaderConfig holds the configuration to initialize the RPCChainLoader.
type RPCChainLoaderConfig struct {
	// Required: RPC URLs per chain selector. URLs are tried in order until one answers.
	RPCs map[uint64][]string
	// Required: ConfirmFunctor generates the confirmation function for sent transactions.
	ConfirmFunctor ConfirmFunctor
	// Optional: Hex encoded private key of the account that signs role transactions. Leave empty
	// for read only runs or when changes are proposed through a timelock.
	DeployerKey string
	// Optional: number of dial rounds over the RPC list. Defaults to 3.
	DialAttempts uint
	// Optional: delay between dial rounds. Defaults to 2s.
	DialDelay time.Duration
	// Optional: Logger is the logger to use. If not provided, a default logger is used.
	Logger logger.Logger
}

// validate checks if the RPCChainLoaderConfig is valid.
func (c RPCChainLoaderConfig) validate() error {
	if c.ConfirmFunctor == nil {
		return errors.New("confirm functor is required")
	}
	if len(c.RPCs) == 0 {
		return errors.New("at least one RPC is required")
	}

	return nil
}

// RPCChainLoader connects to EVM nodes over JSON-RPC. It implements chain.ChainLoader.
type RPCChainLoader struct {
	config RPCChainLoaderConfig
}

var _ chain.ChainLoader = (*RPCChainLoader)(nil)

// NewRPCChainLoader validates config and returns a loader.
func NewRPCChainLoader(config RPCChainLoaderConfig) (*RPCChainLoader, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("failed to validate loader config: %w", err)
	}
	if config.Logger == nil {
		lggr, err := logger.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		config.Logger = lggr
	}
	if config.DialAttempts == 0 {
		config.DialAttempts = defaultDialAttempts
	}
	if config.DialDelay == 0 {
		config.DialDelay = defaultDialDelay
	}

	return &RPCChainLoader{config: config}, nil
}

// Selectors returns the chain selectors the loader has RPCs for.
func (l *RPCChainLoader) Selectors() []uint64 {
	selectors := make([]uint64, 0, len(l.config.RPCs))
	for s := range l.config.RPCs {
		selectors = append(selectors, s)
	}

	return selectors
}

// Load dials the chain identified by selector and checks that the node serves the expected chain
// id.
func (l *RPCChainLoader) Load(ctx context.Context, selector uint64) (evm.Chain, error) {
	urls := l.config.RPCs[selector]
	if len(urls) == 0 {
		return evm.Chain{}, fmt.Errorf("no RPCs configured for selector %d", selector)
	}

	chainIDStr, err := chainsel.GetChainIDFromSelector(selector)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to get chain ID from selector %d: %w", selector, err)
	}
	chainID, ok := new(big.Int).SetString(chainIDStr, 10)
	if !ok {
		return evm.Chain{}, fmt.Errorf("failed to convert chain ID %s to big.Int", chainIDStr)
	}

	var deployerKey *bind.TransactOpts
	if l.config.DeployerKey != "" {
		deployerKey, err = transactorFromRaw(l.config.DeployerKey, chainID)
		if err != nil {
			return evm.Chain{}, fmt.Errorf("failed to generate deployer key: %w", err)
		}
	}

	client, err := retry.DoWithData(func() (*ethclient.Client, error) {
		var errs error
		for _, url := range urls {
			c, derr := dial(ctx, url, chainID)
			if derr == nil {
				return c, nil
			}
			if errors.Is(derr, errChainIDMismatch) {
				return nil, retry.Unrecoverable(derr)
			}
			errs = errors.Join(errs, derr)
		}

		return nil, errs
	},
		retry.Context(ctx),
		retry.Attempts(l.config.DialAttempts),
		retry.Delay(l.config.DialDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			l.config.Logger.Warnw("Dialing chain failed, retrying",
				"selector", selector, "attempt", attempt+1, "error", err,
			)
		}),
	)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to connect to selector %d: %w", selector, err)
	}

	var from common.Address
	if deployerKey != nil {
		from = deployerKey.From
	}

	confirmFunc, err := l.config.ConfirmFunctor.Generate(ctx, selector, client, from)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to generate confirm function: %w", err)
	}

	l.config.Logger.Debugw("Connected to chain", "selector", selector, "chainID", chainIDStr)

	return evm.Chain{
		Selector:    selector,
		Client:      client,
		DeployerKey: deployerKey,
		Confirm:     confirmFunc,
	}, nil
}

var errChainIDMismatch = errors.New("chain id mismatch")

func dial(ctx context.Context, url string, want *big.Int) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id from %s: %w", url, err)
	}
	if got.Cmp(want) != 0 {
		client.Close()
		return nil, fmt.Errorf("%w: %s serves %s, expected %s", errChainIDMismatch, url, got, want)
	}

	return client, nil
}

// transactorFromRaw parses the hex encoded private key and returns the bind transactor options.
func transactorFromRaw(privKey string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key to ECDSA: %w", err)
	}

	return bind.NewKeyedTransactorWithChainID(key, chainID)
}
