package commands

import (
	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/internal/config"
	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/metastore"
	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/stack"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

// loadConfig loads the configuration and initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// header describes the configured stack as it is recorded in the metastore.
func header(cfg *config.Config) (metastore.Header, error) {
	d, err := stack.Describe(stack.DefaultRegistry(), cfg.Policy.Stack)
	if err != nil {
		return metastore.Header{}, err
	}
	return metastore.Header{
		Name:        d.Name,
		Version:     d.Version,
		HintSize:    d.HintSize,
		CacheBlocks: policy.CBlock(cfg.Policy.CacheBlocks),
	}, nil
}
