// Package config loads the Kestrel configuration by layering, in order of
// increasing precedence: tier defaults, an optional YAML file, and
// KESTREL_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// envPrefix namespaces the environment overrides, e.g.
// KESTREL_SERVER_PORT=9090 sets server.port.
const envPrefix = "KESTREL_"

// Load builds the configuration. path may be empty or point to a YAML
// file; a missing file at an explicitly given path is an error, while the
// default path is optional.
func Load(path string) (*domain.Config, error) {
	k := koanf.New(".")

	defaults := domain.DefaultConfig()
	if tierFromEnv() == domain.TierPro {
		defaults = domain.ProConfig()
	}
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = "kestrel.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg domain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// tierFromEnv peeks at the tier override so the right preset seeds the
// defaults before the env layer applies.
func tierFromEnv() domain.Tier {
	switch strings.ToLower(os.Getenv(envPrefix + "TIER")) {
	case string(domain.TierPro):
		return domain.TierPro
	default:
		return domain.TierCommunity
	}
}

func validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", domain.ErrInvalidInput, cfg.Server.Port)
	}
	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		return fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidInput, cfg.Tier)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown repository driver %q", domain.ErrInvalidInput, cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown cache type %q", domain.ErrInvalidInput, cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("%w: unknown event bus type %q", domain.ErrInvalidInput, cfg.EventBus.Type)
	}
	return nil
}
