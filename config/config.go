// Package config loads the YAML chain-endpoint table and operational
// tunables the firewall service needs at startup, with environment variable
// overrides for anything that shouldn't live in a checked-in file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/evmsentinel/txfirewall/common"
)

type Config struct {
	Chains     map[common.ChainID]ChainConfig `yaml:"chains"`
	Classifier ClassifierConfig               `yaml:"classifier"`
	Redis      RedisConfig                    `yaml:"redis"`
	Server     ServerConfig                   `yaml:"server"`
}

type ChainConfig struct {
	Endpoints []string `yaml:"endpoints"`
}

type ClassifierConfig struct {
	Endpoint string `yaml:"endpoint"`
	Enabled  bool   `yaml:"enabled"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads path, applies environment overrides, fills in defaults, and
// validates the result. A missing file is not fatal -- Load falls back to an
// empty Config and lets defaults and env vars carry it, matching the
// "config file optional, env vars win" posture the rest of the pack uses.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLASSIFIER_ENDPOINT"); v != "" {
		c.Classifier.Endpoint = v
	}
	if v := os.Getenv("CLASSIFIER_ENABLED"); v != "" {
		c.Classifier.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Chains == nil {
		c.Chains = make(map[common.ChainID]ChainConfig)
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
}

// Validate enforces that every configured chain is one spec.md's table
// recognizes and carries at least one endpoint; an unrecognized chain or an
// empty endpoint list is a startup-time configuration error, not something
// to discover mid-scan.
func (c *Config) Validate() error {
	for id, chainCfg := range c.Chains {
		if !common.RecognizedChains[id] {
			return fmt.Errorf("config: chain %d is not in the recognized chain table", id)
		}
		if len(chainCfg.Endpoints) == 0 {
			return fmt.Errorf("config: chain %d has no configured endpoints", id)
		}
	}
	if c.Classifier.Enabled && c.Classifier.Endpoint == "" {
		return fmt.Errorf("config: classifier.enabled is true but classifier.endpoint is empty")
	}
	return nil
}

// ChainByID looks up the endpoint list for a recognized chain, returning
// common.Chain{} ready to hand to the Chain Oracle Client.
func (c *Config) ChainByID(id common.ChainID) (common.Chain, bool) {
	cc, ok := c.Chains[id]
	if !ok {
		return common.Chain{}, false
	}
	return common.Chain{ID: id, Endpoints: cc.Endpoints}, true
}
