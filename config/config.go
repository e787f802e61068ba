package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

type Config struct {
	ListenAddress      string    `toml:"ListenAddress"`
	DataDir            string    `toml:"DataDir"`
	Backend            string    `toml:"Backend"`
	ChainID            string    `toml:"ChainID"`
	Env                string    `toml:"Env"`
	LogFile            string    `toml:"LogFile"`
	IndexerDSN         string    `toml:"IndexerDSN"`
	GenesisFile        string    `toml:"GenesisFile"`
	RateLimitPerMinute int       `toml:"RateLimitPerMinute"`
	EnableEventStream  bool      `toml:"EnableEventStream"`
	EventStreamOrigins []string  `toml:"EventStreamOrigins"`
	Protocol           Protocol  `toml:"Protocol"`
	Auth               Auth      `toml:"Auth"`
	Telemetry          Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	cfg.normalise()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		ListenAddress:      "127.0.0.1:8645",
		DataDir:            "./lockbox-data",
		Backend:            BackendLevelDB,
		ChainID:            "lockbox-local",
		RateLimitPerMinute: 120,
		Protocol: Protocol{
			SharingFeeBps:     2500,
			DepositMultiplier: 3,
			MinimumStake:      "1000",
			PostResultWindow:  time.Hour,
			ChallengeWindow:   168 * time.Hour,
			LeaveWindow:       168 * time.Hour,
			PendingVersionTTL: 24 * time.Hour,
		},
		Auth: Auth{
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
		},
		Telemetry: Telemetry{
			ServiceName: "lockboxd",
			Endpoint:    "localhost:4318",
			SampleRatio: 1,
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.ChainID = strings.TrimSpace(c.ChainID)
	c.Protocol.MinimumStake = strings.TrimSpace(c.Protocol.MinimumStake)
	c.Auth.HMACSecret = strings.TrimSpace(c.Auth.HMACSecret)
	if c.Auth.ScopeClaim == "" {
		c.Auth.ScopeClaim = "scope"
	}
	if c.Auth.ClockSkew <= 0 {
		c.Auth.ClockSkew = 2 * time.Minute
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "lockboxd"
	}
}

// ResolvePath anchors a relative path from the config file at the data
// directory. Absolute and empty paths are returned unchanged.
func (c *Config) ResolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
