package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// PeerConfig is one statically configured peer entry. A production
// deployment would discover peers dynamically (out of scope here); this
// lets the dev-mode directory in snapshot/peer be seeded from a file.
type PeerConfig struct {
	ID       string `toml:"id"`
	Endpoint string `toml:"endpoint"`
	Full     bool   `toml:"full"`
}

// Config is the node's whole operator-tunable surface, loaded from TOML.
type Config struct {
	ListenAddr string `toml:"listen_addr"`

	SubstoreCapacity                      int           `toml:"substore_capacity"`
	RecentSnapshotNumber                  int           `toml:"recent_snapshot_number"`
	SnapshotHeightRedownloadDelayInterval int64         `toml:"snapshot_height_redownload_delay_interval"`
	MaxInvalidSnapshotRate                int           `toml:"max_invalid_snapshot_rate"`
	PeerFanoutPerSecond                   float64       `toml:"peer_fanout_per_second"`
	HealthCheckInterval                   time.Duration `toml:"health_check_interval"`

	Peers []PeerConfig `toml:"peers"`
}

// DefaultConfig is the configuration used when a node is stood up without
// a config file. SubstoreCapacity matches consensus.DefaultSubstoreCapacity.
func DefaultConfig() Config {
	return Config{
		ListenAddr:                             ":7391",
		SubstoreCapacity:                       240,
		RecentSnapshotNumber:                   20,
		SnapshotHeightRedownloadDelayInterval:  240,
		MaxInvalidSnapshotRate:                 50,
		PeerFanoutPerSecond:                    20,
		HealthCheckInterval:                    30 * time.Second,
	}
}

// LoadConfig reads and decodes a TOML config file over DefaultConfig, so
// a file only needs to set the fields it wants to override.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}
