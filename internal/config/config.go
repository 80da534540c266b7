// Package config loads the TOML configuration for an artillery process
// and owns host-identity persistence — the one piece of state spec.md
// §1 names as an external collaborator's responsibility, not the core
// state machines'. Shape and DefaultConfig() idiom follow the teacher's
// daemon config (nested structs, one DefaultConfig constructor).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// EpidemicConfig mirrors spec.md §6 "Epidemic config" for TOML loading.
type EpidemicConfig struct {
	ClusterKey           string `toml:"cluster_key"`
	ListenAddr           string `toml:"listen_addr"`
	PingIntervalMS       int64  `toml:"ping_interval_ms"`
	PingTimeoutMS        int64  `toml:"ping_timeout_ms"`
	NetworkMTU           int    `toml:"network_mtu"`
	PingRequestHostCount int    `toml:"ping_request_host_count"`
}

// CraqConfig mirrors spec.md §6 "CRAQ config" for TOML loading.
type CraqConfig struct {
	FallbackReplicationPort int    `toml:"fallback_replication_port"`
	OperationMode           string `toml:"operation_mode"` // "cr" or "craq"
	ConnectionSleepTimeMS   int64  `toml:"connection_sleep_time_ms"`
	ConnectionPoolSize      int    `toml:"connection_pool_size"`
	ProtocolWorkerSize      int    `toml:"protocol_worker_size"`
}

// APIConfig controls the status/metrics HTTP surface.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Config is the top-level TOML document for a process running either
// (or both) layers.
type Config struct {
	DataFolder string         `toml:"data_folder"`
	API        APIConfig      `toml:"api"`
	Epidemic   EpidemicConfig `toml:"epidemic"`
	Craq       CraqConfig     `toml:"craq"`
}

// DefaultConfig returns the defaults named throughout spec.md §6.
func DefaultConfig() Config {
	return Config{
		DataFolder: ".artillery",
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7373,
		},
		Epidemic: EpidemicConfig{
			ClusterKey:           "default",
			ListenAddr:           ":0",
			PingIntervalMS:       1000,
			PingTimeoutMS:        3000,
			NetworkMTU:           65536,
			PingRequestHostCount: 3,
		},
		Craq: CraqConfig{
			FallbackReplicationPort: 22991,
			OperationMode:           "craq",
			ConnectionSleepTimeMS:   1000,
			ConnectionPoolSize:      50,
			ProtocolWorkerSize:      100,
		},
	}
}

// Load reads a TOML file at path, falling back to DefaultConfig() for
// any field the file omits (toml.Decode leaves Go zero values alone,
// so we decode onto an already-defaulted struct).
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories as
// needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// PingInterval returns the epidemic ping interval as a time.Duration.
func (c EpidemicConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMS) * time.Millisecond
}

// PingTimeout returns the epidemic ping timeout as a time.Duration.
func (c EpidemicConfig) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutMS) * time.Millisecond
}

// ConnectionSleepTime returns the CRAQ connection retry sleep as a
// time.Duration.
func (c CraqConfig) ConnectionSleepTime() time.Duration {
	return time.Duration(c.ConnectionSleepTimeMS) * time.Millisecond
}

// ReadHostKey loads the 128-bit stable process identity from
// <dataFolder>/host_key, generating and persisting a fresh one on
// first run — the Go analogue of the original crate's
// cball.rs::read_host_key example, kept in internal/config per
// spec.md §1 ("persistence of the host identity file" is an external
// collaborator's concern, not the membership layer's).
func ReadHostKey(dataFolder string) (uuid.UUID, error) {
	path := filepath.Join(dataFolder, "host_key")

	raw, err := os.ReadFile(path)
	if err == nil {
		key, parseErr := uuid.FromBytes(raw)
		if parseErr != nil {
			return uuid.UUID{}, fmt.Errorf("config: corrupt host_key at %s: %w", path, parseErr)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return uuid.UUID{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	key := uuid.New()
	if err := os.MkdirAll(dataFolder, 0o755); err != nil {
		return uuid.UUID{}, fmt.Errorf("config: mkdir %s: %w", dataFolder, err)
	}
	if err := os.WriteFile(path, key[:], 0o644); err != nil {
		return uuid.UUID{}, fmt.Errorf("config: write %s: %w", path, err)
	}
	return key, nil
}
