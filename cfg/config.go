package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// ServerConfiguration for the warehouse wire protocol listener
type ServerConfiguration struct {
	BindAddress  string `toml:"bind_address"`
	Port         int    `toml:"port"`
	Account      string `toml:"account"`
	InlineWaitMS int    `toml:"inline_wait_ms"` // How long Execute waits before answering with a result handle
	MaxBodyMB    int    `toml:"max_body_mb"`
}

// SessionConfiguration controls session lifetime
type SessionConfiguration struct {
	IdleTimeoutSeconds  int  `toml:"idle_timeout_seconds"`
	ReapIntervalSeconds int  `toml:"reap_interval_seconds"`
	AutoCreateNamespace bool `toml:"auto_create_namespace"` // Create the login database/schema when missing
	FinishedQueries     int  `toml:"finished_queries"`      // Completed results kept for polling
	ValiditySeconds     int  `toml:"validity_seconds"`      // Advertised token validity
}

// EngineConfiguration controls the embedded SQLite database
type EngineConfiguration struct {
	File               string `toml:"file"` // Defaults to <data_dir>/powder.db, or a temp file
	PoolSize           int    `toml:"pool_size"`
	BusyTimeoutMS      int    `toml:"busy_timeout_ms"`
	MaxIdleTimeSeconds int    `toml:"max_idle_time_seconds"`
	MaxLifetimeSeconds int    `toml:"max_lifetime_seconds"`
}

// PipelineConfiguration controls statement rewriting
type PipelineConfiguration struct {
	CacheSize int `toml:"cache_size"` // Transpiled plans kept, 0 disables the cache
}

// HistoryConfiguration controls the query history store
type HistoryConfiguration struct {
	Enabled        bool   `toml:"enabled"`
	Dir            string `toml:"dir"` // Defaults to <data_dir>/history, in memory without a data dir
	RetentionHours int    `toml:"retention_hours"`
}

// AdminConfiguration for the admin HTTP listener
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // Empty disables authentication
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"` // Empty keeps everything ephemeral

	Server     ServerConfiguration     `toml:"server"`
	Session    SessionConfiguration    `toml:"session"`
	Engine     EngineConfiguration     `toml:"engine"`
	Pipeline   PipelineConfiguration   `toml:"pipeline"`
	History    HistoryConfiguration    `toml:"history"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	PortFlag       = flag.Int("port", 0, "Wire protocol port (overrides config)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID:  0, // Auto-generate
	DataDir: "",

	Server: ServerConfiguration{
		BindAddress:  "0.0.0.0",
		Port:         8000,
		Account:      "powder",
		InlineWaitMS: 45000,
		MaxBodyMB:    64,
	},

	Session: SessionConfiguration{
		IdleTimeoutSeconds:  4 * 3600,
		ReapIntervalSeconds: 60,
		AutoCreateNamespace: true,
		FinishedQueries:     1024,
		ValiditySeconds:     3600,
	},

	Engine: EngineConfiguration{
		PoolSize:           8,
		BusyTimeoutMS:      5000,
		MaxIdleTimeSeconds: 60,
		MaxLifetimeSeconds: 0,
	},

	Pipeline: PipelineConfiguration{
		CacheSize: 4096,
	},

	History: HistoryConfiguration{
		Enabled:        true,
		RetentionHours: 24,
	},

	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "127.0.0.1",
		Port:        8001,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *PortFlag != 0 {
		Config.Server.Port = *PortFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	// Auto-generate node ID if not set
	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			log.Warn().Err(err).Msg("Machine ID unavailable, using node ID 1")
			Config.NodeID = 1
		} else {
			log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
		}
	}

	// Ensure data directory exists
	if Config.DataDir != "" {
		if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("powder")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Server.Port < 1 || Config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", Config.Server.Port)
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Admin.Enabled && Config.Admin.Port == Config.Server.Port && Config.Admin.BindAddress == Config.Server.BindAddress {
		return fmt.Errorf("admin and server listeners share %s:%d", Config.Server.BindAddress, Config.Server.Port)
	}

	if Config.Server.InlineWaitMS < 0 {
		return fmt.Errorf("inline wait must be >= 0")
	}

	if Config.Server.MaxBodyMB < 1 {
		return fmt.Errorf("max body size must be >= 1 MB")
	}

	if Config.Session.IdleTimeoutSeconds < 1 {
		return fmt.Errorf("session idle timeout must be >= 1 second")
	}

	if Config.Session.ReapIntervalSeconds < 1 {
		return fmt.Errorf("session reap interval must be >= 1 second")
	}

	if Config.Session.FinishedQueries < 1 {
		return fmt.Errorf("finished query cache must hold >= 1 entry")
	}

	if Config.Engine.PoolSize < 1 {
		return fmt.Errorf("engine pool size must be >= 1")
	}

	if Config.Engine.BusyTimeoutMS < 0 {
		return fmt.Errorf("engine busy timeout must be >= 0")
	}

	if Config.Engine.MaxIdleTimeSeconds < 0 || Config.Engine.MaxLifetimeSeconds < 0 {
		return fmt.Errorf("engine connection lifetimes must be >= 0")
	}

	if Config.Pipeline.CacheSize < 0 {
		return fmt.Errorf("pipeline cache size must be >= 0")
	}

	if Config.History.RetentionHours < 0 {
		return fmt.Errorf("history retention hours must be >= 0")
	}

	switch Config.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	return nil
}

// EnginePath returns the SQLite file, empty when the caller should pick a
// temporary location.
func EnginePath() string {
	if Config.Engine.File != "" {
		return Config.Engine.File
	}
	if Config.DataDir == "" {
		return ""
	}
	return path.Join(Config.DataDir, "powder.db")
}

// HistoryPath returns the history store directory, empty for in-memory.
func HistoryPath() string {
	if Config.History.Dir != "" {
		return Config.History.Dir
	}
	if Config.DataDir == "" {
		return ""
	}
	return path.Join(Config.DataDir, "history")
}
