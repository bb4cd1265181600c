package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Configuration {
	return &Configuration{
		NodeID: 1,
		Server: ServerConfiguration{
			BindAddress:  "127.0.0.1",
			Port:         8000,
			InlineWaitMS: 1000,
			MaxBodyMB:    8,
		},
		Session: SessionConfiguration{
			IdleTimeoutSeconds:  60,
			ReapIntervalSeconds: 5,
			FinishedQueries:     16,
		},
		Engine: EngineConfiguration{
			PoolSize:      2,
			BusyTimeoutMS: 100,
		},
		Admin: AdminConfiguration{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        8001,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	if err := Validate(); err != nil {
		t.Errorf("Expected no error for valid config, got: %v", err)
	}
}

func TestValidate_DefaultConfig(t *testing.T) {
	if err := Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got: %v", err)
	}
}

func TestValidate_InvalidServerPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	for _, port := range []int{-1, 0, 70000} {
		Config = validConfig()
		Config.Server.Port = port

		if err := Validate(); err == nil {
			t.Errorf("Expected error for invalid server port %d", port)
		}
	}
}

func TestValidate_InvalidAdminPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Admin.Port = 0
	if err := Validate(); err == nil {
		t.Error("Expected error for invalid admin port")
	}

	Config.Admin.Enabled = false
	if err := Validate(); err != nil {
		t.Errorf("Disabled admin port should not be validated, got: %v", err)
	}
}

func TestValidate_AdminSharesServerListener(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Admin.Port = Config.Server.Port
	if err := Validate(); err == nil {
		t.Error("Expected error when admin and server share a listener")
	}
}

func TestValidate_Limits(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{"negative inline wait", func(c *Configuration) { c.Server.InlineWaitMS = -1 }},
		{"zero body size", func(c *Configuration) { c.Server.MaxBodyMB = 0 }},
		{"zero idle timeout", func(c *Configuration) { c.Session.IdleTimeoutSeconds = 0 }},
		{"zero reap interval", func(c *Configuration) { c.Session.ReapIntervalSeconds = 0 }},
		{"zero finished queries", func(c *Configuration) { c.Session.FinishedQueries = 0 }},
		{"zero pool size", func(c *Configuration) { c.Engine.PoolSize = 0 }},
		{"negative busy timeout", func(c *Configuration) { c.Engine.BusyTimeoutMS = -1 }},
		{"negative cache size", func(c *Configuration) { c.Pipeline.CacheSize = -1 }},
		{"negative retention", func(c *Configuration) { c.History.RetentionHours = -1 }},
		{"unknown log format", func(c *Configuration) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Config = validConfig()
			tt.mutate(Config)
			if err := Validate(); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.NodeID = 0

	// Load non-existent file should use defaults
	if err := Load("non-existent-file.toml"); err != nil {
		t.Errorf("Expected no error for non-existent file, got: %v", err)
	}

	if Config.NodeID == 0 {
		t.Error("Expected node ID to be assigned")
	}
}

func TestLoad_CreateDataDir(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tempDir := filepath.Join(t.TempDir(), "powder-data")
	Config = validConfig()
	Config.DataDir = tempDir

	if err := Load(""); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Error("Data directory was not created")
	}
}

func TestLoad_FromFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "powder.toml")
	content := `
node_id = 42

[server]
port = 9100
account = "testacct"

[session]
idle_timeout_seconds = 30

[admin]
secret = "s3cret"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	Config = validConfig()
	if err := Load(configPath); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if Config.NodeID != 42 {
		t.Errorf("NodeID = %d, want 42", Config.NodeID)
	}
	if Config.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", Config.Server.Port)
	}
	if Config.Server.Account != "testacct" {
		t.Errorf("Server.Account = %q, want testacct", Config.Server.Account)
	}
	if Config.Session.IdleTimeoutSeconds != 30 {
		t.Errorf("Session.IdleTimeoutSeconds = %d, want 30", Config.Session.IdleTimeoutSeconds)
	}
	if Config.Admin.Secret != "s3cret" {
		t.Errorf("Admin.Secret = %q, want s3cret", Config.Admin.Secret)
	}
	// Values absent from the file keep what was there before
	if Config.Engine.PoolSize != 2 {
		t.Errorf("Engine.PoolSize = %d, want 2", Config.Engine.PoolSize)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	configPath := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(configPath, []byte("[server\nport = "), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	Config = validConfig()
	if err := Load(configPath); err == nil {
		t.Error("Expected decode error for malformed config")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	origPort, origAdmin := *PortFlag, *AdminPortFlag
	defer func() {
		*PortFlag = origPort
		*AdminPortFlag = origAdmin
	}()

	Config = validConfig()
	*PortFlag = 9200
	*AdminPortFlag = 9201

	if err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if Config.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", Config.Server.Port)
	}
	if Config.Admin.Port != 9201 {
		t.Errorf("Admin.Port = %d, want 9201", Config.Admin.Port)
	}
}

func TestPaths(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	if EnginePath() != "" || HistoryPath() != "" {
		t.Error("Expected ephemeral paths without a data dir")
	}

	Config.DataDir = "/var/lib/powder"
	if got := EnginePath(); got != "/var/lib/powder/powder.db" {
		t.Errorf("EnginePath() = %q", got)
	}
	if got := HistoryPath(); got != "/var/lib/powder/history" {
		t.Errorf("HistoryPath() = %q", got)
	}

	Config.Engine.File = "/tmp/x.db"
	Config.History.Dir = "/tmp/h"
	if EnginePath() != "/tmp/x.db" || HistoryPath() != "/tmp/h" {
		t.Error("Explicit paths must win over the data dir")
	}
}

func TestGenerateNodeID(t *testing.T) {
	id1, err := generateNodeID()
	if err != nil {
		t.Skipf("Machine ID unavailable: %v", err)
	}
	id2, err := generateNodeID()
	if err != nil {
		t.Fatalf("Second call failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("Node ID not stable: %d vs %d", id1, id2)
	}
}
