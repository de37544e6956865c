package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigSaveLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)

	original := &LocalConfig{
		LocalDatabaseURL:  "postgres://localhost/app",
		ManagedURL:        "https://project.example.co",
		Provider:          "gcs",
		Region:            "europe-west1",
		BackupDir:         "/var/backups/app",
		WorkDir:           "/var/tmp",
		BatchSize:         200,
		RPCConcurrency:    4,
		UploadConcurrency: 16,
		UploadRetries:     5,
	}

	if err := SaveLocalConfig(original, configPath); err != nil {
		t.Fatalf("SaveLocalConfig: %v", err)
	}

	loaded, err := LoadLocalConfigFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadLocalConfigFromPath: %v", err)
	}
	if *loaded != *original {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *loaded, *original)
	}
}

func TestLoadMissingConfig(t *testing.T) {
	cfg, err := LoadLocalConfigFromPath(filepath.Join(t.TempDir(), "missing.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != nil {
		t.Error("missing file should return nil config")
	}
}

func TestLoadIgnoresCommentsAndUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	content := `# comment
[restore]
batch_size = 100
unknown = value
not a pair

[storage]
provider = AZURE
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadLocalConfigFromPath(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.Provider != "azure" {
		t.Errorf("Provider = %q, want azure", cfg.Provider)
	}
}

func TestApplyLocalConfigRespectsEnvironment(t *testing.T) {
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("RPC_CONCURRENCY", "7")

	cfg := New()
	ApplyLocalConfig(cfg, &LocalConfig{BatchSize: 50, RPCConcurrency: 3})

	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want file value 50", cfg.BatchSize)
	}
	if cfg.RPCConcurrency != 7 {
		t.Errorf("RPCConcurrency = %d, env value 7 should win", cfg.RPCConcurrency)
	}

	ApplyLocalConfig(cfg, nil)
}
