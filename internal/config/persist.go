package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const ConfigFileName = ".dbrestore.conf"

// LocalConfig represents a saved configuration in the current directory.
// Zero values mean "not set" and never override the environment.
type LocalConfig struct {
	// [database]
	LocalDatabaseURL string
	ProdDatabaseURL  string
	ManagedURL       string

	// [storage]
	Provider  string
	Endpoint  string
	Region    string
	LocalRoot string

	// [restore]
	BackupDir         string
	WorkDir           string
	BatchSize         int
	RPCConcurrency    int
	UploadConcurrency int
	UploadRetries     int
}

// LoadLocalConfig loads configuration from .dbrestore.conf in current directory
func LoadLocalConfig() (*LocalConfig, error) {
	return LoadLocalConfigFromPath(filepath.Join(".", ConfigFileName))
}

// LoadLocalConfigFromPath loads configuration from a specific path.
// A missing file yields (nil, nil).
func LoadLocalConfigFromPath(configPath string) (*LocalConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &LocalConfig{}
	currentSection := ""

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.Trim(line, "[]")
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch currentSection {
		case "database":
			switch key {
			case "local_url":
				cfg.LocalDatabaseURL = value
			case "prod_url":
				cfg.ProdDatabaseURL = value
			case "managed_url":
				cfg.ManagedURL = value
			}
		case "storage":
			switch key {
			case "provider":
				cfg.Provider = strings.ToLower(value)
			case "endpoint":
				cfg.Endpoint = value
			case "region":
				cfg.Region = value
			case "local_root":
				cfg.LocalRoot = value
			}
		case "restore":
			switch key {
			case "backup_dir":
				cfg.BackupDir = value
			case "work_dir":
				cfg.WorkDir = value
			case "batch_size":
				cfg.BatchSize = atoiOrZero(value)
			case "rpc_concurrency":
				cfg.RPCConcurrency = atoiOrZero(value)
			case "upload_concurrency":
				cfg.UploadConcurrency = atoiOrZero(value)
			case "upload_retries":
				cfg.UploadRetries = atoiOrZero(value)
			}
		}
	}

	return cfg, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// SaveLocalConfig writes a LocalConfig to the given path
func SaveLocalConfig(cfg *LocalConfig, configPath string) error {
	var sb strings.Builder

	sb.WriteString("# dbrestore configuration\n\n")

	sb.WriteString("[database]\n")
	writeString(&sb, "local_url", cfg.LocalDatabaseURL)
	writeString(&sb, "prod_url", cfg.ProdDatabaseURL)
	writeString(&sb, "managed_url", cfg.ManagedURL)
	sb.WriteString("\n")

	sb.WriteString("[storage]\n")
	writeString(&sb, "provider", cfg.Provider)
	writeString(&sb, "endpoint", cfg.Endpoint)
	writeString(&sb, "region", cfg.Region)
	writeString(&sb, "local_root", cfg.LocalRoot)
	sb.WriteString("\n")

	sb.WriteString("[restore]\n")
	writeString(&sb, "backup_dir", cfg.BackupDir)
	writeString(&sb, "work_dir", cfg.WorkDir)
	writeInt(&sb, "batch_size", cfg.BatchSize)
	writeInt(&sb, "rpc_concurrency", cfg.RPCConcurrency)
	writeInt(&sb, "upload_concurrency", cfg.UploadConcurrency)
	writeInt(&sb, "upload_retries", cfg.UploadRetries)

	if err := os.WriteFile(configPath, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func writeString(sb *strings.Builder, key, value string) {
	if value != "" {
		fmt.Fprintf(sb, "%s = %s\n", key, value)
	}
}

func writeInt(sb *strings.Builder, key string, value int) {
	if value != 0 {
		fmt.Fprintf(sb, "%s = %d\n", key, value)
	}
}

// ApplyLocalConfig fills values from the file that the environment left at
// their defaults. Explicit environment variables always win.
func ApplyLocalConfig(cfg *Config, local *LocalConfig) {
	if local == nil {
		return
	}

	if local.LocalDatabaseURL != "" && os.Getenv("DATABASE_URL_LOCAL") == "" {
		cfg.LocalDatabaseURL = local.LocalDatabaseURL
	}
	if local.ProdDatabaseURL != "" && os.Getenv("DATABASE_URL_PROD") == "" {
		cfg.ProdDatabaseURL = local.ProdDatabaseURL
	}
	if local.ManagedURL != "" && os.Getenv("MANAGED_URL") == "" {
		cfg.ManagedURL = local.ManagedURL
	}
	if local.Provider != "" && os.Getenv("STORAGE_PROVIDER") == "" {
		cfg.StorageProvider = local.Provider
	}
	if local.Endpoint != "" && os.Getenv("STORAGE_ENDPOINT") == "" {
		cfg.StorageEndpoint = local.Endpoint
	}
	if local.Region != "" && os.Getenv("STORAGE_REGION") == "" {
		cfg.StorageRegion = local.Region
	}
	if local.LocalRoot != "" && os.Getenv("STORAGE_LOCAL_ROOT") == "" {
		cfg.StorageLocalRoot = local.LocalRoot
	}
	if local.BackupDir != "" && os.Getenv("BACKUP_DIR") == "" {
		cfg.BackupDir = local.BackupDir
	}
	if local.WorkDir != "" && os.Getenv("WORK_DIR") == "" {
		cfg.WorkDir = local.WorkDir
	}
	if local.BatchSize > 0 && os.Getenv("BATCH_SIZE") == "" {
		cfg.BatchSize = local.BatchSize
	}
	if local.RPCConcurrency > 0 && os.Getenv("RPC_CONCURRENCY") == "" {
		cfg.RPCConcurrency = local.RPCConcurrency
	}
	if local.UploadConcurrency > 0 && os.Getenv("UPLOAD_CONCURRENCY") == "" {
		cfg.UploadConcurrency = local.UploadConcurrency
	}
	if local.UploadRetries > 0 && os.Getenv("UPLOAD_RETRIES") == "" {
		cfg.UploadRetries = local.UploadRetries
	}
}
