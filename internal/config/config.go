package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Logging struct {
		Level        string `yaml:"level"`
		AuditLogPath string `yaml:"audit_log_path"`
	} `yaml:"logging"`
	Ledger struct {
		LockWaitMs           int `yaml:"lock_wait_ms"`
		LockRetries          int `yaml:"lock_retries"`
		ScheduleToleranceMin int `yaml:"schedule_tolerance_min"`
	} `yaml:"ledger"`
}

func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Ledger.LockWaitMs) * time.Millisecond
}

func (c *Config) ScheduleTolerance() time.Duration {
	return time.Duration(c.Ledger.ScheduleToleranceMin) * time.Minute
}

// Load reads the yaml config and overlays environment variables. A .env
// file next to the config is loaded first when present.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Warning: error loading .env file: %v\n", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LEDGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "ledger.db"
	}

	return &cfg, nil
}
