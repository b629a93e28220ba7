package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var defaultConfigPaths = []string{
	"./agent.yaml",
	"/etc/mediadash/agent.yaml",
}

type Config struct {
	BackendURL     string        `yaml:"backend_url"`
	WorkerToken    string        `yaml:"worker_token"`
	WorkerID       string        `yaml:"worker_id"`
	WorkerName     string        `yaml:"worker_name"`
	LogPath        string        `yaml:"log_path"`
	ReportInterval time.Duration `yaml:"report_interval"`
	ScanInterval   time.Duration `yaml:"scan_interval"`
	InboxDir       string        `yaml:"inbox_dir"`
	OutputDir      string        `yaml:"output_dir"`
	Extensions     []string      `yaml:"extensions"`
	// Command is run once per file. {input} and {output} are substituted.
	Command       []string `yaml:"command"`
	MaxCPUPercent float64  `yaml:"max_cpu_percent"`
}

func Load(path string) (*Config, error) {
	var configPath string

	if path != "" {
		configPath = path
	} else {
		for _, p := range defaultConfigPaths {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	if configPath == "" {
		return nil, fmt.Errorf("config file not found in default paths")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = time.Second
	}
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	if cfg.WorkerName == "" && cfg.WorkerID != "" {
		cfg.WorkerName = "Worker-" + cfg.WorkerID
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".mkv", ".mp4", ".avi", ".mov"}
	}
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"ffmpeg", "-hide_banner", "-y", "-i", "{input}", "-c:v", "libx265", "-c:a", "copy", "{output}"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if c.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if c.InboxDir == "" {
		return fmt.Errorf("inbox_dir is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}
