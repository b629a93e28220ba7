package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Features FeaturesConfig `mapstructure:"features"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Client   ClientConfig   `mapstructure:"client"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	WorkerToken    string   `mapstructure:"worker_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// FeedConfig controls the /dashws push cadence and the worker registry.
type FeedConfig struct {
	WorkersInterval        time.Duration `mapstructure:"workers_interval"`
	CompletedTasksInterval time.Duration `mapstructure:"completed_tasks_interval"`
	CompletedTasksLimit    int           `mapstructure:"completed_tasks_limit"`
	PendingTasksInterval   time.Duration `mapstructure:"pending_tasks_interval"`
	PendingTasksLimit      int           `mapstructure:"pending_tasks_limit"`
	LogTailLines           int           `mapstructure:"log_tail_lines"`
	WorkerStaleAfter       time.Duration `mapstructure:"worker_stale_after"`
}

// ClientConfig is read by the dashwatch terminal dashboard.
type ClientConfig struct {
	Origin          string        `mapstructure:"origin"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8888)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stderr"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})

	v.SetDefault("features.request_id_header", "X-Request-ID")

	v.SetDefault("feed.workers_interval", 200*time.Millisecond)
	v.SetDefault("feed.completed_tasks_interval", 3*time.Second)
	v.SetDefault("feed.completed_tasks_limit", 10)
	v.SetDefault("feed.pending_tasks_interval", 3*time.Second)
	v.SetDefault("feed.pending_tasks_limit", 10)
	v.SetDefault("feed.log_tail_lines", 35)
	v.SetDefault("feed.worker_stale_after", 2*time.Minute)

	v.SetDefault("client.origin", "http://localhost:8888")
	v.SetDefault("client.reconnect_delay", 5*time.Second)
	v.SetDefault("client.refresh_interval", 500*time.Millisecond)
}

// Load reads the YAML file at path (optional when empty) and overlays
// MEDIADASH_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MEDIADASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
