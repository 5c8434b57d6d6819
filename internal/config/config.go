// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Submission methods accepted by archive.method.
const (
	MethodSimple = "simple"
	MethodAPI    = "api"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Submit    SubmitConfig    `mapstructure:"submit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory submission store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ArchiveConfig governs the remote archive client: endpoints, credentials
// and per-call timeouts.
type ArchiveConfig struct {
	SaveEndpoint         string `mapstructure:"save_endpoint"`
	ProbeEndpoint        string `mapstructure:"probe_endpoint"`
	AvailabilityEndpoint string `mapstructure:"availability_endpoint"`
	UserAgent            string `mapstructure:"user_agent"`
	Method               string `mapstructure:"method"`
	AccessKey            string `mapstructure:"access_key"`
	SecretKey            string `mapstructure:"secret_key"`
	SubmitTimeoutSec     int    `mapstructure:"submit_timeout_seconds"`
	TestTimeoutSec       int    `mapstructure:"test_timeout_seconds"`
	AvailTimeoutSec      int    `mapstructure:"availability_timeout_seconds"`
}

// SubmitConfig governs eligibility and orchestration policy.
type SubmitConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	ContentTypes    []string `mapstructure:"content_types"`
	OnUpdate        bool     `mapstructure:"on_update"`
	DelaySeconds    int      `mapstructure:"delay_seconds"`
	DedupWindowMin  int      `mapstructure:"dedup_window_minutes"`
	RetryWindowHrs  int      `mapstructure:"retry_window_hours"`
	RetryLimit      int      `mapstructure:"retry_limit"`
	RetryDelaySec   int      `mapstructure:"retry_delay_seconds"`
	BatchDelaySec   int      `mapstructure:"batch_delay_seconds"`
	QueueSweepLimit int      `mapstructure:"queue_sweep_limit"`
}

// SchedulerConfig sets the periodic sweep cadence.
type SchedulerConfig struct {
	QueueSweepMinutes int `mapstructure:"queue_sweep_minutes"`
	RetrySweepHours   int `mapstructure:"retry_sweep_hours"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAYBACKSUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.table", "submissions")
	v.SetDefault("archive.save_endpoint", "https://web.archive.org/save/")
	v.SetDefault("archive.probe_endpoint", "https://s3.us.archive.org/")
	v.SetDefault("archive.availability_endpoint", "https://archive.org/wayback/available")
	v.SetDefault("archive.user_agent", "wayback-submitter/0.1")
	v.SetDefault("archive.method", MethodSimple)
	v.SetDefault("archive.submit_timeout_seconds", 60)
	v.SetDefault("archive.test_timeout_seconds", 15)
	v.SetDefault("archive.availability_timeout_seconds", 30)
	v.SetDefault("submit.enabled", true)
	v.SetDefault("submit.content_types", []string{"post", "page"})
	v.SetDefault("submit.on_update", false)
	v.SetDefault("submit.delay_seconds", 0)
	v.SetDefault("submit.dedup_window_minutes", 60)
	v.SetDefault("submit.retry_window_hours", 24)
	v.SetDefault("submit.retry_limit", 10)
	v.SetDefault("submit.retry_delay_seconds", 2)
	v.SetDefault("submit.batch_delay_seconds", 2)
	v.SetDefault("submit.queue_sweep_limit", 50)
	v.SetDefault("scheduler.queue_sweep_minutes", 60)
	v.SetDefault("scheduler.retry_sweep_hours", 24)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Archive.Method != MethodSimple && c.Archive.Method != MethodAPI {
		return fmt.Errorf("archive.method must be %q or %q", MethodSimple, MethodAPI)
	}
	if c.Archive.Method == MethodAPI && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("archive.access_key and archive.secret_key must be set when archive.method is %q", MethodAPI)
	}
	if c.Archive.SubmitTimeoutSec <= 0 {
		return fmt.Errorf("archive.submit_timeout_seconds must be > 0")
	}
	if c.Submit.DelaySeconds < 0 {
		return fmt.Errorf("submit.delay_seconds must be >= 0")
	}
	if c.Submit.RetryLimit <= 0 {
		return fmt.Errorf("submit.retry_limit must be > 0")
	}
	if c.Scheduler.QueueSweepMinutes <= 0 || c.Scheduler.RetrySweepHours <= 0 {
		return fmt.Errorf("scheduler sweep intervals must be > 0")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// SubmitDelay returns the configured publish delay as a duration.
func (c Config) SubmitDelay() time.Duration {
	return time.Duration(c.Submit.DelaySeconds) * time.Second
}

// DedupWindow returns the idempotency window for repeat submissions.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.Submit.DedupWindowMin) * time.Minute
}

// RetryWindow returns how far back the retry sweep looks for failures.
func (c Config) RetryWindow() time.Duration {
	return time.Duration(c.Submit.RetryWindowHrs) * time.Hour
}

// RetryDelay returns the fixed pause between retry attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Submit.RetryDelaySec) * time.Second
}

// BatchDelay returns the default pause between batch submissions.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.Submit.BatchDelaySec) * time.Second
}
