package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the extractor reads from the environment.
type Config struct {
	Ntopng  NtopngConfig
	Remote  RemoteConfig
	DB      DBConfig
	Poll    PollConfig
	Metrics MetricsConfig
}

type NtopngConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

func (n NtopngConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", n.Host, n.Port)
}

type RemoteConfig struct {
	Endpoint string
	APIKey   string
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DSN renders a lib/pq connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		d.Host, d.Port, d.Name, d.User, d.Password)
}

type PollConfig struct {
	Interval time.Duration
	// ReconcileInterval enables the periodic resend of undelivered rows
	// when > 0. Zero keeps forwarding best-effort per cycle.
	ReconcileInterval time.Duration
	ReconcileLimit    int
}

type MetricsConfig struct {
	Addr string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("NTOPNG_HOST", "localhost")
	v.SetDefault("NTOPNG_PORT", 3000)
	v.SetDefault("NTOPNG_USER", "admin")
	v.SetDefault("NTOPNG_PASSWORD", "admin123")
	v.SetDefault("POLL_INTERVAL", 10)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_NAME", "audience_metrics")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres123")
	v.SetDefault("METRICS_ADDR", ":9091")
	v.SetDefault("RECONCILE_INTERVAL", 0)
	v.SetDefault("RECONCILE_LIMIT", 500)

	cfg := &Config{
		Ntopng: NtopngConfig{
			Host:     v.GetString("NTOPNG_HOST"),
			Port:     v.GetInt("NTOPNG_PORT"),
			User:     v.GetString("NTOPNG_USER"),
			Password: v.GetString("NTOPNG_PASSWORD"),
		},
		Remote: RemoteConfig{
			Endpoint: v.GetString("REMOTE_ENDPOINT"),
			APIKey:   v.GetString("REMOTE_API_KEY"),
		},
		DB: DBConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
		},
		Poll: PollConfig{
			Interval:          time.Duration(v.GetInt("POLL_INTERVAL")) * time.Second,
			ReconcileInterval: time.Duration(v.GetInt("RECONCILE_INTERVAL")) * time.Second,
			ReconcileLimit:    v.GetInt("RECONCILE_LIMIT"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("METRICS_ADDR"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Ntopng.Host == "" {
		return fmt.Errorf("config: NTOPNG_HOST must not be empty")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.DB.Host == "" || c.DB.Name == "" {
		return fmt.Errorf("config: DB_HOST and DB_NAME must not be empty")
	}
	if c.Poll.ReconcileInterval > 0 && c.Poll.ReconcileLimit <= 0 {
		return fmt.Errorf("config: RECONCILE_LIMIT must be positive when reconciliation is enabled")
	}
	return nil
}
