package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Fleet      []EndpointConfig `mapstructure:"fleet"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Health     HealthConfig     `mapstructure:"health"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Log        LogConfig        `mapstructure:"log"`

	// AuthToken is the bearer token presented to endpoints. Only read from
	// the environment, never from a config file.
	AuthToken string `mapstructure:"-"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// EndpointConfig identifies one backend endpoint under test.
type EndpointConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
}

// ProbeConfig holds workflow constants and polling bounds.
type ProbeConfig struct {
	ImageModel       string        `mapstructure:"image_model"`
	ImageAspectRatio string        `mapstructure:"image_aspect_ratio"`
	VideoModel       string        `mapstructure:"video_model"`
	VideoAspectRatio string        `mapstructure:"video_aspect_ratio"`
	CropAspectRatio  string        `mapstructure:"crop_aspect_ratio"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts  int           `mapstructure:"max_poll_attempts"`
}

// HealthConfig holds fleet health monitor configuration.
type HealthConfig struct {
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	CheckTimeout     time.Duration `mapstructure:"check_timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// HTTPClientConfig holds outbound HTTP client tuning.
type HTTPClientConfig struct {
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/mediaprobe")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("MEDIAPROBE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AuthToken = os.Getenv("MEDIAPROBE_AUTH_TOKEN")

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Probe defaults
	v.SetDefault("probe.image_model", "IMAGEN_3_5")
	v.SetDefault("probe.image_aspect_ratio", "IMAGE_ASPECT_RATIO_LANDSCAPE")
	v.SetDefault("probe.video_model", "VEO_2_0")
	v.SetDefault("probe.video_aspect_ratio", "VIDEO_ASPECT_RATIO_LANDSCAPE")
	v.SetDefault("probe.crop_aspect_ratio", "LANDSCAPE")
	v.SetDefault("probe.poll_interval", 5*time.Second)
	v.SetDefault("probe.max_poll_attempts", 120)

	// Health defaults
	v.SetDefault("health.check_interval", 30*time.Second)
	v.SetDefault("health.check_timeout", 10*time.Second)
	v.SetDefault("health.failure_threshold", 5)

	// HTTP client defaults
	v.SetDefault("http_client.dial_timeout", 10*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 10)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 120*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
