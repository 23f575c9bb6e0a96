package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the server-wide settings. It is loaded once at startup and
// passed explicitly into constructors; nothing reads it as ambient state.
type Config struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	PublicHost   string `mapstructure:"public_host"`
	RegistryPath string `mapstructure:"registry_path"`

	Readiness ReadinessConfig `mapstructure:"readiness"`

	DockerStopTimeout time.Duration `mapstructure:"docker_stop_timeout"`
}

// ReadinessConfig controls the per-session readiness poller. The initial
// delay exists because the viewer inside the container needs time to boot
// before its check endpoint answers at all; it varies by deployment, so it
// is configuration rather than a constant.
type ReadinessConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Interval     time.Duration `mapstructure:"interval"`
	Budget       int           `mapstructure:"budget"`
}

// Load reads bamview.yaml from the working directory if present and applies
// BAMVIEW_* environment overrides on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("public_host", "localhost")
	v.SetDefault("registry_path", "plugins.yaml")
	v.SetDefault("readiness.initial_delay", "5s")
	v.SetDefault("readiness.interval", "2s")
	v.SetDefault("readiness.budget", 30)
	v.SetDefault("docker_stop_timeout", "10s")

	v.SetConfigName("bamview")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BAMVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
