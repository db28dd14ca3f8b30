package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"
)

// Registry represents a configured schema registry
type Registry struct {
	Name     string      `mapstructure:"name"`
	URL      string      `mapstructure:"url"`
	Username string      `mapstructure:"username"`
	Password string      `mapstructure:"password"`
	Context  string      `mapstructure:"context"`
	Default  bool        `mapstructure:"default"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig describes how to reach the Kafka cluster backing a registry's
// internal topic, used by commands that talk to the log directly (replicate,
// node run/catchup) instead of going through the REST API.
type KafkaConfig struct {
	Brokers []string   `mapstructure:"brokers"`
	SASL    SASLConfig `mapstructure:"sasl"`
	TLS     TLSConfig  `mapstructure:"tls"`
}

// SASLConfig holds SASL credentials for a Kafka broker connection. Mechanism
// is one of "PLAIN" or "SCRAM-SHA-256"/"SCRAM-SHA-512"; empty disables SASL.
type SASLConfig struct {
	Mechanism string `mapstructure:"mechanism"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig holds TLS dial options for a Kafka broker connection.
type TLSConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	SkipVerify bool `mapstructure:"skip_verify"`
}

// Config represents the application configuration
type Config struct {
	Registries     []Registry `mapstructure:"registries"`
	DefaultOutput  string     `mapstructure:"default_output"`
	DefaultContext string     `mapstructure:"default_context"`
}

// Global configuration instance
var AppConfig Config

// LoadConfig loads configuration from file and environment
func LoadConfig() error {
	// Set config file name and type
	viper.SetConfigName("srctl")
	viper.SetConfigType("yaml")

	// Search paths for config file
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.srctl")
	viper.AddConfigPath("/etc/srctl")

	// Set defaults
	viper.SetDefault("default_output", "table")
	viper.SetDefault("default_context", ".")

	// Environment variable support
	viper.SetEnvPrefix("SRCTL")
	viper.AutomaticEnv()

	// Support common SR environment variables
	if url := os.Getenv("SCHEMA_REGISTRY_URL"); url != "" {
		viper.SetDefault("registries", []Registry{
			{
				Name:     "default",
				URL:      url,
				Username: os.Getenv("SCHEMA_REGISTRY_BASIC_AUTH_USER_INFO"),
				Default:  true,
			},
		})
	}

	// Read config file if exists (silently ignore if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is normal, use defaults/env
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	// Unmarshal to struct
	if err := viper.Unmarshal(&AppConfig); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

// GetDefaultRegistry returns the default registry configuration
func GetDefaultRegistry() *Registry {
	for i := range AppConfig.Registries {
		if AppConfig.Registries[i].Default {
			return &AppConfig.Registries[i]
		}
	}
	// Return first registry if no default is set
	if len(AppConfig.Registries) > 0 {
		return &AppConfig.Registries[0]
	}
	return nil
}

// GetRegistry returns a registry by name
func GetRegistry(name string) *Registry {
	for i := range AppConfig.Registries {
		if AppConfig.Registries[i].Name == name {
			return &AppConfig.Registries[i]
		}
	}
	return nil
}

// WriterConfig configures a sequenced writer node: which broker(s) and
// internal topic it serializes writes onto, how many retries it spends
// before giving up on a collision, how many simulated workers/shards the
// coordinator runs, and which port serves the read-only status surface.
type WriterConfig struct {
	NodeID      string      `mapstructure:"node_id"`
	Brokers     []string    `mapstructure:"brokers"`
	Topic       string      `mapstructure:"topic"`
	RetryBudget int         `mapstructure:"retry_budget"`
	Shards      int         `mapstructure:"shards"`
	StatusPort  int         `mapstructure:"status_port"`
	Kafka       KafkaConfig `mapstructure:"kafka"`
}

// LoadWriterConfig loads the sequenced writer's configuration from
// schema-registry-node.yaml (searched in the same paths srctl's own config
// uses) and SRNODE_*-prefixed environment variables, applying the same
// defaulting pattern as LoadConfig.
func LoadWriterConfig() (*WriterConfig, error) {
	v := viper.New()
	v.SetConfigName("schema-registry-node")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.srctl")
	v.AddConfigPath("/etc/srctl")

	// viper's Unmarshal only reads environment variables for keys it already
	// knows, so brokers needs a default for SRNODE_BROKERS to take effect.
	v.SetDefault("brokers", []string{})
	v.SetDefault("node_id", defaultNodeID())
	v.SetDefault("topic", "_schemas")
	v.SetDefault("retry_budget", 5)
	v.SetDefault("shards", runtimeGOMAXPROCS())
	v.SetDefault("status_port", 8080)

	v.SetEnvPrefix("SRNODE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading writer config file: %w", err)
		}
	}

	var wc WriterConfig
	if err := v.Unmarshal(&wc); err != nil {
		return nil, fmt.Errorf("unable to decode writer config: %w", err)
	}
	if wc.NodeID == "" {
		wc.NodeID = defaultNodeID()
	}
	if wc.Topic == "" {
		wc.Topic = "_schemas"
	}
	if wc.RetryBudget <= 0 {
		wc.RetryBudget = 5
	}
	if wc.Shards <= 0 {
		wc.Shards = runtimeGOMAXPROCS()
	}
	return &wc, nil
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "srnode"
	}
	return host
}

func runtimeGOMAXPROCS() int {
	return runtime.GOMAXPROCS(0)
}
