// Package config loads the Network Service's process configuration from
// the environment, following the env-groups-plus-defaults idiom used
// throughout this codebase's sibling services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the closed set of deployment environments.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

func (e Environment) IsProduction() bool  { return e == Production }
func (e Environment) IsDevelopment() bool { return e == Development || e == "" }
func (e Environment) IsStaging() bool     { return e == Staging }

// ServerConfig controls the HTTP/websocket listener.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// NetworkConfig controls the fabric's core behavior.
type NetworkConfig struct {
	Secret             string
	IdentityServiceURL string
	HeartbeatInterval  time.Duration
	NodeTimeout        time.Duration
	MaxEventHistory    int
	MaxTraceHistory    int
	DeliveryTimeout    time.Duration
}

// Config is the full process configuration.
type Config struct {
	Environment Environment
	Server      ServerConfig
	Network     NetworkConfig
}

// defaultDevSecret is permitted only outside production.
const defaultDevSecret = "dev-only-insecure-network-secret"

// Load reads .env (if present) then the process environment, applying
// defaults where a variable is unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := Environment(strings.ToLower(getEnv("ENVIRONMENT", string(Development))))

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:        getEnv("HOST", "0.0.0.0"),
			Port:        getIntEnv("PORT", 8080),
			CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),
		},
		Network: NetworkConfig{
			Secret:             getEnv("NETWORK_SECRET", defaultDevSecret),
			IdentityServiceURL: getEnv("IDENTITY_SERVICE_URL", ""),
			HeartbeatInterval:  getDurationEnv("HEARTBEAT_INTERVAL", 30*time.Second),
			NodeTimeout:        getDurationEnv("NODE_TIMEOUT", 90*time.Second),
			MaxEventHistory:    getIntEnv("MAX_EVENT_HISTORY", 10_000),
			MaxTraceHistory:    getIntEnv("MAX_TRACE_HISTORY", 5_000),
			DeliveryTimeout:    getDurationEnv("DELIVERY_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces production-only constraints; development and
// staging are permissive.
func (c *Config) Validate() error {
	if !c.Environment.IsProduction() {
		return nil
	}
	if c.Network.Secret == "" || c.Network.Secret == defaultDevSecret {
		return fmt.Errorf("config: network_secret must be set to a non-default value in production")
	}
	if c.Network.IdentityServiceURL == "" {
		return fmt.Errorf("config: identity_service_url must be set in production")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
