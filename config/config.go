// Package config loads service settings: built-in defaults, then an optional
// YAML file named by IRRIGATION_CONFIG, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/irrigation/classifier"
	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/notify"
	"github.com/liamcoop/irrigation/rules"
)

// FileEnv names the variable holding the optional YAML config path
const FileEnv = "IRRIGATION_CONFIG"

// Rule store back-ends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port           string        `yaml:"port"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	DefaultLang    string        `yaml:"default_lang"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Model classifier.Options `yaml:"model"`
	Rules RulesConfig        `yaml:"rules"`
	MQTT  notify.MQTTConfig  `yaml:"mqtt"`
}

type RulesConfig struct {
	Store           string        `yaml:"store"`
	DatabaseURL     string        `yaml:"database_url"`
	File            string        `yaml:"file"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Port:           "8080",
		LogLevel:       "INFO",
		LogFormat:      logger.FormatJSON,
		DefaultLang:    "en",
		RequestTimeout: 60 * time.Second,
		Model:          classifier.DefaultOptions(),
		Rules: RulesConfig{
			Store:           StoreMemory,
			BreakerFailures: 3,
			BreakerOpenFor:  10 * time.Second,
		},
		MQTT: notify.DefaultMQTTConfig(),
	}
}

// Load builds the configuration and validates it
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// env collects parse failures so every bad variable is reported at once
type env struct {
	errs []error
}

func (e *env) str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (e *env) integer(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *env) unsigned(key string, dst *uint64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an unsigned integer", key, v))
		return
	}
	*dst = n
}

func (e *env) unsigned32(key string, dst *uint32) {
	var n uint64
	e.unsigned(key, &n)
	if n > 0 {
		*dst = uint32(n)
	}
}

func (e *env) duration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = d
}

func (c *Config) applyEnv() error {
	e := &env{}

	e.str("PORT", &c.Port)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FORMAT", &c.LogFormat)
	e.str("DEFAULT_LANG", &c.DefaultLang)
	e.duration("REQUEST_TIMEOUT", &c.RequestTimeout)

	if os.Getenv("MODEL_SEED") != "" {
		e.unsigned("MODEL_SEED", &c.Model.Seed)
		c.Model.Forest.Seed = c.Model.Seed
	}
	e.integer("MODEL_SAMPLES", &c.Model.SampleCount)
	e.integer("MODEL_TREES", &c.Model.Forest.Trees)
	e.integer("MODEL_MAX_DEPTH", &c.Model.Forest.MaxDepth)

	e.str("RULE_STORE", &c.Rules.Store)
	e.str("DATABASE_URL", &c.Rules.DatabaseURL)
	e.str("RULES_FILE", &c.Rules.File)
	e.unsigned32("BREAKER_FAILURES", &c.Rules.BreakerFailures)
	e.duration("BREAKER_OPEN_FOR", &c.Rules.BreakerOpenFor)

	e.str("MQTT_BROKER", &c.MQTT.Host)
	e.integer("MQTT_PORT", &c.MQTT.Port)
	e.str("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	e.str("MQTT_USER", &c.MQTT.User)
	e.str("MQTT_PASSWORD", &c.MQTT.Password)
	e.str("MQTT_TOPIC", &c.MQTT.TopicPrefix)

	return errors.Join(e.errs...)
}

// Validate rejects settings the service cannot start with
func (c Config) Validate() error {
	var errs []error

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid TCP port", c.Port))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != logger.FormatJSON && c.LogFormat != logger.FormatText {
		errs = append(errs, fmt.Errorf("log format must be %s or %s, got %q", logger.FormatJSON, logger.FormatText, c.LogFormat))
	}
	if c.DefaultLang == "" {
		errs = append(errs, errors.New("default language cannot be empty"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}

	if c.Model.SampleCount <= 0 {
		errs = append(errs, fmt.Errorf("model samples must be positive, got %d", c.Model.SampleCount))
	}
	if err := c.Model.Forest.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	}

	switch c.Rules.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Rules.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres rule store"))
		}
	default:
		errs = append(errs, fmt.Errorf("rule store must be %s or %s, got %q", StoreMemory, StorePostgres, c.Rules.Store))
	}

	if c.MQTTEnabled() && (c.MQTT.Port < 1 || c.MQTT.Port > 65535) {
		errs = append(errs, fmt.Errorf("mqtt port %d is out of range", c.MQTT.Port))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}

	return errors.Join(errs...)
}

// MQTTEnabled reports whether decision events should be published
func (c Config) MQTTEnabled() bool { return c.MQTT.Host != "" }

// Breaker returns the settings for the Postgres rule store breaker
func (c Config) Breaker() rules.BreakerConfig {
	return rules.BreakerConfig{
		Name:     "rule-store",
		Failures: c.Rules.BreakerFailures,
		OpenFor:  c.Rules.BreakerOpenFor,
	}
}
