// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultGateway is the host used to derive agent endpoints when an
	// environment has no explicit api_endpoint.
	DefaultGateway = "aurora-gateway.microsoft.com"
	// defaultRequestTimeout is the default timeout for agent and scoring requests.
	defaultRequestTimeout = 120 * time.Second
	// defaultConcurrency keeps the sequential reference behaviour.
	defaultConcurrency = 1
	// defaultDataDir holds runs, catalogues and the review queue.
	defaultDataDir = "agentevalData"
)

// Environment variables consulted for secrets not kept in the config file.
const (
	EnvAgentToken   = "AGENTEVAL_AGENT_TOKEN"
	EnvScoringToken = "AGENTEVAL_SCORING_TOKEN"
	EnvMySQLDSN     = "AGENTEVAL_MYSQL_DSN"
)

// Config represents the top-level application configuration.
type Config struct {
	Debug              bool              `json:"debug" mapstructure:"debug"`
	LogFile            string            `json:"logFile,omitempty" mapstructure:"logFile"`
	TimeoutSeconds     int               `json:"timeout,omitempty" mapstructure:"timeout"`
	Concurrency        int               `json:"concurrency,omitempty" mapstructure:"concurrency"`
	Gateway            string            `json:"gateway,omitempty" mapstructure:"gateway"`
	AgentToken         string            `json:"agentToken,omitempty" mapstructure:"agentToken"`
	ScoringBackend     string            `json:"scoringBackend,omitempty" mapstructure:"scoringBackend"`
	ScoringToken       string            `json:"scoringToken,omitempty" mapstructure:"scoringToken"`
	CustomServices     map[string]string `json:"customServices,omitempty" mapstructure:"customServices"`
	ReviewQueue        string            `json:"reviewQueue,omitempty" mapstructure:"reviewQueue"`
	Catalog            string            `json:"catalog,omitempty" mapstructure:"catalog"`
	MetricsFile        string            `json:"metricsFile,omitempty" mapstructure:"metricsFile"`
	Store              StoreConfig       `json:"store" mapstructure:"store"`
	ExportPath         string            `json:"export,omitempty" mapstructure:"export"`
	ExportMarkdownPath string            `json:"exportMarkdown,omitempty" mapstructure:"exportMarkdown"`
	ConfigPath         string            `json:"-" mapstructure:"-"`
}

// StoreConfig selects the run persistence backend.
type StoreConfig struct {
	Backend     string `json:"backend,omitempty" mapstructure:"backend"`
	Dir         string `json:"dir,omitempty" mapstructure:"dir"`
	DSN         string `json:"dsn,omitempty" mapstructure:"dsn"`
	TablePrefix string `json:"tablePrefix,omitempty" mapstructure:"tablePrefix"`
}

// Store backends.
const (
	StoreBackendLocal = "local"
	StoreBackendMySQL = "mysql"
)

// RequestTimeout returns the timeout for a single agent or scoring request.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WorkerCount returns the number of records processed concurrently.
func (c Config) WorkerCount() int {
	if c.Concurrency <= 0 {
		return defaultConcurrency
	}
	return c.Concurrency
}

// GatewayHost returns the gateway used for endpoint derivation.
func (c Config) GatewayHost() string {
	if g := strings.TrimSpace(c.Gateway); g != "" {
		return g
	}
	return DefaultGateway
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := strings.TrimSpace(c.LogFile); path != "" {
		return path
	}
	return "agenteval.log"
}

// ReviewQueuePath returns the JSONL file human-review items are appended to.
func (c Config) ReviewQueuePath() string {
	if path := strings.TrimSpace(c.ReviewQueue); path != "" {
		return path
	}
	return defaultDataDir + "/review_queue.jsonl"
}

// CatalogPath returns the evaluator and environment catalogue file.
func (c Config) CatalogPath() string {
	if path := strings.TrimSpace(c.Catalog); path != "" {
		return path
	}
	return defaultDataDir + "/catalog.json"
}

// MetricsPath returns the file agent latency series are merged into.
func (c Config) MetricsPath() string {
	if path := strings.TrimSpace(c.MetricsFile); path != "" {
		return path
	}
	return defaultDataDir + "/metrics/agent_latency.json"
}

// StoreBackend returns the normalized store backend name.
func (c Config) StoreBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if backend == "" {
		return StoreBackendLocal
	}
	return backend
}

// StoreDir returns the directory used by the local run store.
func (c Config) StoreDir() string {
	if dir := strings.TrimSpace(c.Store.Dir); dir != "" {
		return dir
	}
	return defaultDataDir + "/runs"
}

// Validate reports configuration combinations that cannot work.
func (c Config) Validate() error {
	switch c.StoreBackend() {
	case StoreBackendLocal:
	case StoreBackendMySQL:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store backend mysql requires store.dsn")
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}

// LoadEnv reads KEY=VALUE pairs from the given .env files (default ".env")
// into the process environment and copies the known secrets into c when the
// config file left them empty. Missing files are ignored.
func (c *Config) LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return fmt.Errorf("load env files: %w", err)
		}
	}
	if c.AgentToken == "" {
		c.AgentToken = os.Getenv(EnvAgentToken)
	}
	if c.ScoringToken == "" {
		c.ScoringToken = os.Getenv(EnvScoringToken)
	}
	if c.Store.DSN == "" {
		c.Store.DSN = os.Getenv(EnvMySQLDSN)
	}
	return nil
}

// Load reads the application configuration from the specified path.
// A missing file at the default path yields a zero Config.
func Load(path string) (Config, error) {
	usingDefault := path == ""
	if usingDefault {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if usingDefault {
				return Config{}, nil
			}
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	config.ConfigPath = path
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}
