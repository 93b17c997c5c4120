// Package environment describes the deployed agent under test and provides
// the client used to invoke it.
package environment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config identifies one agent inside an application environment. When
// APIEndpoint is empty the endpoint is derived from the other fields.
type Config struct {
	EnvID       string `json:"env_id" yaml:"env_id"`
	EnvVersion  string `json:"env_version" yaml:"env_version"`
	AgentName   string `json:"agent_name" yaml:"agent_name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	APIEndpoint string `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty"`
}

// EndpointURL resolves the agent endpoint for cfg. An explicit APIEndpoint is
// returned unchanged; otherwise the URL is built from the gateway template
// https://<gateway>/envs/<env_id>/v<env_version>/agents/<agent_name>.
func EndpointURL(cfg Config, gateway string) string {
	if endpoint := strings.TrimSpace(cfg.APIEndpoint); endpoint != "" {
		return endpoint
	}
	return fmt.Sprintf("https://%s/envs/%s/v%s/agents/%s",
		strings.Trim(strings.TrimSpace(gateway), "/"),
		url.PathEscape(cfg.EnvID),
		url.PathEscape(cfg.EnvVersion),
		url.PathEscape(cfg.AgentName),
	)
}

// Validate checks that an endpoint can be resolved.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIEndpoint) != "" {
		return nil
	}
	var missing []string
	if strings.TrimSpace(c.EnvID) == "" {
		missing = append(missing, "env_id")
	}
	if strings.TrimSpace(c.EnvVersion) == "" {
		missing = append(missing, "env_version")
	}
	if strings.TrimSpace(c.AgentName) == "" {
		missing = append(missing, "agent_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("environment needs api_endpoint or %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadConfig reads an environment descriptor from a JSON or YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read environment %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse environment %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("environment %s: %w", path, err)
	}
	return cfg, nil
}

var errInvalidEndpoint = errors.New("invalid agent endpoint")

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", errInvalidEndpoint, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w %q: expected an absolute http(s) URL", errInvalidEndpoint, raw)
	}
	return u, nil
}
