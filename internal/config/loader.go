package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KG"

// legacyEnv binds keys to the conventional variable names deployments already use.
var legacyEnv = map[string][]string{
	"neo4j.uri":           {"NEO4J_URI"},
	"neo4j.username":      {"NEO4J_USER", "NEO4J_USERNAME"},
	"neo4j.password":      {"NEO4J_PASSWORD"},
	"neo4j.database":      {"NEO4J_DATABASE"},
	"server.addr":         {"KG_HTTP_ADDR"},
	"server.frontend_url": {"FRONTEND_URL"},
}

// Loader reads configuration through Viper and validates the result.
type Loader struct {
	validator ConfigValidator
}

// NewLoader creates a Loader. A nil validator selects NewValidator().
func NewLoader(validator ConfigValidator) *Loader {
	if validator == nil {
		validator = NewValidator()
	}
	return &Loader{validator: validator}
}

// Load builds the effective configuration.
//
// Parameters:
//   - path: An optional YAML file. An empty path uses defaults and environment only.
//
// Returns:
//
//	The validated configuration, or an error if the file cannot be read or a
//	value is invalid.
func (l *Loader) Load(path string) (*Config, error) {
	v := viper.New()

	// 1. Register every key with its default so environment overrides apply.
	setDefaults(v, DefaultConfig())

	// 2. Environment: KG_SECTION_KEY plus the legacy names.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	// 3. The file, when given, sits between defaults and environment.
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := applySearchPolicyFile(&cfg.Projection); err != nil {
		return nil, err
	}

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is a convenience wrapper around NewLoader(nil).Load(path).
func Load(path string) (*Config, error) {
	return NewLoader(nil).Load(path)
}

// ErrNoConfig is returned by FindConfigFile when no candidate exists.
var ErrNoConfig = errors.New("no configuration file found")

// FindConfigFile returns the first existing file among candidates.
func FindConfigFile(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", ErrNoConfig
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.frontend_url", cfg.Server.FrontendURL)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", cfg.Server.MaxBodyBytes)

	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.username", cfg.Neo4j.Username)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("neo4j.max_connection_pool_size", cfg.Neo4j.MaxConnectionPoolSize)
	v.SetDefault("neo4j.connection_acquisition_timeout", cfg.Neo4j.ConnectionAcquisitionTimeout)
	v.SetDefault("neo4j.max_transaction_retry_time", cfg.Neo4j.MaxTransactionRetryTime)
	v.SetDefault("neo4j.verify_on_start", cfg.Neo4j.VerifyOnStart)

	v.SetDefault("projection.query_timeout", cfg.Projection.QueryTimeout)
	searchable := make(map[string]any, len(cfg.Projection.SearchableProperties))
	for label, prop := range cfg.Projection.SearchableProperties {
		searchable[label] = prop
	}
	v.SetDefault("projection.searchable_properties", searchable)
	v.SetDefault("projection.default_search_property", cfg.Projection.DefaultSearchProperty)
	v.SetDefault("projection.search_policy_file", cfg.Projection.SearchPolicyFile)

	v.SetDefault("lti.unknown_role", cfg.LTI.UnknownRole)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("mcp.enabled", cfg.MCP.Enabled)
	v.SetDefault("mcp.path", cfg.MCP.Path)
}
