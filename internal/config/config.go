// Package config loads and validates the service configuration.
//
// Settings come, in increasing priority, from the built-in defaults, an
// optional YAML file and the environment. Every key can be overridden with a
// KG_ prefixed variable (KG_NEO4J_URI, KG_PROJECTION_QUERY_TIMEOUT, ...); the
// conventional NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD and NEO4J_DATABASE
// variables are honoured as well.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j" yaml:"neo4j"`
	Projection ProjectionConfig `mapstructure:"projection" yaml:"projection"`
	LTI        LTIConfig        `mapstructure:"lti" yaml:"lti"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	MCP        MCPConfig        `mapstructure:"mcp" yaml:"mcp"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	FrontendURL     string        `mapstructure:"frontend_url" yaml:"frontend_url" validate:"required,url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes" validate:"min=1"`
}

// Neo4jConfig contains Neo4j connection settings.
type Neo4jConfig struct {
	URI                          string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Username                     string        `mapstructure:"username" yaml:"username" validate:"required"`
	Password                     string        `mapstructure:"password" yaml:"password"`
	Database                     string        `mapstructure:"database" yaml:"database"`
	MaxConnectionPoolSize        int           `mapstructure:"max_connection_pool_size" yaml:"max_connection_pool_size" validate:"min=0"`
	ConnectionAcquisitionTimeout time.Duration `mapstructure:"connection_acquisition_timeout" yaml:"connection_acquisition_timeout"`
	MaxTransactionRetryTime      time.Duration `mapstructure:"max_transaction_retry_time" yaml:"max_transaction_retry_time"`
	VerifyOnStart                bool          `mapstructure:"verify_on_start" yaml:"verify_on_start"`
}

// ProjectionConfig tunes the graph views.
type ProjectionConfig struct {
	// QueryTimeout bounds each projection or mutation. Zero disables it.
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	// SearchableProperties maps a label to the property keyword search inspects.
	SearchableProperties map[string]string `mapstructure:"searchable_properties" yaml:"searchable_properties"`
	// DefaultSearchProperty is used for labels missing from SearchableProperties.
	DefaultSearchProperty string `mapstructure:"default_search_property" yaml:"default_search_property" validate:"required"`
	// SearchPolicyFile optionally names a YAML document overriding the two
	// settings above. See SearchPolicyFile.
	SearchPolicyFile string `mapstructure:"search_policy_file" yaml:"search_policy_file,omitempty"`
}

// LTIConfig controls how LMS launches are mapped onto view modes.
type LTIConfig struct {
	// UnknownRole decides the fate of launches with no recognised role:
	// "student", "editor" or "reject".
	UnknownRole string `mapstructure:"unknown_role" yaml:"unknown_role" validate:"oneof=student editor reject"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`
}

// MCPConfig controls the Model Context Protocol endpoint.
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`
}

// Redacted returns a copy of the configuration safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Neo4j.Password != "" {
		cp.Neo4j.Password = "********"
	}
	if c.Projection.SearchableProperties != nil {
		cp.Projection.SearchableProperties = make(map[string]string, len(c.Projection.SearchableProperties))
		for k, v := range c.Projection.SearchableProperties {
			cp.Projection.SearchableProperties[k] = v
		}
	}
	return &cp
}

// UsesDefaultPassword reports whether the Neo4j password was never changed.
func (c *Config) UsesDefaultPassword() bool {
	return c.Neo4j.Password == DefaultNeo4jPassword
}
