package config

import "time"

// DefaultNeo4jPassword is the development password shipped with the defaults.
const DefaultNeo4jPassword = "neo4j_password"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			FrontendURL:     "http://localhost:5173",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Neo4j: Neo4jConfig{
			URI:                          "bolt://localhost:7687",
			Username:                     "neo4j",
			Password:                     DefaultNeo4jPassword,
			Database:                     "",
			MaxConnectionPoolSize:        50,
			ConnectionAcquisitionTimeout: 30 * time.Second,
			MaxTransactionRetryTime:      15 * time.Second,
			VerifyOnStart:                true,
		},
		Projection: ProjectionConfig{
			QueryTimeout: 15 * time.Second,
			SearchableProperties: map[string]string{
				"Movie":        "title",
				"Person":       "name",
				"Organization": "name",
			},
			DefaultSearchProperty: "name",
		},
		LTI: LTIConfig{
			UnknownRole: "student",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		MCP: MCPConfig{
			Enabled: true,
			Path:    "/mcp",
		},
	}
}
