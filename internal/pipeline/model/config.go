package model

import "time"

// ================ Config ================

// PipelineConfig carries the tunables for one pipeline instance. All stages
// read their budgets and TTLs from here; nothing is hard-coded in the graph.
type PipelineConfig struct {
	MaxRetries         int           `envconfig:"PIPELINE_MAX_RETRIES" default:"2"`
	TopK               int           `envconfig:"RETRIEVAL_TOP_K" default:"4"`
	RetrievalTTL       time.Duration `envconfig:"RETRIEVAL_CACHE_TTL" default:"1h"`
	RewriteTTL         time.Duration `envconfig:"REWRITE_CACHE_TTL" default:"1h"`
	SchemaTTL          time.Duration `envconfig:"SCHEMA_CACHE_TTL" default:"24h"`
	SQLTimeout         time.Duration `envconfig:"SQL_TIMEOUT" default:"15s"`
	MaxStatementLength int           `envconfig:"SQL_MAX_STATEMENT_LENGTH" default:"4000"`
	ResultRowLimit     int           `envconfig:"SQL_RESULT_ROW_LIMIT" default:"200"`
	HistoryMaxTurns    int           `envconfig:"CONVERSATION_MAX_TURNS" default:"5"`
	HistoryTTL         time.Duration `envconfig:"CONVERSATION_TTL" default:"24h"`
}

type RewriteModelConfig struct {
	Model       string  `envconfig:"REWRITE_MODEL" default:"gemini-2.0-flash"`
	MaxTokens   int     `envconfig:"REWRITE_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"REWRITE_TEMPERATURE" default:"0.0"`
}

type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.0-flash"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.0"`
}

type ReportModelConfig struct {
	Model       string  `envconfig:"REPORT_MODEL" default:"gemini-2.0-flash"`
	MaxTokens   int     `envconfig:"REPORT_MAX_TOKENS" default:"2048"`
	Temperature float32 `envconfig:"REPORT_TEMPERATURE" default:"0.4"`
}

type EmbeddingConfig struct {
	Model string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	Table string `envconfig:"EMBEDDING_TABLE" default:"schema_docs"`
}

// SchemaConfig names the tables the validator allowlist is built from.
// Version is an operator-bumped tag mixed into every cache key; bumping it
// after a data reload is the only invalidation hook (TTL expiry otherwise).
type SchemaConfig struct {
	Version   string   `envconfig:"SCHEMA_VERSION" default:"v1"`
	Tables    []string `envconfig:"SCHEMA_TABLES" default:"properties"`
	Allowlist string   `envconfig:"SCHEMA_ALLOWLIST" default:""`
}
