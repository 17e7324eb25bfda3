package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"

	"github.com/proplens/server/internal/pipeline/email"
	"github.com/proplens/server/internal/pipeline/graph"
	"github.com/proplens/server/internal/pipeline/model"
	"github.com/proplens/server/pkg/mailer"
	pkgpostgres "github.com/proplens/server/pkg/postgres"
	pkgredis "github.com/proplens/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the pipeline, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config
	Mail     mailer.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Pipeline configs
	Pipeline     model.PipelineConfig
	RewriteModel model.RewriteModelConfig
	PlannerModel model.PlannerModelConfig
	ReportModel  model.ReportModelConfig
	Embedding    model.EmbeddingConfig
	Schema       model.SchemaConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	// Redis is optional: without it the caches serve misses and the rewrite
	// runs without conversation history.
	var rdb goredis.Cmdable
	if client, err := envCfg.Redis.New(); err != nil {
		log.Printf("Warning: Redis unavailable, running without cache: %v", err)
	} else {
		rdb = client
		defer client.Close()
	}

	pool, err := envCfg.Postgres.New(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	var m email.Mailer
	if envCfg.Mail.Sender != "" {
		m = envCfg.Mail.New()
	}

	cfg := graph.Config{
		APIKey:       envCfg.APIKey,
		BaseURL:      envCfg.BaseURL,
		Pipeline:     envCfg.Pipeline,
		RewriteModel: envCfg.RewriteModel,
		PlannerModel: envCfg.PlannerModel,
		ReportModel:  envCfg.ReportModel,
		Embedding:    envCfg.Embedding,
		Schema:       envCfg.Schema,
		Redis:        rdb,
		Pool:         pool,
		Mailer:       m,
	}

	runner, err := graph.BuildPipeline(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	questions := []string{
		"Which suburbs in Victoria have the highest average property price?",
		"How many of those are apartments?",
	}

	conversationID := "local-conversation-1"

	for i, q := range questions {
		fmt.Printf("\nQuestion %d: %s\n", i+1, q)

		x := runner.Start(ctx, model.Request{
			UserID:         "local-user",
			ConversationID: conversationID,
			Question:       q,
		})

		for ev := range x.Events() {
			if ev.Detail != "" {
				fmt.Printf("  [%s] %s: %s\n", ev.Type, ev.Stage, ev.Detail)
			} else {
				fmt.Printf("  [%s] %s\n", ev.Type, ev.Stage)
			}
		}

		st, err := x.Wait()
		if err != nil {
			log.Fatalf("Request %d failed in state %s: %v", i+1, st.Terminal, err)
		}

		fmt.Printf("\nReport:\n%s\n", st.Report)
	}
}
