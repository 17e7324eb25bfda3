package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/compose"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	errx "github.com/proplens/server/internal/core/error"
	"github.com/proplens/server/internal/pipeline/cache"
	"github.com/proplens/server/internal/pipeline/email"
	"github.com/proplens/server/internal/pipeline/event"
	"github.com/proplens/server/internal/pipeline/graph/conversations"
	"github.com/proplens/server/internal/pipeline/graph/nodes"
	"github.com/proplens/server/internal/pipeline/graph/observers"
	"github.com/proplens/server/internal/pipeline/model"
	"github.com/proplens/server/internal/pipeline/repo"
	"github.com/proplens/server/internal/pipeline/report"
	"github.com/proplens/server/internal/pipeline/retrieval"
	"github.com/proplens/server/internal/pipeline/rewrite"
	"github.com/proplens/server/internal/pipeline/sqlgen"
	logx "github.com/proplens/server/pkg/logger"
)

// Config holds everything needed to compose the full pipeline end-to-end.
// This is a convenience layer over Deps that also constructs the chat models,
// the schema allowlist, and the stage services.
type Config struct {
	APIKey  string
	BaseURL string

	Pipeline     model.PipelineConfig
	RewriteModel model.RewriteModelConfig
	PlannerModel model.PlannerModelConfig
	ReportModel  model.ReportModelConfig
	Embedding    model.EmbeddingConfig
	Schema       model.SchemaConfig

	// Redis may be nil: caching degrades to misses and conversation history
	// to an empty window.
	Redis  redis.Cmdable
	Pool   *pgxpool.Pool
	Mailer email.Mailer
}

// Deps holds the constructed stage services the graph is wired from. Tests
// build this directly with fakes.
type Deps struct {
	Retriever  nodes.ContextRetriever
	Rewriter   nodes.QueryRewriter
	Planner    nodes.SQLPlanner
	Validator  nodes.SQLValidator
	Executor   nodes.SQLExecutor
	Reporter   nodes.ReportGenerator
	Dispatcher nodes.EmailDispatcher

	History    *conversations.TurnsManager
	MaxRetries int
}

// GraphBuilder handles the construction of the pipeline graph.
type GraphBuilder struct {
	deps  *Deps
	graph *compose.Graph[*model.PipelineState, *model.PipelineState]
}

// BuildPipeline constructs the chat models and stage services from Config,
// builds the graph, and returns a Runner.
func BuildPipeline(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	newChatModel := func(name string, temperature float32, maxTokens int) (*gemini.ChatModel, error) {
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       name,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
	}

	rewriteCM, err := newChatModel(cfg.RewriteModel.Model, cfg.RewriteModel.Temperature, cfg.RewriteModel.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("error creating rewrite model: %w", err)
	}
	plannerCM, err := newChatModel(cfg.PlannerModel.Model, cfg.PlannerModel.Temperature, cfg.PlannerModel.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}
	reportCM, err := newChatModel(cfg.ReportModel.Model, cfg.ReportModel.Temperature, cfg.ReportModel.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("error creating report model: %w", err)
	}

	c := cache.New(cfg.Redis, cfg.Schema.Version)

	schema, err := sqlgen.LoadSchema(ctx, cfg.Pool, c, cfg.Schema, cfg.Pipeline.SchemaTTL)
	if err != nil {
		return nil, fmt.Errorf("error loading schema allowlist: %w", err)
	}

	var convRepo model.ConversationRepository
	if cfg.Redis != nil {
		convRepo = repo.NewRedisConversationRepository(cfg.Redis, cfg.Pipeline.HistoryTTL)
	}
	turns := conversations.NewTurnsManager(convRepo, cfg.Pipeline.HistoryMaxTurns)

	retriever := retrieval.NewRetriever(
		c,
		retrieval.NewGenaiEmbedder(client, cfg.Embedding.Model),
		retrieval.NewPgVectorStore(cfg.Pool, cfg.Embedding.Table),
		cfg.Pipeline.TopK,
		cfg.Pipeline.RetrievalTTL,
	)

	deps := &Deps{
		Retriever:  retriever,
		Rewriter:   rewrite.NewRewriter(rewriteCM, turns, c, cfg.Pipeline.RewriteTTL),
		Planner:    sqlgen.NewPlanner(plannerCM, schema),
		Validator:  sqlgen.NewValidator(schema, cfg.Pipeline.MaxStatementLength),
		Executor:   sqlgen.NewExecutor(cfg.Pool, cfg.Pipeline.SQLTimeout, cfg.Pipeline.ResultRowLimit),
		Reporter:   report.NewGenerator(reportCM),
		Dispatcher: email.NewDispatcher(cfg.Mailer),
		History:    turns,
		MaxRetries: cfg.Pipeline.MaxRetries,
	}

	return NewRunner(ctx, deps)
}

// NewRunner compiles the graph over the provided stage services.
func NewRunner(ctx context.Context, deps *Deps) (*Runner, error) {
	runnable, err := BuildGraph(ctx, deps)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Pipeline graph built successfully")
	return &Runner{runnable: runnable, deps: deps}, nil
}

// BuildGraph constructs and returns the compiled pipeline graph.
func BuildGraph(ctx context.Context, deps *Deps) (compose.Runnable[*model.PipelineState, *model.PipelineState], error) {
	if deps == nil {
		return nil, fmt.Errorf("graph deps is nil")
	}
	if deps.Retriever == nil || deps.Rewriter == nil || deps.Planner == nil ||
		deps.Validator == nil || deps.Executor == nil || deps.Reporter == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("stage services are not properly initialized")
	}
	if deps.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative")
	}

	builder := &GraphBuilder{
		deps:  deps,
		graph: compose.NewGraph[*model.PipelineState, *model.PipelineState](),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeRetrieve, nodes.NewRetrieveNode(b.deps.Retriever))
	b.graph.AddLambdaNode(nodes.NodeRewrite, nodes.NewRewriteNode(b.deps.Rewriter))
	b.graph.AddLambdaNode(nodes.NodePlanSQL, nodes.NewPlanSQLNode(b.deps.Planner))
	b.graph.AddLambdaNode(nodes.NodeValidateSQL, nodes.NewValidateSQLNode(b.deps.Validator, b.deps.MaxRetries))
	b.graph.AddLambdaNode(nodes.NodeRunSQL, nodes.NewRunSQLNode(b.deps.Executor, b.deps.MaxRetries))
	b.graph.AddLambdaNode(nodes.NodeReport, nodes.NewReportNode(b.deps.Reporter))
	b.graph.AddLambdaNode(nodes.NodeEmail, nodes.NewEmailNode(b.deps.Dispatcher))
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeRetrieve},
		{nodes.NodeRetrieve, nodes.NodeRewrite},
		{nodes.NodeRewrite, nodes.NodePlanSQL},
		{nodes.NodePlanSQL, nodes.NodeValidateSQL},
		{nodes.NodeEmail, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the retry loops and the optional email leg.
func (b *GraphBuilder) addBranches() error {
	validateBranch := compose.NewGraphBranch(
		nodes.NewValidateCondition(),
		map[string]bool{
			nodes.NodePlanSQL: true,
			nodes.NodeRunSQL:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeValidateSQL, validateBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding validation branch")
		return fmt.Errorf("error adding validation branch: %w", err)
	}

	runBranch := compose.NewGraphBranch(
		nodes.NewRunCondition(),
		map[string]bool{
			nodes.NodePlanSQL: true,
			nodes.NodeReport:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRunSQL, runBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding execution branch")
		return fmt.Errorf("error adding execution branch: %w", err)
	}

	emailBranch := compose.NewGraphBranch(
		nodes.NewEmailCondition(),
		map[string]bool{
			nodes.NodeEmail: true,
			compose.END:     true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeReport, emailBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding email branch")
		return fmt.Errorf("error adding email branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.PipelineState, *model.PipelineState], error) {
	// Each retry replays plan, validate, and possibly run. Bound total steps
	// so a routing bug cannot spin the loop forever.
	maxSteps := 10 + b.deps.MaxRetries*3
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// Runner executes the compiled graph, one goroutine per request.
type Runner struct {
	runnable compose.Runnable[*model.PipelineState, *model.PipelineState]
	deps     *Deps
}

// Execution is one in-flight request: an ordered event stream plus the final
// state once it reaches a terminal state.
type Execution struct {
	events <-chan event.Event
	done   chan struct{}

	st  *model.PipelineState
	err error
}

// Events streams stage lifecycle events in emission order. The channel is
// closed when the request reaches a terminal state.
func (x *Execution) Events() <-chan event.Event {
	return x.events
}

// Wait blocks until the request finishes and returns the final state. The
// state is populated as far as the pipeline got even when err is non-nil.
func (x *Execution) Wait() (*model.PipelineState, error) {
	<-x.done
	return x.st, x.err
}

// Start launches one pipeline run. The returned Execution is independent of
// any other request in flight.
func (r *Runner) Start(ctx context.Context, req model.Request) *Execution {
	st := model.NewPipelineState(req)
	em := event.NewEmitter(st.RequestID, 64)

	x := &Execution{
		events: em.Events(),
		done:   make(chan struct{}),
		st:     st,
	}

	go func() {
		defer close(x.done)
		defer em.Close()

		runCtx := event.WithEmitter(ctx, em)
		out, err := r.runnable.Invoke(runCtx, st, compose.WithCallbacks(observers.NewPipelineCallbacks()))
		if err != nil {
			if ctx.Err() != nil {
				x.err = ctx.Err()
				em.Emit("pipeline", event.Finished, "canceled")
				logx.Info().Str("request_id", st.RequestID).Msg("request canceled")
				return
			}

			st.Terminal = terminalFor(err)
			x.err = err
			em.Emit("pipeline", event.Finished, string(st.Terminal))
			logx.Error().Err(err).
				Str("request_id", st.RequestID).
				Str("terminal", string(st.Terminal)).
				Msg("pipeline failed")
			return
		}

		out.Terminal = model.TerminalEnd
		x.st = out

		if r.deps.History != nil {
			if err := r.deps.History.SaveTurn(ctx, out); err != nil {
				logx.Warn().Err(err).
					Str("conversation_id", out.ConversationID).
					Msg("could not persist conversation turn")
			}
		}

		em.Emit("pipeline", event.Finished, string(model.TerminalEnd))
		logx.Info().
			Str("request_id", out.RequestID).
			Int("retries", out.RetryCount).
			Str("email_status", string(out.EmailStatus)).
			Msg("pipeline finished")
	}()

	return x
}

// Invoke runs one request to completion, discarding the event stream.
func (r *Runner) Invoke(ctx context.Context, req model.Request) (*model.PipelineState, error) {
	x := r.Start(ctx, req)
	for range x.Events() {
	}
	return x.Wait()
}

// terminalFor maps a pipeline error to the terminal state the request halts
// in.
func terminalFor(err error) model.TerminalState {
	switch errx.KindOf(err) {
	case errx.KindRewrite:
		return model.TerminalRewriteFailed
	case errx.KindSQLValidation:
		return model.TerminalSQLGenerationFailed
	case errx.KindSQLExecution:
		return model.TerminalExecutionFailed
	case errx.KindReport:
		return model.TerminalReportFailed
	default:
		return model.TerminalNone
	}
}
