package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	errx "github.com/proplens/server/internal/core/error"
	"github.com/proplens/server/internal/pipeline/email"
	"github.com/proplens/server/internal/pipeline/event"
	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// Node names mirror the pipeline stages.
const (
	NodeRetrieve    = "retrieve"
	NodeRewrite     = "rewrite_query"
	NodePlanSQL     = "plan_sql"
	NodeValidateSQL = "validate_sql"
	NodeRunSQL      = "run_sql"
	NodeReport      = "report"
	NodeEmail       = "email"
)

// The stage contracts the graph is wired from. Production implementations
// live in retrieval, rewrite, sqlgen, report, and email; tests substitute
// fakes.
type (
	ContextRetriever interface {
		Retrieve(ctx context.Context, question string) ([]model.Snippet, error)
	}

	QueryRewriter interface {
		Rewrite(ctx context.Context, conversationID, question string, snippets []model.Snippet) (string, error)
	}

	SQLPlanner interface {
		Plan(ctx context.Context, question string, snippets []model.Snippet, priorErrors []string) (string, error)
	}

	SQLValidator interface {
		Validate(stmt string) error
	}

	SQLExecutor interface {
		Run(ctx context.Context, stmt string) (*model.ResultSet, error)
	}

	ReportGenerator interface {
		Generate(ctx context.Context, st *model.PipelineState) (string, error)
	}

	EmailDispatcher interface {
		Dispatch(ctx context.Context, st *model.PipelineState)
	}
)

// stageEnter is the cancellation checkpoint at every stage boundary.
func stageEnter(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event.FromContext(ctx).Emit(stage, event.StageStarted, "")
	return nil
}

func stageDone(ctx context.Context, stage, detail string) {
	event.FromContext(ctx).Emit(stage, event.StageCompleted, detail)
}

func stageFailed(ctx context.Context, stage string, err error) {
	event.FromContext(ctx).Emit(stage, event.StageFailed, errx.UserMessage(err))
}

// NewRetrieveNode performs context retrieval. Failures degrade to an empty
// context rather than aborting the request.
func NewRetrieveNode(retriever ContextRetriever) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
		if err := stageEnter(ctx, NodeRetrieve); err != nil {
			return nil, err
		}

		snippets, err := retriever.Retrieve(ctx, st.RawQuestion)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logx.Warn().Err(err).
				Str("request_id", st.RequestID).
				Msg("context retrieval failed, continuing with empty context")
			st.ContextDegraded = true
			snippets = nil
		}
		st.RetrievedContext = snippets

		detail := ""
		if st.ContextDegraded {
			detail = "degraded: retrieval unavailable"
		}
		stageDone(ctx, NodeRetrieve, detail)
		return st, nil
	})
}

// NewRewriteNode disambiguates the question. Failure is fatal to the request.
func NewRewriteNode(rewriter QueryRewriter) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
		if err := stageEnter(ctx, NodeRewrite); err != nil {
			return nil, err
		}

		rewritten, err := rewriter.Rewrite(ctx, st.ConversationID, st.RawQuestion, st.RetrievedContext)
		if err != nil {
			stageFailed(ctx, NodeRewrite, err)
			return nil, err
		}
		st.RewrittenQuestion = rewritten

		stageDone(ctx, NodeRewrite, "")
		return st, nil
	})
}

// NewPlanSQLNode produces one candidate statement, feeding back the
// validation errors accumulated across prior attempts.
func NewPlanSQLNode(planner SQLPlanner) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
		if err := stageEnter(ctx, NodePlanSQL); err != nil {
			return nil, err
		}

		question := st.RewrittenQuestion
		if question == "" {
			question = st.RawQuestion
		}

		stmt, err := planner.Plan(ctx, question, st.RetrievedContext, st.ValidationErrors)
		if err != nil {
			stageFailed(ctx, NodePlanSQL, err)
			return nil, err
		}
		st.CandidateSQL = stmt

		stageDone(ctx, NodePlanSQL, "")
		return st, nil
	})
}

// NewValidateSQLNode gates every candidate statement. Unsafe statements are
// rejected unconditionally; other rejections consume retry budget and loop
// back to planning.
func NewValidateSQLNode(validator SQLValidator, maxRetries int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
		if err := stageEnter(ctx, NodeValidateSQL); err != nil {
			return nil, err
		}

		st.Retrying = false
		if err := validator.Validate(st.CandidateSQL); err != nil {
			if errx.IsUnconditional(err) || st.RetryCount >= maxRetries {
				stageFailed(ctx, NodeValidateSQL, err)
				return nil, err
			}
			st.ValidationErrors = append(st.ValidationErrors, errx.Detail(err))
			st.RetryCount++
			st.Retrying = true
			logx.Debug().
				Str("request_id", st.RequestID).
				Int("retry", st.RetryCount).
				Str("reason", errx.Detail(err)).
				Msg("candidate sql rejected, replanning")
			stageDone(ctx, NodeValidateSQL, "rejected, replanning")
			return st, nil
		}

		stageDone(ctx, NodeValidateSQL, "accepted")
		return st, nil
	})
}

// NewRunSQLNode executes the validated statement. Execution errors share the
// validation retry budget.
func NewRunSQLNode(executor SQLExecutor, maxRetries int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
		if err := stageEnter(ctx, NodeRunSQL); err != nil {
			return nil, err
		}

		st.Retrying = false
		rows, err := executor.Run(ctx, st.CandidateSQL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if st.RetryCount >= maxRetries {
				stageFailed(ctx, NodeRunSQL, err)
				return nil, err
			}
			st.ValidationErrors = append(st.ValidationErrors, errx.Detail(err))
			st.RetryCount++
			st.Retrying = true
			logx.Debug().
				Str("request_id", st.RequestID).
				Int("retry", st.RetryCount).
				Str("reason", errx.Detail(err)).
				Msg("sql execution failed, replanning")
			stageDone(ctx, NodeRunSQL, "execution failed, replanning")
			return st, nil
		}

		st.ResultRows = rows
		st.ValidationErrors = nil

		stageDone(ctx, NodeRunSQL, "")
		return st, nil
	})
}

// NewReportNode synthesizes the report and detects the email intent from the
// raw question so the following branch can route on it.
func NewReportNode(generator ReportGenerator) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
		if err := stageEnter(ctx, NodeReport); err != nil {
			return nil, err
		}

		text, err := generator.Generate(ctx, st)
		if err != nil {
			stageFailed(ctx, NodeReport, err)
			return nil, err
		}
		st.Report = text

		if email.DetectIntent(st.RawQuestion) {
			if addr, ok := email.ExtractAddress(st.RawQuestion); ok {
				st.EmailIntent = addr
			} else {
				logx.Warn().Str("request_id", st.RequestID).Msg("email requested but no valid address found in the question")
			}
		}

		stageDone(ctx, NodeReport, "")
		return st, nil
	})
}

// NewEmailNode hands the report to the dispatcher. Delivery failure is a
// status, never an error.
func NewEmailNode(dispatcher EmailDispatcher) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, st *model.PipelineState) (*model.PipelineState, error) {
		if err := stageEnter(ctx, NodeEmail); err != nil {
			return nil, err
		}

		dispatcher.Dispatch(ctx, st)

		stageDone(ctx, NodeEmail, string(st.EmailStatus))
		return st, nil
	})
}

// NewValidateCondition routes rejected attempts back to planning and
// accepted statements to execution.
func NewValidateCondition() func(context.Context, *model.PipelineState) (string, error) {
	return func(ctx context.Context, st *model.PipelineState) (string, error) {
		if st.Retrying {
			return NodePlanSQL, nil
		}
		return NodeRunSQL, nil
	}
}

// NewRunCondition routes failed executions back to planning and successful
// ones on to reporting.
func NewRunCondition() func(context.Context, *model.PipelineState) (string, error) {
	return func(ctx context.Context, st *model.PipelineState) (string, error) {
		if st.Retrying {
			return NodePlanSQL, nil
		}
		return NodeReport, nil
	}
}

// NewEmailCondition ends the pipeline unless a delivery intent was detected.
func NewEmailCondition() func(context.Context, *model.PipelineState) (string, error) {
	return func(ctx context.Context, st *model.PipelineState) (string, error) {
		if st.EmailIntent != "" {
			return NodeEmail, nil
		}
		return compose.END, nil
	}
}
