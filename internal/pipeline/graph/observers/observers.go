package observers

import (
	"context"

	"github.com/cloudwego/eino/callbacks"

	logx "github.com/proplens/server/pkg/logger"
)

// NewPipelineCallbacks logs the lifecycle of every graph node. Attached per
// invocation so log lines carry only what the node reports, never request
// payloads.
func NewPipelineCallbacks() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			if info != nil {
				logx.Debug().
					Str("node", info.Name).
					Str("component", string(info.Component)).
					Msg("node started")
			}
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			if info != nil {
				logx.Debug().
					Str("node", info.Name).
					Str("component", string(info.Component)).
					Msg("node completed")
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			if info != nil {
				logx.Error().Err(err).
					Str("node", info.Name).
					Str("component", string(info.Component)).
					Msg("node failed")
			}
			return ctx
		}).
		Build()
}
