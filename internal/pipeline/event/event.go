package event

import (
	"context"
	"time"

	logx "github.com/proplens/server/pkg/logger"
)

// Type classifies a stage lifecycle event.
type Type string

const (
	StageStarted   Type = "stage_started"
	StageCompleted Type = "stage_completed"
	StageFailed    Type = "stage_failed"
	Finished       Type = "finished"
)

// Event is one entry in the per-request ordered stream. Consumers read
// events in emission order; the channel is closed once the request reaches a
// terminal state.
type Event struct {
	RequestID string    `json:"request_id"`
	Stage     string    `json:"stage"`
	Type      Type      `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Emitter is the single-producer side of a request's event stream. Emission
// never blocks pipeline progress: when the consumer falls behind the buffer,
// events are dropped with a warning rather than stalling a stage.
type Emitter struct {
	requestID string
	ch        chan Event
}

func NewEmitter(requestID string, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Emitter{requestID: requestID, ch: make(chan Event, buffer)}
}

// Events returns the consumer side of the stream.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit appends an event to the stream.
func (e *Emitter) Emit(stage string, t Type, detail string) {
	if e == nil {
		return
	}
	ev := Event{
		RequestID: e.requestID,
		Stage:     stage,
		Type:      t,
		Detail:    detail,
		At:        time.Now(),
	}
	select {
	case e.ch <- ev:
	default:
		logx.Warn().Str("request_id", e.requestID).Str("stage", stage).Msg("event buffer full, dropping event")
	}
}

// Close ends the stream. Must be called exactly once, by the producer, after
// the terminal state is reached.
func (e *Emitter) Close() {
	if e != nil {
		close(e.ch)
	}
}

type ctxKey struct{}

// WithEmitter attaches the request's emitter to the context handed to graph
// nodes.
func WithEmitter(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext returns the attached emitter, or nil when absent (a nil
// emitter is safe to Emit on).
func FromContext(ctx context.Context) *Emitter {
	e, _ := ctx.Value(ctxKey{}).(*Emitter)
	return e
}
