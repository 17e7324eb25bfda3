package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitPreservesOrder(t *testing.T) {
	em := NewEmitter("req-1", 8)
	em.Emit("retrieve", StageStarted, "")
	em.Emit("retrieve", StageCompleted, "")
	em.Emit("pipeline", Finished, "End")
	em.Close()

	var got []Event
	for ev := range em.Events() {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, StageStarted, got[0].Type)
	assert.Equal(t, StageCompleted, got[1].Type)
	assert.Equal(t, Finished, got[2].Type)
	for _, ev := range got {
		assert.Equal(t, "req-1", ev.RequestID)
		assert.False(t, ev.At.IsZero())
	}
}

func TestEmitNeverBlocksWhenBufferFull(t *testing.T) {
	em := NewEmitter("req-1", 1)
	em.Emit("retrieve", StageStarted, "")
	// buffer is full; this must drop, not block
	em.Emit("retrieve", StageCompleted, "")
	em.Close()

	var got []Event
	for ev := range em.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, StageStarted, got[0].Type)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var em *Emitter
	em.Emit("retrieve", StageStarted, "")
	em.Close()
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	em := NewEmitter("req-1", 4)
	ctx := WithEmitter(context.Background(), em)
	assert.Same(t, em, FromContext(ctx))
}
