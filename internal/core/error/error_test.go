package errx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(KindSQLExecution, StageExecute, "query failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "run_sql")
	assert.Contains(t, err.Error(), "connection refused")

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindSQLExecution, pe.Kind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRewrite, KindOf(New(KindRewrite, StageRewrite, "boom", nil)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestUnsafeIsUnconditional(t *testing.T) {
	assert.True(t, IsUnconditional(Unsafe("disallowed keyword")))
	assert.False(t, IsUnconditional(Validation("unknown column")))
	assert.False(t, IsUnconditional(errors.New("plain")))
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "unknown column", Detail(Validation("unknown column")))
	assert.Equal(t, "query failed: timeout",
		Detail(New(KindSQLExecution, StageExecute, "query failed", errors.New("timeout"))))
	assert.Equal(t, "plain", Detail(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	msg := UserMessage(New(KindReport, StageReport, "the report model call failed", errors.New("secret internal detail")))
	assert.Equal(t, "the report stage failed: the report model call failed", msg)
	assert.NotContains(t, msg, "secret")

	assert.Equal(t, "the request failed", UserMessage(errors.New("anything")))
}
