package health

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanErr(t *testing.T) {
	err := NewHumanErr("main.go:3: no function or method here", "no unit at line", "line", 3)
	assert.Equal(t, "main.go:3: no function or method here", err.Error())

	var h *HumanErr
	require.True(t, errors.As(err, &h))
	assert.Equal(t, "no unit at line[line=3]", h.HealthErr.Error())
	assert.Equal(t, KindNone, KindOf(err))

	empty := NewHumanErr("", "log only")
	assert.Equal(t, "log only", empty.Error())
}

func TestWrapHuman(t *testing.T) {
	cause := NewKindErr(KindTimeout, "model query timed out", "timeout", "60s")
	err := WrapHuman("The model did not respond in time.", "rewrite did not reach review", cause, "state", "FAILED")

	assert.Equal(t, "The model did not respond in time.", err.Error())
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, cause)

	var buf strings.Builder
	LogErr(slog.New(slog.NewTextHandler(&buf, nil)), err)
	assert.Equal(t, `level=ERROR msg="rewrite did not reach review" state=FAILED via="timeout: model query timed out[timeout=60s]"`, logLine(&buf))
}

func TestHumanMessage(t *testing.T) {
	human := NewHumanErr("Set OPENAI_API_KEY.", "no API key")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("boom"), want: "boom"},
		{name: "human", err: human, want: "Set OPENAI_API_KEY."},
		{name: "wrapped human", err: fmt.Errorf("rewrite: %w", human), want: "Set OPENAI_API_KEY."},
		{name: "human inside health", err: Wrap("startup", human), want: "Set OPENAI_API_KEY."},
		{name: "empty human message", err: NewHumanErr("", "log only"), want: "log only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HumanMessage(tt.err))
		})
	}
}
