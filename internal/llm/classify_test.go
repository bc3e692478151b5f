package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	mnemoerrors "mnemo/internal/errors"
)

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		permanent bool
	}{
		{name: "rate limit", err: errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"), transient: true},
		{name: "server error", err: errors.New("500 internal server error"), transient: true},
		{name: "overloaded", err: errors.New("model is overloaded, try later"), transient: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), transient: true},
		{name: "timeout", err: errors.New("context deadline exceeded"), transient: true},
		{name: "bad key", err: errors.New("401 unauthorized: invalid api key"), permanent: true},
		{name: "forbidden", err: errors.New("403 forbidden"), permanent: true},
		{name: "missing model", err: errors.New("404 model not found"), permanent: true},
		{name: "bad request", err: errors.New("400 invalid_argument"), permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyProviderError(tt.err)
			assert.Equal(t, tt.transient, mnemoerrors.IsTransient(classified))
			assert.Equal(t, tt.permanent, mnemoerrors.IsPermanent(classified))
		})
	}
}

func TestClassifyPreservesContentBlock(t *testing.T) {
	blocked := newBlockError("SAFETY")
	assert.Equal(t, blocked, classifyProviderError(blocked))
	assert.True(t, mnemoerrors.IsContentBlocked(blocked))
	assert.False(t, mnemoerrors.IsTransient(blocked))
}

func TestClassifyNilAndUnknown(t *testing.T) {
	assert.NoError(t, classifyProviderError(nil))

	unknown := errors.New("something odd happened")
	assert.Equal(t, unknown, classifyProviderError(unknown))
}

func TestFragmentRender(t *testing.T) {
	memory := Fragment{Kind: FragmentMemory, Label: "14.03.2025", Text: "Talked about hiking plans."}
	assert.Equal(t, "Memory of 14.03.2025: Talked about hiking plans.", memory.Render())

	turn := Fragment{Kind: FragmentTurn, Label: "Alice", Timestamp: "15.03.2025 10:30", Text: "Hello"}
	assert.Equal(t, "[15.03.2025 10:30] Alice: Hello", turn.Render())

	cue := Fragment{Kind: FragmentCue, Label: AssistantName}
	assert.Equal(t, "Mnemo:", cue.Render())

	joined := RenderFragments([]Fragment{memory, turn, cue})
	assert.Equal(t, memory.Render()+"\n"+turn.Render()+"\n"+cue.Render(), joined)
}
