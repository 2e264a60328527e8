package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLine_Partial(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"type":"partial","content":"hi"}`))
	require.NoError(t, err)
	p, ok := msg.(PartialMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", p.Content)
}

func TestDecodeLine_Response(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"type":"response","content":"hi there"}`))
	require.NoError(t, err)
	r, ok := msg.(ResponseMessage)
	require.True(t, ok)
	assert.Equal(t, "hi there", r.Content)
}

func TestDecodeLine_UnknownType(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"foo":"bar"}`))
	require.NoError(t, err)
	u, ok := msg.(UnknownMessage)
	require.True(t, ok)
	assert.Equal(t, "bar", u.Raw["foo"])
}

func TestDecodeLine_Metric(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"type":"metric","inputTokens":10,"outputTokens":20,"costUSD":0.05}`))
	require.NoError(t, err)
	m, ok := msg.(MetricMessage)
	require.True(t, ok)
	assert.Equal(t, int64(10), m.InputTokens)
	assert.Equal(t, int64(20), m.OutputTokens)
}

func TestDecodeLine_InvalidJSON(t *testing.T) {
	_, err := DecodeLine([]byte(`not json`))
	assert.Error(t, err)
}

func TestError_IsKindSentinel(t *testing.T) {
	err := NewError(KindSessionNotFound, "session xyz not found", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NotErrorIs(t, err, ErrCapacityExceeded)
}

func TestPhase_Terminal(t *testing.T) {
	assert.True(t, PhaseCompleted.Terminal())
	assert.True(t, PhaseCancelled.Terminal())
	assert.True(t, PhaseTimedOut.Terminal())
	assert.True(t, PhaseFailed.Terminal())
	assert.False(t, PhaseRunning.Terminal())
	assert.False(t, PhaseStarting.Terminal())
}
