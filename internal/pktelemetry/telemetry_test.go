package pktelemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, IsEnabled())
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "test-span")
	assert.False(t, span.IsRecording())
	span.End()
}
