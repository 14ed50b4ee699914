package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/orco/pkg/orco/event"
)

func TestStatelessHandlerSatisfiesExecutor(t *testing.T) {
	h := newTestHandler(t)
	var _ Executor = h.AsExecutor()

	evt := event.New("com.math.double", "cli", "subj", map[string]any{"n": float64(5)},
		event.WithDataschema("com.math.double/1.0.0"))

	events, err := h.AsExecutor().Execute(context.Background(), &evt)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "com.math.double", h.AsExecutor().Source())
	assert.NotNil(t, h.AsExecutor().SystemErrorSchema())
}

func TestRouterSatisfiesExecutor(t *testing.T) {
	h := newTestHandler(t)
	router, err := NewRouter("router-1", []Registration{{EventType: "com.math.double", Handler: h}})
	require.NoError(t, err)
	var _ Executor = router.AsExecutor()

	evt := event.New("com.math.double", "cli", "subj", map[string]any{"n": float64(2)},
		event.WithDataschema("com.math.double/1.0.0"), event.WithTo("router-1"))

	events, err := router.AsExecutor().Execute(context.Background(), &evt)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "router-1", router.AsExecutor().Source())
	assert.Nil(t, router.AsExecutor().SystemErrorSchema())
}
