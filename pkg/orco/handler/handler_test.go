package handler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/machine"
	"github.com/flowcore/orco/pkg/orco/schema"
)

func doublerContract(t *testing.T) *event.Contract {
	c, err := event.NewContract("com.math.double", "com.math.double", nil, map[string]*event.Version{
		"1.0.0": {
			Accepts:     map[string]any{},
			Emits:       map[string]event.Schema{"evt.math.doubled": map[string]any{}},
			SystemError: map[string]any{},
		},
	})
	require.NoError(t, err)
	return c
}

func doublerFunc(ctx context.Context, input any) ([]machine.RawEmit, error) {
	payload, _ := input.(map[string]any)
	n, _ := payload["n"].(float64)
	if explode, _ := payload["explode"].(bool); explode {
		return nil, fmt.Errorf("double blew up")
	}
	return []machine.RawEmit{{Type: "evt.math.doubled", Data: map[string]any{"n": n * 2}}}, nil
}

func newTestHandler(t *testing.T) *Handler {
	h, err := New(doublerContract(t), map[string]Func{"1.0.0": doublerFunc}, schema.NewCache())
	require.NoError(t, err)
	return h
}

func TestExecuteRunsFuncAndBuildsEmits(t *testing.T) {
	h := newTestHandler(t)
	evt := event.New("com.math.double", "cli", "subj", map[string]any{"n": float64(3)},
		event.WithDataschema("com.math.double/1.0.0"))

	result, err := h.Execute(context.Background(), evt)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "evt.math.doubled", result.Events[0].Type)
	assert.Equal(t, map[string]any{"n": float64(6)}, result.Events[0].Data)
	assert.Equal(t, "evt.math.doubled", result.Events[0].To)
}

func TestExecuteNonViolationErrorEmitsSystemError(t *testing.T) {
	h := newTestHandler(t)
	evt := event.New("com.math.double", "cli", "subj", map[string]any{"explode": true},
		event.WithDataschema("com.math.double/1.0.0"))

	result, err := h.Execute(context.Background(), evt)
	require.NoError(t, err, "non-violation handler errors are returned as events, not thrown")
	require.Len(t, result.Events, 1)
	assert.Equal(t, "sys.com.math.double.error", result.Events[0].Type)
}

func TestExecuteUnresolvedContractIsViolation(t *testing.T) {
	h := newTestHandler(t)
	evt := event.New("com.math.triple", "cli", "subj", map[string]any{},
		event.WithDataschema("com.math.triple/1.0.0"))

	_, err := h.Execute(context.Background(), evt)
	assert.Error(t, err)
}

func TestNewRejectsVersionNotOnContract(t *testing.T) {
	_, err := New(doublerContract(t), map[string]Func{"9.9.9": doublerFunc}, schema.NewCache())
	assert.Error(t, err)
}

func TestRouterDispatchesByTypeAndStampsExecutionUnits(t *testing.T) {
	h := newTestHandler(t)
	router, err := NewRouter("router-1", []Registration{{EventType: "com.math.double", Handler: h}}, WithExecutionUnits(5))
	require.NoError(t, err)

	evt := event.New("com.math.double", "cli", "subj", map[string]any{"n": float64(4)},
		event.WithDataschema("com.math.double/1.0.0"), event.WithTo("router-1"))

	result, err := router.Dispatch(context.Background(), evt)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, float64(5)+1, result.Events[0].ExecutionUnits)
}

func TestRouterRejectsMismatchedTo(t *testing.T) {
	h := newTestHandler(t)
	router, err := NewRouter("router-1", []Registration{{EventType: "com.math.double", Handler: h}})
	require.NoError(t, err)

	evt := event.New("com.math.double", "cli", "subj", map[string]any{"n": float64(4)},
		event.WithDataschema("com.math.double/1.0.0"), event.WithTo("someone-else"))

	_, err = router.Dispatch(context.Background(), evt)
	assert.Error(t, err)
}

func TestNewRouterRejectsDuplicateRegistration(t *testing.T) {
	h := newTestHandler(t)
	_, err := NewRouter("router-1", []Registration{
		{EventType: "com.math.double", Handler: h},
		{EventType: "com.math.double", Handler: h},
	})
	assert.Error(t, err)
}

func TestRouterRoutesRepeatedFailuresToPoisonHandler(t *testing.T) {
	h := newTestHandler(t)
	poisonCalls := 0
	// The poison handler's contract accepts com.math.triple under the
	// doubler's uri and versions, so it can take the event h keeps rejecting.
	poisonContract, err := event.NewContract("com.math.double", "com.math.triple", nil, doublerContract(t).Versions)
	require.NoError(t, err)
	poisonHandler, err := New(poisonContract, map[string]Func{"1.0.0": func(ctx context.Context, input any) ([]machine.RawEmit, error) {
		poisonCalls++
		return []machine.RawEmit{{Type: "evt.math.doubled", Data: map[string]any{"n": float64(0)}}}, nil
	}}, schema.NewCache())
	require.NoError(t, err)

	router, err := NewRouter("router-1", []Registration{{EventType: "com.math.triple", Handler: h}},
		WithPoisonDetection(2, 100, poisonHandler))
	require.NoError(t, err)

	// com.math.triple is unregistered against h's contract (com.math.double);
	// the mismatched type itself is what fails repeatedly here.
	evt := event.New("com.math.triple", "cli", "subj", map[string]any{},
		event.WithDataschema("com.math.double/1.0.0"), event.WithTo("router-1"))

	_, err = router.Dispatch(context.Background(), evt)
	assert.Error(t, err)
	_, err = router.Dispatch(context.Background(), evt)
	assert.Error(t, err)

	// The second failure reached the threshold of 2; the poison handler now
	// intercepts this third dispatch of the same event id before the normal
	// handler runs.
	result, err := router.Dispatch(context.Background(), evt)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, 1, poisonCalls)
}

func TestDetectorTracksAndEvicts(t *testing.T) {
	d := NewDetector(2, 2)
	d.RecordFailure("a")
	assert.False(t, d.IsPoison("a"))
	d.RecordFailure("a")
	assert.True(t, d.IsPoison("a"))

	d.RecordFailure("b")
	d.RecordFailure("c")
	assert.False(t, d.IsPoison("a"), "a should have been evicted once maxTracked was exceeded")

	d.Reset("b")
	assert.False(t, d.IsPoison("b"))
}
