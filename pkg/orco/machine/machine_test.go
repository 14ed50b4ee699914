package machine

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterState is the snapshot shape for a trivial increment machine used
// to exercise the engine's purity and registry invariants.
type counterState struct {
	Value int `json:"value"`
}

type counterActor struct {
	state counterState
}

func (a *counterActor) Step(eventType string, eventData any) (StepResult, error) {
	switch eventType {
	case "arvo.orc.inc":
		payload := eventData.(map[string]any)
		mod := int(payload["modifier"].(float64))
		a.state.Value += mod
		snap, _ := json.Marshal(a.state)
		return StepResult{Snapshot: snap, Status: Active}, nil
	case "evt.value.read.success":
		payload := eventData.(map[string]any)
		a.state.Value += int(payload["value"].(float64))
		snap, _ := json.Marshal(a.state)
		return StepResult{Snapshot: snap, Status: Done, FinalOutput: map[string]any{"final": a.state.Value}}, nil
	default:
		return StepResult{}, fmt.Errorf("unhandled event type %s", eventType)
	}
}

type counterLogic struct {
	failValidate bool
}

func (l *counterLogic) Create(initInput any) (Actor, error) {
	return &counterActor{}, nil
}

func (l *counterLogic) Hydrate(snapshot []byte) (Actor, error) {
	var s counterState
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return nil, err
	}
	return &counterActor{state: s}, nil
}

func (l *counterLogic) Validate() error {
	if l.failValidate {
		return fmt.Errorf("machine declares a forbidden delayed transition")
	}
	return nil
}

func TestNewMachineRunsValidation(t *testing.T) {
	_, err := New("arvo.orc.inc", "1.0.0", &counterLogic{failValidate: true})
	assert.Error(t, err)

	m, err := New("arvo.orc.inc", "1.0.0", &counterLogic{})
	require.NoError(t, err)
	assert.Equal(t, "arvo.orc.inc", m.Source)
}

func TestRegistryInvariants(t *testing.T) {
	m1, err := New("arvo.orc.inc", "1.0.0", &counterLogic{})
	require.NoError(t, err)
	m2, err := New("arvo.orc.inc", "2.0.0", &counterLogic{})
	require.NoError(t, err)

	reg, err := NewRegistry(m1, m2)
	require.NoError(t, err)
	assert.Equal(t, "arvo.orc.inc", reg.Source())
	assert.ElementsMatch(t, []string{"1.0.0", "2.0.0"}, reg.Versions())

	resolved, ok := reg.Resolve("1.0.0")
	require.True(t, ok)
	assert.Same(t, m1, resolved)

	_, ok = reg.Resolve("9.9.9")
	assert.False(t, ok)
}

func TestRegistryRejectsEmpty(t *testing.T) {
	_, err := NewRegistry()
	assert.Error(t, err)
}

func TestRegistryRejectsMismatchedSource(t *testing.T) {
	m1, err := New("arvo.orc.inc", "1.0.0", &counterLogic{})
	require.NoError(t, err)
	m2, err := New("arvo.orc.other", "1.0.0", &counterLogic{})
	require.NoError(t, err)

	_, err = NewRegistry(m1, m2)
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicateVersion(t *testing.T) {
	m1, err := New("arvo.orc.inc", "1.0.0", &counterLogic{})
	require.NoError(t, err)
	m2, err := New("arvo.orc.inc", "1.0.0", &counterLogic{})
	require.NoError(t, err)

	_, err = NewRegistry(m1, m2)
	assert.Error(t, err)
}

func TestStepPurity(t *testing.T) {
	m, err := New("arvo.orc.inc", "1.0.0", &counterLogic{})
	require.NoError(t, err)

	initInput := map[string]any{"modifier": float64(2)}
	result1, err := Step(nil, "arvo.orc.inc", initInput, initInput, m)
	require.NoError(t, err)
	result2, err := Step(nil, "arvo.orc.inc", initInput, initInput, m)
	require.NoError(t, err)

	assert.Equal(t, result1, result2, "identical (snapshot, event, machine) must produce identical results")
	assert.Equal(t, Active, result1.Status)

	finalResult, err := Step(result1.Snapshot, "evt.value.read.success", map[string]any{"value": float64(2)}, nil, m)
	require.NoError(t, err)
	assert.Equal(t, Done, finalResult.Status)
	assert.Equal(t, map[string]any{"final": 4}, finalResult.FinalOutput)
}
