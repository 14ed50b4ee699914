package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfAndServices(t *testing.T) (*Contract, []*Contract) {
	self, err := NewContract("#/inc/v1", "arvo.orc.inc", nil, map[string]*Version{
		"1.0.0": {Accepts: map[string]any{}, Emits: map[string]Schema{"arvo.orc.inc.done": map[string]any{}}, CompleteEventType: "arvo.orc.inc.done"},
	})
	require.NoError(t, err)

	svc, err := NewContract("com.value.read", "com.value.read", nil, map[string]*Version{
		"1.0.0": {Accepts: map[string]any{}, Emits: map[string]Schema{"evt.value.read.success": map[string]any{}}},
	})
	require.NoError(t, err)
	return self, []*Contract{svc}
}

func TestContractIsOrchestrator(t *testing.T) {
	self, services := selfAndServices(t)
	assert.True(t, self.IsOrchestrator())
	assert.False(t, services[0].IsOrchestrator())
}

func TestValidateContractSetRejectsDuplicateURIs(t *testing.T) {
	self, services := selfAndServices(t)
	dup, err := NewContract(services[0].Uri, "other.type", nil, services[0].Versions)
	require.NoError(t, err)

	err = ValidateContractSet(self, append(services, dup))
	assert.Error(t, err)
}

func TestValidateContractSetRejectsSelfRecursion(t *testing.T) {
	self, services := selfAndServices(t)
	recursive, err := NewContract(self.Uri, "whatever", nil, self.Versions)
	require.NoError(t, err)

	err = ValidateContractSet(self, append(services, recursive))
	assert.Error(t, err)
}

func TestContractVersionWildcard(t *testing.T) {
	self, _ := selfAndServices(t)
	v, ok := self.Version(WildcardVersion)
	assert.True(t, ok)
	assert.NotNil(t, v)

	_, ok = self.Version("9.9.9")
	assert.False(t, ok)
}

func TestNewContractValidation(t *testing.T) {
	_, err := NewContract("", "type", nil, map[string]*Version{"1": {}})
	assert.Error(t, err)

	_, err = NewContract("uri", "", nil, map[string]*Version{"1": {}})
	assert.Error(t, err)

	_, err = NewContract("uri", "type", nil, nil)
	assert.Error(t, err)
}
