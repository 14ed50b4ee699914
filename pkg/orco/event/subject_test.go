package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectRoundTrip(t *testing.T) {
	domain := "sys"
	subjects := []Subject{
		{Orchestrator: Coordinates{Name: "arvo.orc.inc", Version: "1.0.0"}, Initiator: "cli"},
		{Orchestrator: Coordinates{Name: "arvo.orc.inc", Version: "1.2.3"}, Initiator: "arvo.orc.parent", Domain: &domain},
		{Orchestrator: Coordinates{Name: "arvo.orc.child", Version: "1.2.3"}, Initiator: "arvo.orc.inc", Meta: map[string]string{"redirectto": "arvo.orc.inc"}},
	}

	for _, s := range subjects {
		encoded := Encode(s)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
		assert.Equal(t, encoded, Encode(decoded), "encode must be deterministic across round-trips")
	}
}

func TestSubjectDecodeInvalid(t *testing.T) {
	_, err := Decode("not-valid-base64!!!")
	assert.Error(t, err)
}

func TestSubjectRedirectTo(t *testing.T) {
	s := Subject{Orchestrator: Coordinates{Name: "n", Version: "1"}, Initiator: "init"}
	assert.Equal(t, "", s.RedirectTo())

	s = s.WithRedirectTo("other")
	assert.Equal(t, "other", s.RedirectTo())

	decoded, err := Decode(Encode(s))
	require.NoError(t, err)
	assert.Equal(t, "other", decoded.RedirectTo())
}
