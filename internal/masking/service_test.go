package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	s := NewService(true)
	require.NotNil(t, s)
	assert.True(t, s.enabled)
	assert.NotEmpty(t, s.patterns)
	assert.NotEmpty(t, s.maskers)
}

func TestService_NilReceiver(t *testing.T) {
	var s *Service
	assert.Equal(t, "hello", s.Mask("hello"))
	in := map[string]any{"a": 1}
	assert.Equal(t, in, s.MaskMap(in))
}

func TestService_Disabled(t *testing.T) {
	s := NewService(false)
	in := "password=hunter2verylong"
	assert.Equal(t, in, s.Mask(in))
}

func TestService_MaskAppliesPatternsAndMaskers(t *testing.T) {
	s := NewService(true)

	out := s.Mask(`{"api_key":"sk-abcdef1234567890","note":"fine"}`)
	assert.NotContains(t, out, "sk-abcdef1234567890")
	assert.Contains(t, out, MaskedSecretValue)

	out = s.Mask("Authorization: Bearer abc123DEFghi456")
	assert.Contains(t, out, "Bearer [MASKED_TOKEN]")
}

func TestService_MaskEmptyContent(t *testing.T) {
	s := NewService(true)
	assert.Equal(t, "", s.Mask(""))
}

func TestService_MaskMap(t *testing.T) {
	s := NewService(true)
	in := map[string]any{
		"token":  "abcdef1234567890longenough",
		"stdout": "build complete",
		"meta":   map[string]any{"password": "hunter2verylong"},
	}
	out := s.MaskMap(in)

	require.NotNil(t, out)
	assert.Equal(t, MaskedSecretValue, out["token"])
	assert.Equal(t, "build complete", out["stdout"])
	meta, ok := out["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, MaskedSecretValue, meta["password"])
}

func TestService_MaskMapDisabledReturnsUnchanged(t *testing.T) {
	s := NewService(false)
	in := map[string]any{"token": "abcdef1234567890longenough"}
	out := s.MaskMap(in)
	assert.Equal(t, in["token"], out["token"])
}

func TestService_MaskMapEmpty(t *testing.T) {
	s := NewService(true)
	assert.Empty(t, s.MaskMap(nil))
	assert.Empty(t, s.MaskMap(map[string]any{}))
}
