package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretFieldMasker_AppliesTo(t *testing.T) {
	m := &SecretFieldMasker{}
	assert.True(t, m.AppliesTo(`{"a":1}`))
	assert.True(t, m.AppliesTo(`[1,2]`))
	assert.True(t, m.AppliesTo("key: value"))
	assert.False(t, m.AppliesTo(""))
	assert.False(t, m.AppliesTo("   "))
	assert.False(t, m.AppliesTo("plain text with no colon"))
}

func TestSecretFieldMasker_MaskJSON(t *testing.T) {
	m := &SecretFieldMasker{}
	in := `{"username":"alice","api_key":"sk-verysecretvalue","nested":{"password":"hunter2"}}`
	out := m.Mask(in)

	assert.Contains(t, out, `"username":"alice"`)
	assert.Contains(t, out, MaskedSecretValue)
	assert.NotContains(t, out, "sk-verysecretvalue")
	assert.NotContains(t, out, "hunter2")
}

func TestSecretFieldMasker_MaskJSONArray(t *testing.T) {
	m := &SecretFieldMasker{}
	in := `[{"token":"abc123"},{"name":"build"}]`
	out := m.Mask(in)

	assert.NotContains(t, out, "abc123")
	assert.Contains(t, out, MaskedSecretValue)
	assert.Contains(t, out, "build")
}

func TestSecretFieldMasker_MaskYAML(t *testing.T) {
	m := &SecretFieldMasker{}
	in := "credential: s3kr1t\nhost: db.internal\n"
	out := m.Mask(in)

	assert.NotContains(t, out, "s3kr1t")
	assert.Contains(t, out, MaskedSecretValue)
	assert.Contains(t, out, "db.internal")
}

func TestSecretFieldMasker_NoSecretsUnchanged(t *testing.T) {
	m := &SecretFieldMasker{}
	in := `{"host":"db.internal","port":5432}`
	out := m.Mask(in)
	assert.Equal(t, in, out)
}

func TestSecretFieldMasker_UnparsableDataReturnedAsIs(t *testing.T) {
	m := &SecretFieldMasker{}
	in := "this is not json or yaml: [unterminated"
	out := m.Mask(in)
	assert.Equal(t, in, out)
}
