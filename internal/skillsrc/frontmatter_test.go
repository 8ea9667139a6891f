package skillsrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/workbench/internal/models"
)

func TestParseDocument(t *testing.T) {
	t.Run("parses a well-formed skill document", func(t *testing.T) {
		doc := "---\n" +
			"name: Tidy Files\n" +
			"description: Organizes a messy directory\n" +
			"allowed_tools:\n" +
			"  - filesystem.write_text\n" +
			"  - filesystem.list_dir\n" +
			"default_mode: pro\n" +
			"---\n" +
			"You are a careful file organizer.\n"

		sk, err := ParseDocument(doc)
		require.NoError(t, err)
		assert.Equal(t, "Tidy Files", sk.Name)
		assert.Equal(t, "Organizes a messy directory", sk.Description)
		assert.Equal(t, []string{"filesystem.write_text", "filesystem.list_dir"}, sk.AllowedTools)
		assert.Equal(t, models.ModePro, sk.DefaultMode)
		assert.Equal(t, "You are a careful file organizer.", sk.SystemPrompt)
		assert.True(t, sk.Enabled)
	})

	t.Run("defaults to fast mode when unset", func(t *testing.T) {
		doc := "---\nname: Quick\n---\nBe quick.\n"
		sk, err := ParseDocument(doc)
		require.NoError(t, err)
		assert.Equal(t, models.ModeFast, sk.DefaultMode)
	})

	t.Run("missing frontmatter is an error", func(t *testing.T) {
		_, err := ParseDocument("just a plain system prompt, no frontmatter")
		require.Error(t, err)
	})

	t.Run("unclosed frontmatter is an error", func(t *testing.T) {
		_, err := ParseDocument("---\nname: X\nno closing fence")
		require.Error(t, err)
	})

	t.Run("missing name is an error", func(t *testing.T) {
		_, err := ParseDocument("---\ndescription: no name here\n---\nbody text\n")
		require.Error(t, err)
	})

	t.Run("empty body is an error", func(t *testing.T) {
		_, err := ParseDocument("---\nname: X\n---\n   \n")
		require.Error(t, err)
	})
}
