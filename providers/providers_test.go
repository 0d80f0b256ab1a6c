package providers_test

import (
	"testing"

	"github.com/inspirepan/cadagent/providers"
	"github.com/inspirepan/cadagent/providers/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, name := range []string{"openai", "chatcompletion", "anthropic", "google", "Gemini"} {
		p, err := providers.New(name, "some-model", base.Config{APIKey: "k"})
		require.NoError(t, err, name)
		assert.NotNil(t, p)
	}

	_, err := providers.New("mystery", "m", base.Config{})
	assert.ErrorContains(t, err, "unknown provider")

	_, err = providers.New("openai", "", base.Config{})
	assert.Error(t, err)
}
