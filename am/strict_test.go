package am

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/capgen/errors"
)

func TestUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[generate]
renmae_prefix = "Via"
emitter = "go"

[[lattice.composite]]
name = "Random"
subsumes = ["Base"]
weight = 3
`)

	unknown, err := UnknownKeys(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"generate.renmae_prefix", "lattice.composite.weight"}, unknown)

	err = ValidateFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "renmae_prefix")
}

func TestUnknownKeys_Clean(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[registry]\npath = \"caps.json\"\n")

	unknown, err := UnknownKeys(path)
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.NoError(t, ValidateFile(path))
}

func TestUnknownKeys_Malformed(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[registry\n")

	_, err := UnknownKeys(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
