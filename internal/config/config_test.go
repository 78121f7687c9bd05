package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.True(t, c.Pickle.Memo)
	assert.Nil(t, c.HMACKey())
	assert.Nil(t, c.LogFile())
	assert.Equal(t, 0, c.Log.Verbosity)
}

func TestParse(t *testing.T) {
	c, err := Parse(`
[pyro]
hmac_key = "secret"
trace_dir = "/tmp/trace"
compress = true

[log]
verbosity = 2
file = "pickletool.log"
`)
	require.NoError(t, err)

	// not in the file, keeps default
	assert.True(t, c.Pickle.Memo)

	assert.Equal(t, []byte("secret"), c.HMACKey())
	assert.Equal(t, "/tmp/trace", c.Pyro.TraceDir)
	assert.True(t, c.Pyro.Compress)
	assert.Equal(t, 2, c.Log.Verbosity)
	require.NotNil(t, c.LogFile())
	assert.Equal(t, "pickletool.log", *c.LogFile())

	c, err = Parse("[pickle]\nmemo = false\n")
	require.NoError(t, err)
	assert.False(t, c.Pickle.Memo)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("[pyro]\nhmac = \"typo\"\n")
	assert.ErrorContains(t, err, "pyro.hmac")

	_, err = Parse("[log]\nverbosity = -1\n")
	assert.Error(t, err)

	_, err = Parse("[pickle\n")
	assert.Error(t, err)

	_, err = Parse("[pickle]\nmemo = \"yes\"\n")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pickletool.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pyro]\ncompress = true\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.Pyro.Compress)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
