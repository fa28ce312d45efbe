package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.hujson"), nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadParsesHuJSONWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hujson")
	body := `{
		// comments are allowed
		"data_dir": "/var/lib/vstorage",
		"slab_capacity": 1048576,
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/vstorage", cfg.DataDir)
	require.EqualValues(t, 1048576, cfg.SlabCapacity)
	// Fields absent from the file keep their defaults.
	require.Equal(t, Default().CompactLiveRatioThreshold, cfg.CompactLiveRatioThreshold)
}

func TestFlagOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hujson")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "/from-file"}`), 0644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--data-dir=/from-flag"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	require.Equal(t, "/from-flag", cfg.DataDir)
}
