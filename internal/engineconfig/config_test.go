package engineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().BM25, cfg.BM25)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ember.yaml")
	content := `
bm25:
  k1: 1.6
  b: 0.9
vector:
  algorithm: flat
fusion:
  method: weighted_sum
  lexical_weight: 0.3
  vector_weight: 0.7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1.6, cfg.BM25.K1)
	require.Equal(t, 0.9, cfg.BM25.B)
	require.Equal(t, "flat", cfg.Vector.Algorithm)
	require.Equal(t, "weighted_sum", cfg.Fusion.Method)
	require.Equal(t, 0.3, cfg.Fusion.LexicalWeight)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ember.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bm25:\n  k1: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EMBER_RRF_CONSTANT", "42")
	t.Setenv("EMBER_FUSION_METHOD", "weighted_sum")
	t.Setenv("EMBER_INDEX_WORKERS", "3")
	t.Setenv("EMBER_STORAGE_ROOT", "/tmp/ember-data")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 42, cfg.Fusion.RRFConstant)
	require.Equal(t, "weighted_sum", cfg.Fusion.Method)
	require.Equal(t, 3, cfg.Concurrency.IndexWorkers)
	require.Equal(t, "/tmp/ember-data", cfg.Storage.Root)
}

func TestValidateRejectsUnknownVectorAlgorithm(t *testing.T) {
	cfg := Default()
	cfg.Vector.Algorithm = "annoy"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeBM25B(t *testing.T) {
	cfg := Default()
	cfg.BM25.B = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroRRFConstant(t *testing.T) {
	cfg := Default()
	cfg.Fusion.RRFConstant = 0
	require.Error(t, cfg.Validate())
}
