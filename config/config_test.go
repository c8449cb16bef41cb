package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_PassesComponentValidation(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Stages.Writeback.Validate())
	require.NoError(t, cfg.Cluster.L1.Validate())
	require.NoError(t, cfg.Cluster.L2.Validate())
	require.NoError(t, cfg.Cluster.DRAM.Validate())
	require.Greater(t, cfg.Core.NumWarps, 0)
}

func TestLoad_OverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cycles: 500\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(500), cfg.Cycles)
	require.Equal(t, Default().NumClusters, cfg.NumClusters, "unspecified fields keep their documented default")
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cycls: 500\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err, "a typo'd field must fail to load, not silently zero-value")
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
