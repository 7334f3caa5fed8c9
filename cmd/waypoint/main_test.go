package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "waypoint dev\n", out)
}

func TestGeoDistance(t *testing.T) {
	out, err := run(t, "geo", "distance", "0,0", "0,1")
	require.NoError(t, err)
	assert.Equal(t, "111,194.9 m\n", out)

	_, err = run(t, "geo", "distance", "0,0", "91,0")
	assert.Error(t, err)
	_, err = run(t, "geo", "distance", "0;0", "1,1")
	assert.Error(t, err)
}

func TestGeoEncodeDecode(t *testing.T) {
	out, err := run(t, "geo", "encode", "--", "38.5,-120.2", "40.7,-120.95", "43.252,-126.453")
	require.NoError(t, err)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@\n", out)

	out, err = run(t, "geo", "decode", "_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	assert.Equal(t, "38.5,-120.2\n40.7,-120.95\n43.252,-126.453\n", out)

	_, err = run(t, "geo", "decode", "_p~iF ps|U")
	assert.Error(t, err)
}

func TestGeoOnRoute(t *testing.T) {
	line, err := run(t, "geo", "encode", "0,0", "0,0.01")
	require.NoError(t, err)

	out, err := run(t, "geo", "on-route", "0,0.005", strings.TrimSpace(line))
	require.NoError(t, err)
	assert.Equal(t, "vertex: false\nsegment: true\n", out)
}

func TestCacheCommandsWithSQLite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "waypoint.yaml")
	cfg := "cache:\n  backend: sqlite\n  db_path: " + filepath.Join(dir, "cache.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	out, err := run(t, "cache", "stats", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: sqlite")
	assert.Contains(t, out, "route_snapshot")
	assert.Contains(t, out, "25m0s")

	out, err = run(t, "cache", "clear", "--expired", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Expired cache entries cleared: 0\n", out)
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := run(t, "cache", "stats", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAuditCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "waypoint.yaml")
	cfg := "audit:\n  db_path: " + filepath.Join(dir, "audit.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	out, err := run(t, "audit", "search", "-c", cfgPath, "--reason", "on_route")
	require.NoError(t, err)
	assert.Equal(t, "No audit entries found.\n", out)

	out, err = run(t, "audit", "stats", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "No audit stats found.\n", out)

	out, err = run(t, "audit", "cleanup", "-c", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Deleted 0 audit entries.\n", out)

	_, err = run(t, "audit", "search", "-c", cfgPath, "--since", "yesterday")
	assert.Error(t, err)
}

func TestCacheCommandsRefuseMemoryBackend(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "waypoint.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("cache:\n  backend: memory\n"), 0644))

	_, err := run(t, "cache", "stats", "-c", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in-process only")

	_, err = run(t, "cache", "clear", "-c", cfgPath)
	assert.Error(t, err)
}
