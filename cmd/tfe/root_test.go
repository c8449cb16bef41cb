package main

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCmd_DefaultLogLevel_IsInfo(t *testing.T) {
	flag := runCmd.Flags().Lookup("log")
	assert.NotNil(t, flag, "log flag must be registered")
	assert.Equal(t, "info", flag.DefValue)
}

func TestRunCmd_CyclesFlag_ZeroMeansUseConfig(t *testing.T) {
	flag := runCmd.Flags().Lookup("cycles")
	require.NotNil(t, flag, "cycles flag must be registered")
	def, err := strconv.ParseUint(flag.DefValue, 10, 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), def, "0 must mean 'use the config's own cycle count'")
}

func TestRunCmd_SeedFlag_DefaultsToOne(t *testing.T) {
	flag := runCmd.Flags().Lookup("seed")
	require.NotNil(t, flag, "seed flag must be registered")
	assert.Equal(t, "1", flag.DefValue)
}

func TestRunCmd_RejectsUnknownLogLevel(t *testing.T) {
	logLevel = "not-a-level"
	defer func() { logLevel = "info" }()

	err := runCmd.RunE(runCmd, nil)
	assert.Error(t, err)
}

func TestRunCmd_PrintsMetricsSummaryToStdout(t *testing.T) {
	logLevel = "info"
	configPath = ""
	cycles = 20
	seed = 1
	defer func() { cycles = 0 }()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := runCmd.RunE(runCmd, nil)

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	output := buf.String()

	require.NoError(t, err)
	assert.Contains(t, output, "cycles: 20")
	assert.Contains(t, output, "l0 hit rate")
}

func TestRunCmd_MissingConfigFileReturnsError(t *testing.T) {
	logLevel = "info"
	configPath = "/nonexistent/scenario.yaml"
	defer func() { configPath = "" }()

	err := runCmd.RunE(runCmd, nil)
	assert.Error(t, err)
}
