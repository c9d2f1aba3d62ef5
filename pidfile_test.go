package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePIDFileCreatesFileWithCurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)
	require.NotNil(t, cleanup)

	defer cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestWritePIDFileFlockPreventsSecondAcquisition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.pid")

	cleanup1, err := writePIDFile(path)
	require.NoError(t, err)

	defer cleanup1()

	cleanup2, err := writePIDFile(path)
	require.Error(t, err)
	assert.Nil(t, cleanup2)
	assert.Contains(t, err.Error(), "already running")
}

func TestWritePIDFileCleanupRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	cleanup()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReadPIDFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	defer cleanup()

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestSendSIGHUPReportsMissingPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.pid")

	err := sendSIGHUP(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no running daemon found")
}
