package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandDefaults(t *testing.T) {
	opts := &options{}
	newRootCommand(opts)

	require.Equal(t, 1, opts.limit)
	require.True(t, opts.checkDuplicates)
	require.Equal(t, ".env", opts.envFile)
	require.Zero(t, opts.every)
	require.Equal(t, ":9184", opts.metricsAddr)
}

func TestRunMissingConfig(t *testing.T) {
	for _, key := range []string{"MYWHOOSH_EMAIL", "MYWHOOSH_PASSWORD", "GARMIN_USERNAME", "GARMIN_PASSWORD"} {
		t.Setenv(key, "")
	}

	code := run([]string{"--env-file", "does-not-exist.env"})
	require.Equal(t, exitConfig, code)
}

func TestRunRejectsBadLimit(t *testing.T) {
	code := run([]string{"--limit", "0"})
	require.Equal(t, exitFailure, code)
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	code := run([]string{"--bogus"})
	require.Equal(t, exitFailure, code)
}
