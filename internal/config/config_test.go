package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MYWHOOSH_EMAIL", "rider@example.com")
	t.Setenv("MYWHOOSH_PASSWORD", "whoosh-secret")
	t.Setenv("GARMIN_USERNAME", "rider")
	t.Setenv("GARMIN_PASSWORD", "garmin-secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "rider@example.com", cfg.MyWhooshEmail)
	require.Equal(t, "whoosh-secret", cfg.MyWhooshPassword)
	require.Equal(t, "rider", cfg.GarminUsername)
	require.Equal(t, "garmin-secret", cfg.GarminPassword)
	require.Equal(t, "DEBUG", cfg.LogLevel)
	require.True(t, cfg.Debug())
}

func TestLoadReportsEveryMissingKey(t *testing.T) {
	t.Setenv("MYWHOOSH_EMAIL", "rider@example.com")
	t.Setenv("MYWHOOSH_PASSWORD", "")
	t.Setenv("GARMIN_USERNAME", "")
	t.Setenv("GARMIN_PASSWORD", "garmin-secret")

	_, err := Load("")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrConfig))
	require.Contains(t, err.Error(), "MYWHOOSH_PASSWORD")
	require.Contains(t, err.Error(), "GARMIN_USERNAME")
	require.NotContains(t, err.Error(), "MYWHOOSH_EMAIL,")
}

func TestLoadReadsDotenvFile(t *testing.T) {
	t.Setenv("MYWHOOSH_EMAIL", "")
	t.Setenv("MYWHOOSH_PASSWORD", "")
	t.Setenv("GARMIN_USERNAME", "")
	t.Setenv("GARMIN_PASSWORD", "")

	envFile := filepath.Join(t.TempDir(), ".env")
	contents := "MYWHOOSH_EMAIL=file@example.com\n" +
		"MYWHOOSH_PASSWORD=file-whoosh\n" +
		"GARMIN_USERNAME=file-rider\n" +
		"GARMIN_PASSWORD=file-garmin\n"
	require.NoError(t, os.WriteFile(envFile, []byte(contents), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	require.Equal(t, "file@example.com", cfg.MyWhooshEmail)
	require.Equal(t, "INFO", cfg.LogLevel)
	require.False(t, cfg.Debug())
}

func TestLoadEnvironmentOverridesDotenv(t *testing.T) {
	t.Setenv("MYWHOOSH_EMAIL", "env@example.com")
	t.Setenv("MYWHOOSH_PASSWORD", "env-whoosh")
	t.Setenv("GARMIN_USERNAME", "env-rider")
	t.Setenv("GARMIN_PASSWORD", "env-garmin")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MYWHOOSH_EMAIL=file@example.com\n"), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	require.Equal(t, "env@example.com", cfg.MyWhooshEmail)
}

func TestLoadToleratesMissingDotenv(t *testing.T) {
	t.Setenv("MYWHOOSH_EMAIL", "rider@example.com")
	t.Setenv("MYWHOOSH_PASSWORD", "whoosh-secret")
	t.Setenv("GARMIN_USERNAME", "rider")
	t.Setenv("GARMIN_PASSWORD", "garmin-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	require.Equal(t, "rider@example.com", cfg.MyWhooshEmail)
}
