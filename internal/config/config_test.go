package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidar-tools/lidarchive/internal/models"
)

const minimalConfig = `
scc_configurations_folder: systems
netcdf_out_folder: out
scc_output_dir: /var/remote
measurements_debug_dir: debug
measurement_identifiers: Magurele
dark_identifiers: [Dark, DARK]
maximum_measurement_gap: 300
minimum_measurement_length: 1800
maximum_measurement_length: 3600
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "lidarchive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig+`
measurement_alignment_type: 2
scc_basic_credentials: [user, secret]
test_telecover: [TC_N, TC_S]
test_dark: DARK_TEST
tests_dir: /srv/tests
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "systems"), cfg.SystemsFolder)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.OutputDir)
	assert.Equal(t, "/var/remote", cfg.RemoteOutputDir)
	assert.Equal(t, "/srv/tests", cfg.TestsDir)
	assert.Equal(t, filepath.Join(dir, "data", "lidarchive.datalog"), cfg.Datalog.SwapFile)
	assert.Equal(t, "", cfg.Datalog.CSVFile)

	assert.Equal(t, StringList{"Magurele"}, cfg.MeasurementIdentifiers)
	assert.Equal(t, StringList{"Dark", "DARK"}, cfg.DarkIdentifiers)
	assert.Equal(t, Credentials{Username: "user", Password: "secret"}, cfg.BasicCredentials)
	assert.True(t, cfg.WebsiteCredentials.IsZero())

	assert.Equal(t, 60, cfg.MinDarkLength)
	assert.Equal(t, 3, cfg.MaxUploadRetries)
	assert.Equal(t, models.AlignHalfHour, cfg.Alignment.AlignmentType)

	require.Len(t, cfg.Tests, 2)
	assert.Equal(t, "dark", cfg.Tests[0].Name)
	assert.Equal(t, []string{"DARK_TEST"}, cfg.Tests[0].Identifiers)
	assert.Equal(t, "telecover", cfg.Tests[1].Name)
	assert.Equal(t, []string{"TC_N", "TC_S"}, cfg.Tests[1].Identifiers)

	p := cfg.SplitParams()
	assert.Equal(t, 5*time.Minute, p.MaxGap)
	assert.Equal(t, 30*time.Minute, p.MinLength)
	assert.Equal(t, time.Hour, p.MaxLength)
	assert.Equal(t, models.AlignHalfHour, p.Alignment)

	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, dir, cfg.Dir())
}

func TestLoadConfig_MissingKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
scc_configurations_folder: systems
measurement_identifiers: Magurele
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingKey))
	assert.Contains(t, err.Error(), "dark_identifiers")
	assert.Contains(t, err.Error(), "measurements_debug_dir")
}

func TestLoadConfig_Alignment(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  models.AlignmentType
	}{
		{"missing", "", models.AlignNone},
		{"sharp hour", "measurement_alignment_type: 0", models.AlignSharpHour},
		{"strict half hour", "measurement_alignment_type: 3", models.AlignHalfHourStrict},
		{"out of range", "measurement_alignment_type: 9", models.AlignNone},
		{"by name", "measurement_alignment_type: sharp_hour_strict", models.AlignSharpHourStrict},
		{"garbage", "measurement_alignment_type: hourly", models.AlignNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalConfig + tt.value + "\n"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Alignment.AlignmentType)
		})
	}
}

func TestParse_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"identifiers as mapping", strings.Replace(minimalConfig, "identifiers: Magurele", "identifiers: {a: b}", 1)},
		{"short credentials", minimalConfig + "scc_basic_credentials: [user]\n"},
		{"zero retries", minimalConfig + "scc_maximum_upload_retries: 0\n"},
		{"min above max", strings.Replace(minimalConfig, "length: 1800", "length: 7200", 1)},
		{"not a mapping", "- a\n- b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig)

	t.Setenv("LIDARCHIVE_OUTPUT_DIR", "override/out")
	t.Setenv("LIDARCHIVE_DEBUG_DIR", "/tmp/debug")
	t.Setenv("LIDARCHIVE_REMOTE_URL", "https://remote.example/")
	t.Setenv("LIDARCHIVE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "override", "out"), cfg.OutputDir)
	assert.Equal(t, "/tmp/debug", cfg.DebugDir)
	assert.Equal(t, "https://remote.example/", cfg.RemoteBaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_CommandPaths(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalConfig+`
converter:
  command: bin/convert
  args: [--quiet]
remote_client:
  command: scc-client
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bin", "convert"), cfg.Converter.Command)
	assert.Equal(t, []string{"--quiet"}, cfg.Converter.Args)
	assert.Equal(t, "scc-client", cfg.RemoteClient.Command)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(writeConfig(t, dir, strings.Replace(minimalConfig, "/var/remote", "remote", 1)))
	require.NoError(t, err)

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{"out", "remote", "debug", filepath.Join("data", "tests")} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, d)
		assert.True(t, info.IsDir(), d)
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "lidarchive.yaml")

	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path), "existing files are kept")

	// The parameter file in the template does not exist yet.
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Parameters.Entries())
	assert.Len(t, cfg.Parameters.Problems(), 1)
	assert.Equal(t, models.AlignSharpHour, cfg.Alignment.AlignmentType)
	require.Len(t, cfg.Tests, 1)
	assert.Equal(t, "telecover", cfg.Tests[0].Name)
	assert.Equal(t, filepath.Join(dir, "conf", "data", "history.duckdb"), cfg.Datalog.HistoryDB)
}
