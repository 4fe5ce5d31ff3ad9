package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/models"
)

// ErrMissingKey is returned when a required configuration key is absent.
var ErrMissingKey = errors.New("missing required configuration key")

var requiredKeys = []string{
	"scc_configurations_folder",
	"netcdf_out_folder",
	"scc_output_dir",
	"measurement_identifiers",
	"dark_identifiers",
	"maximum_measurement_gap",
	"minimum_measurement_length",
	"maximum_measurement_length",
	"measurements_debug_dir",
}

const testKeyPrefix = "test_"

// Config is the lidarchive configuration file.
type Config struct {
	SystemsFolder   string          `yaml:"scc_configurations_folder"`
	OutputDir       string          `yaml:"netcdf_out_folder"`
	RemoteOutputDir string          `yaml:"scc_output_dir"`
	Parameters      ExtraParameters `yaml:"licel_netcdf_parameters"`

	BasicCredentials   Credentials `yaml:"scc_basic_credentials"`
	WebsiteCredentials Credentials `yaml:"scc_website_credentials"`
	RemoteBaseURL      string      `yaml:"scc_base_url"`
	MaxUploadRetries   int         `yaml:"scc_maximum_upload_retries"`

	MeasurementIdentifiers StringList `yaml:"measurement_identifiers"`
	DarkIdentifiers        StringList `yaml:"dark_identifiers"`

	// Durations in seconds.
	MaxGap        int       `yaml:"maximum_measurement_gap"`
	MinLength     int       `yaml:"minimum_measurement_length"`
	MaxLength     int       `yaml:"maximum_measurement_length"`
	MinDarkLength int       `yaml:"minimum_dark_measurement_length"`
	Alignment     Alignment `yaml:"measurement_alignment_type"`

	DebugDir string              `yaml:"measurements_debug_dir"`
	TestsDir string              `yaml:"tests_dir"`
	Tests    []catalog.LidarTest `yaml:"-"`

	Converter    CommandConfig `yaml:"converter"`
	RemoteClient CommandConfig `yaml:"remote_client"`
	Datalog      DatalogConfig `yaml:"datalog"`
	Server       ServerConfig  `yaml:"server"`
	Logging      LoggingConfig `yaml:"logging"`

	path string
	keys map[string]struct{}
}

// CommandConfig names an external program and its leading arguments.
type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// DatalogConfig locates the task ledger and its exports.
type DatalogConfig struct {
	SwapFile  string `yaml:"swap_file"`
	CSVFile   string `yaml:"csv_file"`
	HistoryDB string `yaml:"history_db"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Credentials is a [username, password] pair.
type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) UnmarshalYAML(value *yaml.Node) error {
	var pair []string
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("line %d: credentials must be a [username, password] list: %w", value.Line, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: credentials must have exactly two items, got %d", value.Line, len(pair))
	}
	c.Username, c.Password = pair[0], pair[1]
	return nil
}

func (c Credentials) MarshalYAML() (interface{}, error) {
	return []string{c.Username, c.Password}, nil
}

// IsZero reports whether no credentials were configured.
func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

// StringList accepts either a single string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
}

// Alignment wraps the alignment code; unknown values fall back to none.
type Alignment struct {
	models.AlignmentType
}

func (a *Alignment) UnmarshalYAML(value *yaml.Node) error {
	a.AlignmentType = models.AlignNone
	var code int
	if err := value.Decode(&code); err == nil {
		a.AlignmentType = models.ParseAlignmentCode(code)
		return nil
	}
	if t, ok := models.ParseAlignmentName(value.Value); ok {
		a.AlignmentType = t
	}
	return nil
}

func (a Alignment) MarshalYAML() (interface{}, error) {
	return int(a.AlignmentType), nil
}

// UnmarshalYAML decodes the known keys and collects test_<name> entries.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: configuration must be a mapping", value.Line)
	}

	c.keys = make(map[string]struct{})
	c.Tests = nil
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		c.keys[key] = struct{}{}
		if !strings.HasPrefix(key, testKeyPrefix) || len(key) <= len(testKeyPrefix) {
			continue
		}
		var ids StringList
		if err := value.Content[i+1].Decode(&ids); err != nil {
			return fmt.Errorf("test %s: %w", key, err)
		}
		c.Tests = append(c.Tests, catalog.LidarTest{
			Name:        strings.TrimPrefix(key, testKeyPrefix),
			Identifiers: ids,
		})
	}
	sort.Slice(c.Tests, func(i, j int) bool { return c.Tests[i].Name < c.Tests[j].Name })
	return nil
}

// DefaultConfig returns the values used for optional keys.
func DefaultConfig() *Config {
	return &Config{
		MaxUploadRetries: 3,
		MinDarkLength:    60,
		Alignment:        Alignment{models.AlignNone},
		TestsDir:         "data/tests",
		Datalog: DatalogConfig{
			SwapFile: "data/lidarchive.datalog",
		},
		Server: ServerConfig{
			ListenAddress: "127.0.0.1:8089",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// LoadConfig reads and validates the configuration at configPath.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.path = abs

	cfg.applyEnvironmentOverrides()
	cfg.resolvePaths(filepath.Dir(abs))
	cfg.Parameters.dropMissingFiles()

	return cfg, nil
}

// Parse decodes and validates a configuration document. Paths are left
// as written.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	var errs []error
	for _, key := range requiredKeys {
		if _, ok := c.keys[key]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingKey, key))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if len(c.MeasurementIdentifiers) == 0 {
		errs = append(errs, errors.New("measurement_identifiers must not be empty"))
	}
	if c.MaxGap < 0 || c.MinLength < 0 || c.MaxLength < 0 {
		errs = append(errs, errors.New("measurement durations must not be negative"))
	}
	if c.MaxLength > 0 && c.MinLength > c.MaxLength {
		errs = append(errs, fmt.Errorf("minimum_measurement_length %d exceeds maximum_measurement_length %d", c.MinLength, c.MaxLength))
	}
	if c.MaxUploadRetries < 1 {
		errs = append(errs, fmt.Errorf("scc_maximum_upload_retries must be at least 1, got %d", c.MaxUploadRetries))
	}
	return errors.Join(errs...)
}

// Path is the absolute path of the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Dir is the directory relative paths were resolved against.
func (c *Config) Dir() string {
	if c.path == "" {
		return ""
	}
	return filepath.Dir(c.path)
}

// SplitParams returns the segmentation parameters for data runs.
func (c *Config) SplitParams() catalog.SplitParams {
	return catalog.SplitParams{
		MaxGap:    seconds(c.MaxGap),
		MinLength: seconds(c.MinLength),
		MaxLength: seconds(c.MaxLength),
		Alignment: c.Alignment.AlignmentType,
	}
}

// MinDarkDuration is the shortest dark run worth pairing.
func (c *Config) MinDarkDuration() time.Duration {
	return seconds(c.MinDarkLength)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *Config) applyEnvironmentOverrides() {
	if dir := os.Getenv("LIDARCHIVE_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
	if dir := os.Getenv("LIDARCHIVE_DEBUG_DIR"); dir != "" {
		c.DebugDir = dir
	}
	if url := os.Getenv("LIDARCHIVE_REMOTE_URL"); url != "" {
		c.RemoteBaseURL = url
	}
	if level := os.Getenv("LIDARCHIVE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *Config) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.SystemsFolder,
		&c.OutputDir,
		&c.RemoteOutputDir,
		&c.DebugDir,
		&c.TestsDir,
		&c.Datalog.SwapFile,
		&c.Datalog.CSVFile,
		&c.Datalog.HistoryDB,
		&c.Logging.File,
	} {
		*p = computePath(configDir, *p)
	}

	// Bare program names are looked up in PATH.
	for _, cmd := range []*CommandConfig{&c.Converter, &c.RemoteClient} {
		if strings.ContainsRune(cmd.Command, filepath.Separator) {
			cmd.Command = computePath(configDir, cmd.Command)
		}
	}

	c.Parameters.resolvePaths(configDir)
}

func computePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// EnsureDirectories creates all necessary directories
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.OutputDir,
		c.RemoteOutputDir,
		c.DebugDir,
		c.TestsDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

const defaultConfigTemplate = `# lidarchive configuration
# Relative paths are resolved against the directory of this file.

# Sample raw files named <system id>[.<name>], one per known system.
scc_configurations_folder: systems
netcdf_out_folder: data/netcdf
scc_output_dir: data/remote
measurements_debug_dir: data/debug
tests_dir: data/tests

# Parameter files for the converter: a single path for every system, or a
# map of system id to a path or a list of {file, version, from, until}.
licel_netcdf_parameters: parameters/default.py

scc_base_url: https://scc.example.org/
scc_basic_credentials: [user, password]
scc_website_credentials: [user, password]
scc_maximum_upload_retries: 3

measurement_identifiers: [Site]
dark_identifiers: [Dark, DARK]

# Durations in seconds.
maximum_measurement_gap: 300
minimum_measurement_length: 1800
maximum_measurement_length: 3600
minimum_dark_measurement_length: 60

# -1 none, 0 sharp hour, 1 sharp hour strict, 2 half hour, 3 half hour strict
measurement_alignment_type: 0

# Instrument tests: test_<name>: [identifiers]
test_telecover: [TC_N, TC_E, TC_S, TC_W]

converter:
  command: lidar-convert
  args: []
remote_client:
  command: scc-client
  args: []

datalog:
  swap_file: data/lidarchive.datalog
  csv_file: data/lidarchive.csv
  history_db: data/history.duckdb

server:
  listen_address: 127.0.0.1:8089

logging:
  level: info
  format: auto
`

// WriteDefault writes a commented starting configuration. Existing files
// are never overwritten.
func WriteDefault(configPath string) error {
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.WriteString(defaultConfigTemplate); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}
