// Package config loads the per-workspace .tagapply/config.yaml file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the engine's state directory inside every workspace.
	Dir = ".tagapply"

	configFile = "config.yaml"
)

// ErrInvalid wraps validation problems.
var ErrInvalid = errors.New("invalid configuration")

const defaultConfigYAML = `# tagapply workspace configuration
version: 1

commit:
  # Prefix of every commit message written by tagapply.
  prefix: "[tagapply]"
  # Fold files edited outside tagapply into the commit.
  amend_drift: true

dependencies:
  # auto, pnpm or npm. auto tries pnpm first when it is installed.
  manager: auto

sql:
  # SQLite database execute-sql directives run against. Empty disables SQL.
  dsn: .tagapply/app.db
  write_migrations: false
  migrations_dir: migrations

queries:
  concurrency: 4
  git_log_count: 5

logging:
  level: info
  # Log file path; stderr when empty.
  file: ""

history:
  path: .tagapply/history.db
`

// Commit configures commit messages.
type Commit struct {
	Prefix     string `yaml:"prefix"`
	AmendDrift bool   `yaml:"amend_drift"`
}

// Dependencies configures the package manager.
type Dependencies struct {
	Manager string `yaml:"manager"`
}

// SQL configures execute-sql handling.
type SQL struct {
	DSN             string `yaml:"dsn"`
	WriteMigrations bool   `yaml:"write_migrations"`
	MigrationsDir   string `yaml:"migrations_dir"`
}

// Queries configures read-only directives.
type Queries struct {
	Concurrency int `yaml:"concurrency"`
	GitLogCount int `yaml:"git_log_count"`
}

// Logging configures the zap logger.
type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// History configures the message store.
type History struct {
	Path string `yaml:"path"`
}

// Config models .tagapply/config.yaml.
type Config struct {
	Version      int          `yaml:"version"`
	Commit       Commit       `yaml:"commit"`
	Dependencies Dependencies `yaml:"dependencies"`
	SQL          SQL          `yaml:"sql"`
	Queries      Queries      `yaml:"queries"`
	Logging      Logging      `yaml:"logging"`
	History      History      `yaml:"history"`

	// Root is the workspace the file was loaded from.
	Root string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		panic(fmt.Sprintf("config: default YAML is invalid: %v", err))
	}
	return &cfg
}

// Path returns the config file location for a workspace.
func Path(root string) string {
	return filepath.Join(root, Dir, configFile)
}

// Load reads the workspace configuration, falling back to defaults for a
// missing file or missing keys.
func Load(root string) (*Config, error) {
	cfg := Default()
	cfg.Root = root

	path := Path(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init creates the state directory with a default config and a .gitignore
// that keeps engine state out of commits. Existing files are left alone.
func Init(root string) error {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	files := map[string]string{
		configFile:   defaultConfigYAML,
		".gitignore": "*\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("config: write %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if strings.TrimSpace(c.Commit.Prefix) == "" {
		c.Commit.Prefix = def.Commit.Prefix
	}
	if c.Dependencies.Manager == "" {
		c.Dependencies.Manager = def.Dependencies.Manager
	}
	if c.SQL.MigrationsDir == "" {
		c.SQL.MigrationsDir = def.SQL.MigrationsDir
	}
	if c.Queries.Concurrency <= 0 {
		c.Queries.Concurrency = def.Queries.Concurrency
	}
	if c.Queries.GitLogCount <= 0 {
		c.Queries.GitLogCount = def.Queries.GitLogCount
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.History.Path == "" {
		c.History.Path = def.History.Path
	}
}

func (c *Config) validate() error {
	var problems []string
	if c.Version != 1 {
		problems = append(problems, fmt.Sprintf("unsupported version %d", c.Version))
	}
	switch c.Dependencies.Manager {
	case "auto", "pnpm", "npm":
	default:
		problems = append(problems, fmt.Sprintf("dependencies.manager must be auto, pnpm or npm, got %q", c.Dependencies.Manager))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	if filepath.IsAbs(c.SQL.MigrationsDir) {
		problems = append(problems, "sql.migrations_dir must be relative to the workspace")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Abs resolves a workspace-relative setting against Root. Absolute values
// are returned unchanged.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}
