// Package config loads coderewrite settings. Precedence, lowest to highest:
//
//	defaults < global file < project file < environment < overrides
//
// The global file is $XDG_CONFIG_HOME/coderewrite/config.toml (see os.UserConfigDir). The project file is .coderewrite.toml, or .coderewrite.yaml /
// .coderewrite.yml, in the project directory; if more than one exists, the TOML file wins. Missing files are skipped.
//
// Environment variables:
//   - CODEREWRITE_MODEL, CODEREWRITE_BASE_URL, CODEREWRITE_API_KEY_ENV
//   - CODEREWRITE_TIMEOUT (Go duration or integer seconds)
//   - CODEREWRITE_MAX_TOKENS, CODEREWRITE_TEMPERATURE
//   - CODEREWRITE_STRUCTURAL (1/true/yes/on or 0/false/no/off)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/codalotl/coderewrite/internal/q/health"
)

// Config holds all settings.
type Config struct {
	Model     string
	APIKeyEnv string // name of the env var holding the API key
	BaseURL   string

	MaxTokens     int
	Temperature   float64
	StopSequences []string

	QueryTimeout time.Duration
	PollInterval time.Duration
	Workers      int

	// PromptTokenLimit bounds prompt size. Negative disables the check.
	PromptTokenLimit int

	// Structural enables the structural diff strategy where a grammar exists.
	Structural bool

	// Formatters maps a language name (ex: "python", "ts") to a formatter command line that reads stdin and writes stdout. Languages without an entry use the
	// built-in formatter, if any.
	Formatters map[string][]string
}

const (
	defaultModel            = "gpt-4.1-mini"
	defaultAPIKeyEnv        = "OPENAI_API_KEY"
	defaultMaxTokens        = 4096
	defaultTemperature      = 0.2
	defaultQueryTimeout     = 60 * time.Second
	defaultPollInterval     = 100 * time.Millisecond
	defaultWorkers          = 2
	defaultPromptTokenLimit = 16_000
)

// Default returns the default configuration.
func Default() Config {
	return Config{
		Model:            defaultModel,
		APIKeyEnv:        defaultAPIKeyEnv,
		MaxTokens:        defaultMaxTokens,
		Temperature:      defaultTemperature,
		QueryTimeout:     defaultQueryTimeout,
		PollInterval:     defaultPollInterval,
		Workers:          defaultWorkers,
		PromptTokenLimit: defaultPromptTokenLimit,
		Structural:       true,
	}
}

// Overrides are the highest-precedence settings, typically from CLI flags. Nil fields are not overridden.
type Overrides struct {
	Model        *string
	QueryTimeout *time.Duration
	Structural   *bool
	MaxTokens    *int
}

// LoadOptions configures Load. All fields are optional.
type LoadOptions struct {
	// ProjectDir holds the project file. Empty skips it.
	ProjectDir string

	// GlobalConfigPath overrides the global file's location.
	GlobalConfigPath string

	// Env is a KEY=VALUE list; nil means os.Environ().
	Env []string

	Overrides *Overrides
}

// Project file names, in order of preference.
var projectFiles = []string{".coderewrite.toml", ".coderewrite.yaml", ".coderewrite.yml"}

// Load loads the configuration. Malformed files or env values are health.KindConfig errors.
func Load(opts LoadOptions) (Config, error) {
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	cfg := Default()

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		dir, err := os.UserConfigDir()
		if err == nil {
			globalPath = filepath.Join(dir, "coderewrite", "config.toml")
		}
	}
	if globalPath != "" {
		if err := mergeFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	if opts.ProjectDir != "" {
		for _, name := range projectFiles {
			path := filepath.Join(opts.ProjectDir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := mergeFile(&cfg, path); err != nil {
				return Config{}, err
			}
			break
		}
	}

	if err := applyEnv(&cfg, opts.Env); err != nil {
		return Config{}, err
	}
	applyOverrides(&cfg, opts.Overrides)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Model == "":
		return health.NewKindErr(health.KindConfig, "model is empty")
	case c.Temperature < 0 || c.Temperature > 2:
		return health.NewKindErr(health.KindConfig, "temperature must be between 0 and 2", "temperature", c.Temperature)
	case c.MaxTokens < 0:
		return health.NewKindErr(health.KindConfig, "max_tokens must be non-negative", "max_tokens", c.MaxTokens)
	case c.QueryTimeout <= 0:
		return health.NewKindErr(health.KindConfig, "timeout must be positive", "timeout", c.QueryTimeout)
	case c.PollInterval <= 0:
		return health.NewKindErr(health.KindConfig, "poll_interval must be positive", "poll_interval", c.PollInterval)
	case c.Workers < 1:
		return health.NewKindErr(health.KindConfig, "workers must be at least 1", "workers", c.Workers)
	}
	for lang, argv := range c.Formatters {
		if len(argv) == 0 || argv[0] == "" {
			return health.NewKindErr(health.KindConfig, "formatter command is empty", "lang", lang)
		}
	}
	return nil
}

// fileConfig is the on-disk shape. Pointers distinguish "absent" from zero.
type fileConfig struct {
	Model            *string  `toml:"model" yaml:"model"`
	APIKeyEnv        *string  `toml:"api_key_env" yaml:"api_key_env"`
	BaseURL          *string  `toml:"base_url" yaml:"base_url"`
	MaxTokens        *int     `toml:"max_tokens" yaml:"max_tokens"`
	Temperature      *float64 `toml:"temperature" yaml:"temperature"`
	StopSequences    []string `toml:"stop_sequences" yaml:"stop_sequences"`
	Timeout          *string  `toml:"timeout" yaml:"timeout"`
	PollInterval     *string  `toml:"poll_interval" yaml:"poll_interval"`
	Workers          *int     `toml:"workers" yaml:"workers"`
	PromptTokenLimit *int     `toml:"prompt_token_limit" yaml:"prompt_token_limit"`
	Structural       *bool    `toml:"structural" yaml:"structural"`

	Formatters map[string][]string `toml:"formatters" yaml:"formatters"`
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return health.WrapKind(health.KindConfig, "read config file", err, "path", path)
	}

	var file fileConfig
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		_, err = toml.Decode(string(data), &file)
	}
	if err != nil {
		return health.WrapKind(health.KindConfig, "invalid config file", err, "path", path)
	}

	if file.Model != nil && *file.Model != "" {
		cfg.Model = *file.Model
	}
	if file.APIKeyEnv != nil && *file.APIKeyEnv != "" {
		cfg.APIKeyEnv = *file.APIKeyEnv
	}
	if file.BaseURL != nil {
		cfg.BaseURL = *file.BaseURL
	}
	if file.MaxTokens != nil {
		cfg.MaxTokens = *file.MaxTokens
	}
	if file.Temperature != nil {
		cfg.Temperature = *file.Temperature
	}
	if file.StopSequences != nil {
		cfg.StopSequences = file.StopSequences
	}
	if file.Timeout != nil && *file.Timeout != "" {
		d, err := parseDuration(*file.Timeout)
		if err != nil {
			return health.WrapKind(health.KindConfig, "invalid timeout", err, "path", path)
		}
		cfg.QueryTimeout = d
	}
	if file.PollInterval != nil && *file.PollInterval != "" {
		d, err := parseDuration(*file.PollInterval)
		if err != nil {
			return health.WrapKind(health.KindConfig, "invalid poll_interval", err, "path", path)
		}
		cfg.PollInterval = d
	}
	if file.Workers != nil {
		cfg.Workers = *file.Workers
	}
	if file.PromptTokenLimit != nil {
		cfg.PromptTokenLimit = *file.PromptTokenLimit
	}
	if file.Structural != nil {
		cfg.Structural = *file.Structural
	}
	for lang, argv := range file.Formatters {
		if cfg.Formatters == nil {
			cfg.Formatters = make(map[string][]string)
		}
		cfg.Formatters[lang] = argv
	}
	return nil
}

// parseDuration accepts Go durations ("30s") and integer seconds ("30").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(n) * time.Second, nil
}

const (
	envModel       = "CODEREWRITE_MODEL"
	envBaseURL     = "CODEREWRITE_BASE_URL"
	envAPIKeyEnv   = "CODEREWRITE_API_KEY_ENV"
	envTimeout     = "CODEREWRITE_TIMEOUT"
	envMaxTokens   = "CODEREWRITE_MAX_TOKENS"
	envTemperature = "CODEREWRITE_TEMPERATURE"
	envStructural  = "CODEREWRITE_STRUCTURAL"
)

func applyEnv(cfg *Config, env []string) error {
	vals := make(map[string]string)
	for _, e := range env {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			continue
		}
		vals[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if v := vals[envModel]; v != "" {
		cfg.Model = v
	}
	if v := vals[envBaseURL]; v != "" {
		cfg.BaseURL = v
	}
	if v := vals[envAPIKeyEnv]; v != "" {
		cfg.APIKeyEnv = v
	}
	if v := vals[envTimeout]; v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return health.WrapKind(health.KindConfig, envTimeout+" must be a duration", err)
		}
		cfg.QueryTimeout = d
	}
	if v := vals[envMaxTokens]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return health.WrapKind(health.KindConfig, envMaxTokens+" must be an integer", err)
		}
		cfg.MaxTokens = n
	}
	if v := vals[envTemperature]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return health.WrapKind(health.KindConfig, envTemperature+" must be a number", err)
		}
		cfg.Temperature = f
	}
	if v := vals[envStructural]; v != "" {
		b, err := parseBool(v)
		if err != nil {
			return health.WrapKind(health.KindConfig, envStructural+" must be 1/true/yes/on or 0/false/no/off", err)
		}
		cfg.Structural = b
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o == nil {
		return
	}
	if o.Model != nil && *o.Model != "" {
		cfg.Model = *o.Model
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.Structural != nil {
		cfg.Structural = *o.Structural
	}
	if o.MaxTokens != nil {
		cfg.MaxTokens = *o.MaxTokens
	}
}
