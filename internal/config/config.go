// Package config defines the runtime settings shared by the lambda and api
// entry points. Values come from flags (populated from the environment by the
// caller) and an optional YAML profile.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"claude-invocation/internal/shared"

	"gopkg.in/yaml.v3"
)

// SystemPlacement selects what goes into the "system" field of the model
// request.
type SystemPlacement string

const (
	// PlacementPersona sends the persona as system and the source code as an
	// extra user content block.
	PlacementPersona SystemPlacement = "persona"
	// PlacementSource sends the raw source code as system.
	PlacementSource SystemPlacement = "source"
)

// ParseMode selects how request bodies are decoded.
type ParseMode string

const (
	// ParseAuto dispatches on the content-type header.
	ParseAuto ParseMode = "auto"
	// ParseJSON always decodes the body as JSON.
	ParseJSON ParseMode = "json"
)

type Config struct {
	Region             string          `yaml:"region"`
	ModelID            string          `yaml:"model_id"`
	AllowModelOverride bool            `yaml:"allow_model_override"`
	AllowedModels      []string        `yaml:"allowed_models"`
	SystemPlacement    SystemPlacement `yaml:"system_placement"`
	ParseMode          ParseMode       `yaml:"parse_mode"`
	Persona            string          `yaml:"persona"`

	ConfigFile    string
	Debug         bool
	Port          int
	MetricsAPIKey string
	RedisAddr     string
	CacheTTL      time.Duration
	DSN           string
}

// profile mirrors the YAML file. Pointers tell unset keys apart from zero
// values.
type profile struct {
	Region             *string  `yaml:"region"`
	ModelID            *string  `yaml:"model_id"`
	AllowModelOverride *bool    `yaml:"allow_model_override"`
	AllowedModels      []string `yaml:"allowed_models"`
	SystemPlacement    *string  `yaml:"system_placement"`
	ParseMode          *string  `yaml:"parse_mode"`
	Persona            *string  `yaml:"persona"`
}

// Register defines every flag on fs and returns the Config they write into.
// Callers parse fs (after eflag.SetFlagsFromEnvironment) and then call
// Finalize.
func Register(fs *flag.FlagSet) *Config {
	cfg := &Config{}
	fs.StringVar(&cfg.ConfigFile, "config", "", "Path to a YAML pipeline profile")
	fs.StringVar(&cfg.Region, "region", shared.DefaultRegion, "Bedrock region")
	fs.StringVar(&cfg.ModelID, "model-id", shared.DefaultModelID, "Default Bedrock model id")
	fs.BoolVar(&cfg.AllowModelOverride, "allow-model-override", false, "Honour the per-request model field")
	fs.Func("allowed-models", "Comma separated model ids a request may override to, empty allows any", func(v string) error {
		cfg.AllowedModels = splitList(v)
		return nil
	})
	fs.StringVar((*string)(&cfg.SystemPlacement), "system-placement", string(PlacementPersona), "System field contents: persona or source")
	fs.StringVar((*string)(&cfg.ParseMode), "parse-mode", string(ParseAuto), "Body parsing: auto or json")
	fs.StringVar(&cfg.Persona, "persona", shared.DefaultPersona, "System instruction used with persona placement")
	fs.BoolVar(&cfg.Debug, "debug", false, "Debug enabled")
	fs.IntVar(&cfg.Port, "port", 80, "HTTP port for the api server")
	fs.StringVar(&cfg.MetricsAPIKey, "metrics-api-key", "", "Metrics api key")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "Redis host:port for the result cache")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", 0, "Result cache TTL, 0 disables the cache")
	fs.StringVar(&cfg.DSN, "dsn", "", "MySQL DSN for usage records")
	return cfg
}

// Finalize applies the YAML profile, if any, and validates the result.
// Flags set explicitly take precedence over the profile.
func Finalize(cfg *Config, fs *flag.FlagSet) error {
	if cfg.ConfigFile != "" {
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) {
			set[f.Name] = true
		})
		if err := applyProfile(cfg, cfg.ConfigFile, set); err != nil {
			return err
		}
	}
	return Validate(cfg)
}

func applyProfile(cfg *Config, path string, set map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if p.Region != nil && !set["region"] {
		cfg.Region = *p.Region
	}
	if p.ModelID != nil && !set["model-id"] {
		cfg.ModelID = *p.ModelID
	}
	if p.AllowModelOverride != nil && !set["allow-model-override"] {
		cfg.AllowModelOverride = *p.AllowModelOverride
	}
	if p.AllowedModels != nil && !set["allowed-models"] {
		cfg.AllowedModels = p.AllowedModels
	}
	if p.SystemPlacement != nil && !set["system-placement"] {
		cfg.SystemPlacement = SystemPlacement(*p.SystemPlacement)
	}
	if p.ParseMode != nil && !set["parse-mode"] {
		cfg.ParseMode = ParseMode(*p.ParseMode)
	}
	if p.Persona != nil && !set["persona"] {
		cfg.Persona = *p.Persona
	}
	return nil
}

// Validate reports every invalid field at once.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if cfg.ModelID == "" {
		errs = append(errs, errors.New("model id is required"))
	}
	for _, m := range cfg.AllowedModels {
		if m == "" || len(m) > shared.MaxModelIDLength {
			errs = append(errs, fmt.Errorf("allowed model %q must be 1 to %d characters", m, shared.MaxModelIDLength))
		}
	}
	switch cfg.SystemPlacement {
	case PlacementPersona:
		if cfg.Persona == "" {
			errs = append(errs, errors.New("persona is required with persona placement"))
		}
	case PlacementSource:
	default:
		errs = append(errs, fmt.Errorf("unknown system placement %q", cfg.SystemPlacement))
	}
	switch cfg.ParseMode {
	case ParseAuto, ParseJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown parse mode %q", cfg.ParseMode))
	}
	if cfg.CacheTTL < 0 {
		errs = append(errs, errors.New("cache ttl cannot be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
