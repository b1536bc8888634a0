package burstfence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/burstfence/core"
)

// Config holds the rate limiting configuration.
// It supports global defaults and named policy overrides.
type Config struct {
	// Defaults are applied to every key whose route has no policy of its own
	Defaults PolicyConfig `yaml:"defaults"`

	// Policies maps a policy name to its bucket parameters. The HTTP limiter
	// uses the request route as the policy name.
	// Example: "/api/login" -> strict policy, "/api/search" -> lenient policy
	Policies map[string]PolicyConfig `yaml:"policies,omitempty" validate:"dive"`

	// KeyExtractor specifies how to identify clients
	// Examples: "ip", "ip-proxy", "header:X-API-Key", "bearer"
	KeyExtractor string `yaml:"key_extractor,omitempty" validate:"required"`

	// CleanupAge is how long an idle bucket is kept. 0 disables cleanup.
	CleanupAge time.Duration `yaml:"cleanup_age,omitempty" validate:"gte=0"`

	// CleanupSchedule is a cron expression for idle bucket cleanup,
	// e.g. "*/10 * * * *" or "@every 10m". Empty disables the schedule.
	CleanupSchedule string `yaml:"cleanup_schedule,omitempty"`

	Stats  StatsConfig  `yaml:"stats"`
	Server ServerConfig `yaml:"server"`
}

// PolicyConfig defines the bucket parameters for one policy.
type PolicyConfig struct {
	// Capacity is the maximum number of tokens (burst size)
	Capacity int64 `yaml:"capacity" validate:"gt=0"`

	// TokensPerPeriod tokens are added every Period
	TokensPerPeriod int64         `yaml:"tokens_per_period" validate:"gt=0"`
	Period          time.Duration `yaml:"period" validate:"gt=0"`

	Sleep SleepConfig `yaml:"sleep,omitempty"`

	// Enabled allows disabling rate limiting for specific routes
	Enabled bool `yaml:"enabled"`
}

// SleepConfig selects how blocked callers wait for tokens.
type SleepConfig struct {
	// Strategy is one of yielding (default), busy, fixed or paced
	Strategy string        `yaml:"strategy,omitempty" validate:"omitempty,oneof=yielding busy fixed paced"`
	Interval time.Duration `yaml:"interval,omitempty" validate:"required_if=Strategy fixed,gte=0"`
	Rate     float64       `yaml:"rate,omitempty" validate:"required_if=Strategy paced,gte=0"`
	Burst    int           `yaml:"burst,omitempty" validate:"required_if=Strategy paced,gte=0"`
}

// StatsConfig selects where per-bucket counters are kept.
type StatsConfig struct {
	Backend   string        `yaml:"backend,omitempty" validate:"omitempty,oneof=memory redis"`
	RedisAddr string        `yaml:"redis_addr,omitempty" validate:"required_if=Backend redis"`
	TTL       time.Duration `yaml:"ttl,omitempty" validate:"gte=0"`
}

// ServerConfig holds listener settings for the bundled server.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Defaults: PolicyConfig{
			Capacity:        100,
			TokensPerPeriod: 10,
			Period:          time.Second,
			Enabled:         true,
		},
		Policies:     make(map[string]PolicyConfig),
		KeyExtractor: "ip",
		CleanupAge:   time.Hour,
		Stats:        StatsConfig{Backend: "memory"},
		Server:       ServerConfig{Addr: ":8080"},
	}
}

// LoadConfigFromFile loads configuration from a YAML file. Fields absent
// from the file keep the values from NewConfig.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML document.
func ParseConfig(data []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}
	if config.Policies == nil {
		config.Policies = make(map[string]PolicyConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := ParseKeyExtractorConfig(c.KeyExtractor); err != nil {
		return err
	}
	if c.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			return fmt.Errorf("%w: invalid cleanup schedule %q: %v", ErrInvalidConfig, c.CleanupSchedule, err)
		}
	}
	return nil
}

// Validate checks if a PolicyConfig is valid.
func (p *PolicyConfig) Validate() error {
	if err := validateStruct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// GetPolicy returns the policy registered under name, or the defaults if
// there is none.
func (c *Config) GetPolicy(name string) PolicyConfig {
	if policy, exists := c.Policies[name]; exists {
		return policy
	}
	return c.Defaults
}

// LookupPolicy returns the named policy. The empty name selects the
// defaults; any other unknown name is an error.
func (c *Config) LookupPolicy(name string) (PolicyConfig, error) {
	if name == "" {
		return c.Defaults, nil
	}
	policy, exists := c.Policies[name]
	if !exists {
		return PolicyConfig{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
	return policy, nil
}

// SetPolicy sets the policy for a name.
func (c *Config) SetPolicy(name string, policy PolicyConfig) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if c.Policies == nil {
		c.Policies = make(map[string]PolicyConfig)
	}
	c.Policies[name] = policy
	return nil
}

// Clone returns a copy that shares no maps with c.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Policies = make(map[string]PolicyConfig, len(c.Policies))
	for name, policy := range c.Policies {
		clone.Policies[name] = policy
	}
	return &clone
}

// Options converts the policy to bucket options. clock and observer may be
// nil.
func (p PolicyConfig) Options(clock core.Clock, observer core.Observer) []Option {
	opts := []Option{
		WithCapacity(p.Capacity),
		WithFixedIntervalRefillStrategy(p.TokensPerPeriod, p.Period),
	}

	switch p.Sleep.Strategy {
	case "busy":
		opts = append(opts, WithBusySleepStrategy())
	case "fixed":
		opts = append(opts, WithFixedSleepStrategy(p.Sleep.Interval))
	case "paced":
		opts = append(opts, WithPacedSleepStrategy(p.Sleep.Rate, p.Sleep.Burst))
	default:
		opts = append(opts, WithYieldingSleepStrategy())
	}

	if clock != nil {
		opts = append(opts, WithClock(clock))
	}
	if observer != nil {
		opts = append(opts, WithObserver(observer))
	}
	return opts
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// FieldError describes one invalid configuration field.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	d, err := json.Marshal(fe)
	if err != nil {
		return err.Error()
	}
	return string(d)
}

func validateStruct(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return err
	}

	fields := make(FieldErrors, 0, len(verrors))
	for _, verror := range verrors {
		field := verror.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		fields = append(fields, FieldError{Field: field, Err: verror.Translate(translator)})
	}
	return fields
}
