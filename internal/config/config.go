// Package config loads and validates bootfit run configurations.
package config

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/fit"
	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTolerance  = 1e-8
	DefaultIterations = 200
	DefaultMaxRetries = bootstrap.DefaultMaxRetries
)

// Config describes one fit and bootstrap run.
type Config struct {
	Data        string          `yaml:"data" json:"data" validate:"required"`
	Model       string          `yaml:"model" json:"model" validate:"required,profilefn"`
	Statistic   string          `yaml:"statistic" json:"statistic" validate:"statistic"`
	ModelErrors bool            `yaml:"model_errors" json:"model_errors"`
	Tolerance   float64         `yaml:"tolerance" json:"tolerance" validate:"gt=0"`
	MaxThreads  int             `yaml:"max_threads" json:"max_threads" validate:"gte=0"`
	Backends    []string        `yaml:"backends" json:"backends,omitempty" validate:"omitempty,dive,oneof=levmar nmsimplex de mayfly"`
	Parameters  []Parameter     `yaml:"parameters" json:"parameters" validate:"required,min=1,dive"`
	Bootstrap   BootstrapConfig `yaml:"bootstrap" json:"bootstrap"`

	// Dir resolves a relative Data path; set by Load to the config file's directory
	Dir string `yaml:"-" json:"-"`
}

// Parameter is the initial value and limits of one model parameter.
type Parameter struct {
	Name   string    `yaml:"name" json:"name" validate:"required"`
	Value  float64   `yaml:"value" json:"value"`
	Limits []float64 `yaml:"limits,flow" json:"limits,omitempty" validate:"omitempty,len=2"`
	Fixed  bool      `yaml:"fixed" json:"fixed"`
}

// BootstrapConfig holds the resampling settings.
type BootstrapConfig struct {
	Iterations    int    `yaml:"iterations" json:"iterations" validate:"gte=0"`
	Seed          int64  `yaml:"seed" json:"seed"`
	Workers       int    `yaml:"workers" json:"workers" validate:"gte=0"`
	FailurePolicy string `yaml:"failure_policy" json:"failure_policy" validate:"omitempty,oneof=keep exclude retry"`
	MaxRetries    int    `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	Output        string `yaml:"output" json:"output"`
}

// ValidationError reports the first invalid field of a configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// ErrInvalid matches every *ValidationError via errors.Is.
var ErrInvalid = errors.New("invalid config")

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("profilefn", func(fl validator.FieldLevel) bool {
		_, err := fit.LookupFunction(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("statistic", func(fl validator.FieldLevel) bool {
		_, err := opt.ParseStatistic(fl.Field().String())
		return err == nil
	})
}

// DefaultConfig returns the values a config file overlays.
func DefaultConfig() *Config {
	return &Config{
		Model:     "line",
		Statistic: opt.ChiSquare.String(),
		Tolerance: DefaultTolerance,
		Bootstrap: BootstrapConfig{
			Iterations:    DefaultIterations,
			Workers:       1,
			FailurePolicy: bootstrap.KeepFailed.String(),
			MaxRetries:    DefaultMaxRetries,
		},
	}
}

// Load reads a YAML config over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags, then the parameters against the model function.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Namespace(), Message: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return err
	}

	fn, err := fit.LookupFunction(c.Model)
	if err != nil {
		return &ValidationError{Field: "Config.Model", Message: err.Error()}
	}
	if len(c.Parameters) != len(fn.Params) {
		return &ValidationError{
			Field:   "Config.Parameters",
			Message: fmt.Sprintf("model %s has %d parameters, config lists %d", fn.Name, len(fn.Params), len(c.Parameters)),
		}
	}
	for i, p := range c.Parameters {
		field := fmt.Sprintf("Config.Parameters[%d]", i)
		if p.Name != fn.Params[i] {
			return &ValidationError{Field: field, Message: fmt.Sprintf("expected parameter %q, got %q", fn.Params[i], p.Name)}
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return &ValidationError{Field: field, Message: "value must be finite"}
		}
		if len(p.Limits) == 2 && p.Limits[0] > p.Limits[1] {
			return &ValidationError{Field: field, Message: fmt.Sprintf("lower limit %g exceeds upper limit %g", p.Limits[0], p.Limits[1])}
		}
	}
	return nil
}

// DataPath returns the profile path, resolved against Dir when relative.
func (c *Config) DataPath() string {
	if c.Dir == "" || filepath.IsAbs(c.Data) {
		return c.Data
	}
	return filepath.Join(c.Dir, c.Data)
}

// InitialParams returns the starting parameter vector.
func (c *Config) InitialParams() []float64 {
	params := make([]float64, len(c.Parameters))
	for i, p := range c.Parameters {
		params[i] = p.Value
	}
	return params
}

// Limits builds the limits table, or nil when no parameter is fixed or bounded.
func (c *Config) Limits() opt.Limits {
	bounded := false
	limits := make(opt.Limits, len(c.Parameters))
	for i, p := range c.Parameters {
		switch {
		case p.Fixed:
			limits[i] = opt.FixedLimit()
			bounded = true
		case len(p.Limits) == 2:
			limits[i] = opt.Bounded(p.Limits[0], p.Limits[1])
			bounded = true
		}
	}
	if !bounded {
		return nil
	}
	return limits
}

// StatisticKind parses the configured statistic.
func (c *Config) StatisticKind() opt.Statistic {
	stat, _ := opt.ParseStatistic(c.Statistic)
	return stat
}

// Selector builds the backend selector from the configured backend list.
func (c *Config) Selector() (*opt.Selector, error) {
	return opt.SelectorFromNames(c.Backends)
}

// Settings returns the backend settings for the single fit. Stochastic backends
// draw from bootstrap.seed, or from the wall clock when it is 0.
func (c *Config) Settings(verbosity int) opt.Settings {
	seed := c.Bootstrap.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return opt.Settings{
		Tolerance: c.Tolerance,
		Verbosity: verbosity,
		Rand:      rand.New(rand.NewSource(seed)),
	}
}

// BootstrapSettings returns the engine configuration.
func (c *Config) BootstrapSettings() bootstrap.Config {
	policy, _ := bootstrap.ParseFailurePolicy(c.Bootstrap.FailurePolicy)
	return bootstrap.Config{
		Iterations:    c.Bootstrap.Iterations,
		Tolerance:     c.Tolerance,
		Statistic:     c.StatisticKind(),
		Seed:          c.Bootstrap.Seed,
		Workers:       c.Bootstrap.Workers,
		FailurePolicy: policy,
		MaxRetries:    c.Bootstrap.MaxRetries,
	}
}

// BuildModel loads the profile and constructs the fit-statistic model.
func (c *Config) BuildModel() (*fit.ProfileModel, error) {
	fn, err := fit.LookupFunction(c.Model)
	if err != nil {
		return nil, err
	}
	data, err := fit.LoadData(c.DataPath())
	if err != nil {
		return nil, err
	}
	return fit.NewProfileModel(fn, data, fit.ModelConfig{
		Statistic:   c.StatisticKind(),
		ModelErrors: c.ModelErrors,
		MaxThreads:  c.MaxThreads,
	})
}
