// Package config loads bridge settings from an optional YAML file and then
// applies PCGBRIDGE_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/chazu/pcgbridge/pkg/build"
	"github.com/chazu/pcgbridge/pkg/geom"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PCGBRIDGE_"

// Config holds the bridge settings.
type Config struct {
	// AttributePrefix selects exported point attributes. Empty exports every
	// non-intrinsic point and detail attribute.
	AttributePrefix *string `yaml:"attribute_prefix" env:"ATTRIBUTE_PREFIX"`
	// Basis is "unreal" or "identity".
	Basis string `yaml:"basis" env:"BASIS"`
	// UnitScale multiplies positions after the basis swap.
	UnitScale float64 `yaml:"unit_scale" env:"UNIT_SCALE"`
	// GateParts skips parts without the output gate attribute.
	GateParts bool `yaml:"gate_parts" env:"GATE_PARTS"`
	// UploadRotAndScale sends spline control point rotations and scales
	// upstream in feedback mode.
	UploadRotAndScale bool `yaml:"upload_rot_and_scale" env:"UPLOAD_ROT_AND_SCALE"`

	LogLevel      string        `yaml:"log_level" env:"LOG_LEVEL"`
	ScriptTimeout time.Duration `yaml:"script_timeout" env:"SCRIPT_TIMEOUT"`
	// Parallelism bounds how many nodes recook at once. Zero is unbounded.
	Parallelism int `yaml:"parallelism" env:"PARALLELISM"`
	// Cells is the polygonize resolution for scripted solids.
	Cells int `yaml:"cells" env:"CELLS"`
}

// Default returns the built-in settings.
func Default() Config {
	prefix := build.DefaultPrefix
	return Config{
		AttributePrefix:   &prefix,
		Basis:             geom.BasisUnreal.String(),
		UnitScale:         geom.UnrealConversion.UnitScale,
		UploadRotAndScale: true,
		LogLevel:          "info",
		ScriptTimeout:     5 * time.Second,
		Parallelism:       4,
		Cells:             64,
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error
	if _, err := geom.ParseBasis(c.Basis); err != nil {
		errs = append(errs, err)
	}
	if c.UnitScale <= 0 {
		errs = append(errs, fmt.Errorf("unit_scale must be positive, got %v", c.UnitScale))
	}
	if c.ScriptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("script_timeout must be positive, got %s", c.ScriptTimeout))
	}
	if c.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism))
	}
	if c.Cells < 0 {
		errs = append(errs, fmt.Errorf("cells must not be negative, got %d", c.Cells))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Prefix returns the attribute prefix, falling back to the default.
func (c Config) Prefix() string {
	if c.AttributePrefix == nil {
		return build.DefaultPrefix
	}
	return *c.AttributePrefix
}

// Conversion returns the coordinate conversion the settings describe.
func (c Config) Conversion() (geom.Conversion, error) {
	b, err := geom.ParseBasis(c.Basis)
	if err != nil {
		return geom.Conversion{}, fmt.Errorf("config: %w", err)
	}
	return geom.Conversion{Basis: b, UnitScale: c.UnitScale}, nil
}
