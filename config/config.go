// Package config handles the gdext.toml extension configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "gdext.toml"

// Config is a gdext.toml extension configuration.
type Config struct {
	Extension Extension `toml:"extension"`
	Log       Log       `toml:"log"`
	Runtime   Runtime   `toml:"runtime"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

// Extension describes the extension library.
type Extension struct {
	Name         string `toml:"name"`
	MinimumLevel string `toml:"minimum_level"`
}

// Log configures the zap logger installed at initialization.
type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Runtime configures boundary behaviour.
type Runtime struct {
	DebugAsserts   bool   `toml:"debug_asserts"`
	VirtualFailure string `toml:"virtual_failure"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Extension: Extension{Name: "extension", MinimumLevel: "scene"},
		Log:       Log{Level: "info"},
		Runtime:   Runtime{VirtualFailure: "default"},
	}
}

// Load parses the file at path on top of the defaults. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindNotFound, err, "cannot read "+path)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, errors.New(errors.PhaseInit, errors.KindOf(err)).Path(path).Cause(err).Build()
	}
	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "cannot resolve "+path)
	}
	return c, nil
}

// Parse decodes a configuration document on top of the defaults.
func Parse(doc string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(doc, c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidData, err, "parse error")
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseInit, "unknown keys: "+strings.Join(names, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a gdext.toml file, then loads
// it. It returns nil when no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "cannot resolve "+startDir)
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the enumerated values.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Extension.Name == "" {
		return errors.InvalidInput(errors.PhaseInit, "extension.name must not be empty")
	}
	return nil
}

// Level returns the minimum initialization level.
func (c *Config) Level() (abi.InitializationLevel, error) {
	for l := abi.LevelCore; l < abi.LevelMax; l++ {
		if l.String() == c.Extension.MinimumLevel {
			return l, nil
		}
	}
	return 0, invalid("extension.minimum_level", c.Extension.MinimumLevel, "core, servers, scene, editor")
}

// LogLevel returns the zap level.
func (c *Config) LogLevel() (zapcore.Level, error) {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
			return 0, err
		}
		return l, nil
	}
	return 0, invalid("log.level", c.Log.Level, "debug, info, warn, error")
}

// Policy returns the failure policy for virtual calls.
func (c *Config) Policy() (dispatch.Policy, error) {
	p, ok := dispatch.ParsePolicy(c.Runtime.VirtualFailure)
	if !ok {
		return 0, invalid("runtime.virtual_failure", c.Runtime.VirtualFailure, "default, terminate")
	}
	return p, nil
}

// ZapConfig returns the logger configuration.
func (c *Config) ZapConfig() zap.Config {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if l, err := c.LogLevel(); err == nil {
		zc.Level = zap.NewAtomicLevelAt(l)
	}
	return zc
}

func invalid(key, value, allowed string) error {
	return errors.New(errors.PhaseInit, errors.KindInvalidInput).
		Path(key).
		Value(value).
		Detail("%s = %q, want one of %s", key, value, allowed).
		Build()
}
