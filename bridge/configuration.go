package bridge

import (
	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/config"
)

// Level is a host initialization level.
type Level = abi.InitializationLevel

const (
	LevelCore    = abi.LevelCore
	LevelServers = abi.LevelServers
	LevelScene   = abi.LevelScene
	LevelEditor  = abi.LevelEditor
)

// Initializer runs when the host reaches a level.
type Initializer func(rt *Runtime, level Level) error

// Terminator runs when the host leaves a level.
type Terminator func(rt *Runtime, level Level)

// Configuration collects the settings of one library during Initialize.
type Configuration struct {
	cfg          *config.Config
	logger       *zap.Logger
	initializers []Initializer
	terminators  []Terminator
}

func newConfiguration() *Configuration {
	return &Configuration{cfg: config.Default()}
}

// Config returns the settings in effect.
func (c *Configuration) Config() *config.Config { return c.cfg }

// SetMinimumLevel sets the lowest level the extension is initialized at.
func (c *Configuration) SetMinimumLevel(l Level) {
	c.cfg.Extension.MinimumLevel = l.String()
}

// RegisterInitializer adds fn. Initializers run in registration order.
func (c *Configuration) RegisterInitializer(fn Initializer) {
	c.initializers = append(c.initializers, fn)
}

// RegisterTerminator adds fn. Terminators run in reverse registration
// order.
func (c *Configuration) RegisterTerminator(fn Terminator) {
	c.terminators = append(c.terminators, fn)
}

// LoadFile replaces the settings with the file at path.
func (c *Configuration) LoadFile(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// SetLogger installs l instead of a logger built from the settings.
func (c *Configuration) SetLogger(l *zap.Logger) {
	c.logger = l
}
