package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/loader"
	"github.com/dshills/addonhost/internal/update"
	"github.com/dshills/addonhost/internal/watcher"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "addonhost.toml"

// Config is the complete host configuration.
type Config struct {
	Addons  AddonsConfig  `toml:"addons"`
	Host    HostConfig    `toml:"host"`
	Update  UpdateConfig  `toml:"update"`
	Log     LogConfig     `toml:"log"`
	Control ControlConfig `toml:"control"`
}

// AddonsConfig configures discovery and the manager.
type AddonsConfig struct {
	// Dir is scanned for addon binaries.
	Dir string `toml:"dir"`

	// Policy is the load policy document. Empty means policy.json in Dir.
	Policy string `toml:"policy"`

	// LoadNew loads addons that have no policy entry yet.
	LoadNew bool `toml:"load_new"`

	// Quiescence is how long directory events must stop before a rescan.
	Quiescence Duration `toml:"quiescence"`

	// Workers bounds the background task pool.
	Workers int `toml:"workers"`

	// FrameInterval is how often the action queue is drained.
	FrameInterval Duration `toml:"frame_interval"`

	// CallTimeout bounds a single call into a script addon.
	CallTimeout Duration `toml:"call_timeout"`

	// Native enables loading Go plugin addons.
	Native bool `toml:"native"`
}

// HostConfig describes the host build the addons run against.
type HostConfig struct {
	// Build is the current host build number. Zero disables the volatile
	// check.
	Build uint32 `toml:"build"`

	// VolatileThreshold is the build jump that disables volatile addons.
	VolatileThreshold uint32 `toml:"volatile_threshold"`

	// DisableVolatileUntilUpdate lets disabled-until-update hold addons
	// back.
	DisableVolatileUntilUpdate bool `toml:"disable_volatile_until_update"`

	// StateFile remembers the build of the previous run. Empty means
	// state.toml in the addon directory.
	StateFile string `toml:"state_file"`
}

// UpdateConfig configures update checks.
type UpdateConfig struct {
	Enabled bool `toml:"enabled"`

	// Schedule is a cron expression for periodic checks of every addon.
	// Empty disables periodic checks.
	Schedule string `toml:"schedule"`

	Timeout     Duration `toml:"timeout"`
	Concurrency int      `toml:"concurrency"`
	CacheTTL    Duration `toml:"cache_ttl"`
	Retries     uint64   `toml:"retries"`

	// GitHubAPI is the GitHub API base URL.
	GitHubAPI string `toml:"github_api"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a logrus level name.
	Level string `toml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format"`

	// File receives log output instead of stderr when set.
	File string `toml:"file"`
}

// ControlConfig configures the local control server.
type ControlConfig struct {
	// Listen is the server address. Empty disables the server.
	Listen string `toml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	ac := addon.DefaultConfig()
	return &Config{
		Addons: AddonsConfig{
			Dir:           ac.Directory,
			LoadNew:       ac.LoadNewAddons,
			Quiescence:    Duration(watcher.DefaultQuiescence),
			Workers:       ac.Workers,
			FrameInterval: Duration(16 * time.Millisecond),
			CallTimeout:   Duration(loader.DefaultCallTimeout),
			Native:        true,
		},
		Host: HostConfig{
			VolatileThreshold:          addon.DefaultVolatileBuildThreshold,
			DisableVolatileUntilUpdate: ac.DisableVolatileUntilUpdate,
		},
		Update: UpdateConfig{
			Enabled:     ac.UpdatesEnabled,
			Schedule:    "@every 6h",
			Timeout:     Duration(ac.UpdateTimeout),
			Concurrency: ac.UpdateConcurrency,
			CacheTTL:    Duration(update.DefaultCacheTTL),
			Retries:     update.DefaultRetries,
			GitHubAPI:   update.DefaultGitHubAPI,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies ADDONHOST_* environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := cfg.decode(path, data); err != nil {
				return nil, err
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(source string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		return pe
	}
	return nil
}

// Validate checks every setting and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(path, msg string, v any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}

	if c.Addons.Dir == "" {
		bad("addons.dir", "must not be empty", c.Addons.Dir)
	}
	if c.Addons.Workers < 1 {
		bad("addons.workers", "must be at least 1", c.Addons.Workers)
	}
	if c.Addons.Quiescence < 0 {
		bad("addons.quiescence", "must not be negative", c.Addons.Quiescence)
	}
	if c.Addons.FrameInterval <= 0 {
		bad("addons.frame_interval", "must be positive", c.Addons.FrameInterval)
	}
	if c.Addons.CallTimeout < 0 {
		bad("addons.call_timeout", "must not be negative", c.Addons.CallTimeout)
	}
	if c.Update.Concurrency < 1 {
		bad("update.concurrency", "must be at least 1", c.Update.Concurrency)
	}
	if c.Update.Timeout < 0 {
		bad("update.timeout", "must not be negative", c.Update.Timeout)
	}
	if c.Update.Schedule != "" {
		if _, err := cron.ParseStandard(c.Update.Schedule); err != nil {
			bad("update.schedule", err.Error(), c.Update.Schedule)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		bad("log.level", "unknown level", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		bad("log.format", `must be "text" or "json"`, c.Log.Format)
	}
	if c.Control.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Control.Listen); err != nil {
			bad("control.listen", err.Error(), c.Control.Listen)
		}
	}
	return errors.Join(errs...)
}

// PolicyPath returns the load policy document path.
func (c *Config) PolicyPath() string {
	if c.Addons.Policy != "" {
		return c.Addons.Policy
	}
	return filepath.Join(c.Addons.Dir, "policy.json")
}

// StatePath returns the state file path.
func (c *Config) StatePath() string {
	if c.Host.StateFile != "" {
		return c.Host.StateFile
	}
	return filepath.Join(c.Addons.Dir, "state.toml")
}

// ManagerConfig derives the addon manager configuration. lastBuild is the
// host build recorded by the previous run.
func (c *Config) ManagerConfig(lastBuild uint32) addon.Config {
	ac := addon.DefaultConfig()
	ac.Directory = c.Addons.Dir
	ac.Quiescence = c.Addons.Quiescence.Std()
	ac.Workers = c.Addons.Workers
	ac.LoadNewAddons = c.Addons.LoadNew
	ac.UpdatesEnabled = c.Update.Enabled
	ac.UpdateTimeout = c.Update.Timeout.Std()
	ac.UpdateConcurrency = c.Update.Concurrency
	ac.DisableVolatileUntilUpdate = c.Host.DisableVolatileUntilUpdate
	ac.HostBuildAdvanced = addon.BuildAdvanced(lastBuild, c.Host.Build, c.Host.VolatileThreshold)
	return ac
}
