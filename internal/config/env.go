package config

import (
	"fmt"
	"sort"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ADDONHOST_"

type envSetter func(c *Config, v string) error

// envMapping maps environment variables to settings.
var envMapping = map[string]envSetter{
	"ADDONS_DIR":              func(c *Config, v string) error { c.Addons.Dir = v; return nil },
	"ADDONS_POLICY":           func(c *Config, v string) error { c.Addons.Policy = v; return nil },
	"ADDONS_LOAD_NEW":         func(c *Config, v string) error { return setBool(&c.Addons.LoadNew, v) },
	"ADDONS_QUIESCENCE":       func(c *Config, v string) error { return c.Addons.Quiescence.UnmarshalText([]byte(v)) },
	"ADDONS_WORKERS":          func(c *Config, v string) error { return setInt(&c.Addons.Workers, v) },
	"ADDONS_NATIVE":           func(c *Config, v string) error { return setBool(&c.Addons.Native, v) },
	"HOST_BUILD":              func(c *Config, v string) error { return setUint32(&c.Host.Build, v) },
	"HOST_STATE_FILE":         func(c *Config, v string) error { c.Host.StateFile = v; return nil },
	"UPDATE_ENABLED":          func(c *Config, v string) error { return setBool(&c.Update.Enabled, v) },
	"UPDATE_SCHEDULE":         func(c *Config, v string) error { c.Update.Schedule = v; return nil },
	"UPDATE_GITHUB_API":       func(c *Config, v string) error { c.Update.GitHubAPI = v; return nil },
	"LOG_LEVEL":               func(c *Config, v string) error { c.Log.Level = v; return nil },
	"LOG_FORMAT":              func(c *Config, v string) error { c.Log.Format = v; return nil },
	"LOG_FILE":                func(c *Config, v string) error { c.Log.File = v; return nil },
	"CONTROL_LISTEN":          func(c *Config, v string) error { c.Control.Listen = v; return nil },
	"HOST_DISABLE_VOLATILE":   func(c *Config, v string) error { return setBool(&c.Host.DisableVolatileUntilUpdate, v) },
	"HOST_VOLATILE_THRESHOLD": func(c *Config, v string) error { return setUint32(&c.Host.VolatileThreshold, v) },
}

// ApplyEnv applies ADDONHOST_* overrides read through lookup. Empty values
// are treated as set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := envMapping[name](c, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setUint32(dst *uint32, v string) error {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return err
	}
	*dst = uint32(n)
	return nil
}
