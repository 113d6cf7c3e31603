package input

import (
	"errors"
	"fmt"
	"strings"
)

// Parse errors.
var (
	ErrEmptyCombo   = errors.New("empty key combination")
	ErrInvalidCombo = errors.New("invalid key combination")
)

// Modifier is a bit set of modifier keys.
type Modifier uint8

// Modifier keys.
const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
)

// Has reports whether m includes mod.
func (m Modifier) Has(mod Modifier) bool {
	return m&mod != 0
}

// Combo is a key combination such as Ctrl+Shift+K.
type Combo struct {
	Mods Modifier
	Key  string
}

// IsZero reports whether the combination is unset.
func (c Combo) IsZero() bool {
	return c.Key == ""
}

// String formats the combination in canonical Ctrl+Alt+Shift+Key order.
func (c Combo) String() string {
	if c.IsZero() {
		return "(null)"
	}
	var parts []string
	if c.Mods.Has(ModCtrl) {
		parts = append(parts, "Ctrl")
	}
	if c.Mods.Has(ModAlt) {
		parts = append(parts, "Alt")
	}
	if c.Mods.Has(ModShift) {
		parts = append(parts, "Shift")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}

// ParseCombo parses "Ctrl+Shift+K" style specifications.
// "(null)" parses to the unset combination.
func ParseCombo(spec string) (Combo, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Combo{}, ErrEmptyCombo
	}
	if spec == "(null)" {
		return Combo{}, nil
	}

	parts := strings.Split(spec, "+")
	var c Combo
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return Combo{}, fmt.Errorf("%w: %q", ErrInvalidCombo, spec)
		}
		if i == len(parts)-1 {
			c.Key = strings.ToUpper(p)
			break
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			c.Mods |= ModCtrl
		case "alt":
			c.Mods |= ModAlt
		case "shift":
			c.Mods |= ModShift
		default:
			return Combo{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidCombo, p)
		}
	}
	return c, nil
}
