package addon

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a four part addon version.
type Version struct {
	Major    uint16 `json:"major" yaml:"major"`
	Minor    uint16 `json:"minor" yaml:"minor"`
	Build    uint16 `json:"build" yaml:"build"`
	Revision uint16 `json:"revision" yaml:"revision"`
}

// String formats the version as major.minor.build.revision.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Semver formats the version as a semantic version with a v prefix. The
// revision is dropped when zero and otherwise kept as build metadata.
func (v Version) Semver() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Build)
	if v.Revision != 0 {
		s += "+" + strconv.Itoa(int(v.Revision))
	}
	return s
}

// Compare returns -1, 0 or +1 comparing v with o.
func (v Version) Compare(o Version) int {
	a := [4]uint16{v.Major, v.Minor, v.Build, v.Revision}
	b := [4]uint16{o.Major, o.Minor, o.Build, o.Revision}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// IsZero reports whether every component is zero.
func (v Version) IsZero() bool {
	return v == Version{}
}

// ParseVersion parses "1.2.3.4", "1.2.3" or "v1.2" style strings. Missing
// components are zero.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, fmt.Errorf("version %q has more than four parts", s)
	}
	var out [4]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("version %q: %w", s, err)
		}
		out[i] = uint16(n)
	}
	return Version{Major: out[0], Minor: out[1], Build: out[2], Revision: out[3]}, nil
}

// Flags modify how the manager treats an addon.
type Flags uint32

const (
	// FlagHotloadDisabled keeps the addon locked once loaded.
	FlagHotloadDisabled Flags = 1 << iota

	// FlagVolatile marks addons that depend on host internals and break
	// across large host updates.
	FlagVolatile
)

// Has reports whether f includes flag.
func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// UpdateProvider selects where update checks look.
type UpdateProvider int

const (
	// ProviderNone disables update checks.
	ProviderNone UpdateProvider = iota

	// ProviderGitHub checks the releases of a GitHub repository.
	ProviderGitHub

	// ProviderDirect fetches a version manifest from UpdateLink.
	ProviderDirect
)

// String returns the provider name.
func (p UpdateProvider) String() string {
	switch p {
	case ProviderNone:
		return "none"
	case ProviderGitHub:
		return "github"
	case ProviderDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// ParseUpdateProvider maps a provider name to its value.
func ParseUpdateProvider(s string) UpdateProvider {
	switch strings.ToLower(s) {
	case "github":
		return ProviderGitHub
	case "direct":
		return ProviderDirect
	default:
		return ProviderNone
	}
}

// LoadFunc is the module's load entry point. api is the capability table
// for the requested API version.
type LoadFunc func(api any) error

// UnloadFunc is the module's unload entry point.
type UnloadFunc func() error

// Definition describes an addon. The manager keeps its own copy that stays
// valid after the module is unmapped.
type Definition struct {
	Signature   uint32
	APIVersion  int
	Name        string
	Version     Version
	Author      string
	Description string

	Load   LoadFunc
	Unload UnloadFunc

	Flags      Flags
	Provider   UpdateProvider
	UpdateLink string
}

// HasMinimumRequirements reports whether the definition can be loaded.
// Unload may be absent only when hotloading is disabled.
func (d *Definition) HasMinimumRequirements() bool {
	if d == nil {
		return false
	}
	if d.Signature == 0 || d.Name == "" || d.Author == "" || d.Description == "" {
		return false
	}
	if d.Load == nil {
		return false
	}
	if d.Unload == nil && !d.Flags.Has(FlagHotloadDisabled) {
		return false
	}
	return true
}

// Hotloadable reports whether the addon can be unloaded at runtime.
func (d *Definition) Hotloadable() bool {
	return d != nil && d.Unload != nil && !d.Flags.Has(FlagHotloadDisabled)
}

// Clone returns an owned copy. Strings are copied so no byte of the copy
// aliases memory of the module it came from.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.Name = strings.Clone(d.Name)
	c.Author = strings.Clone(d.Author)
	c.Description = strings.Clone(d.Description)
	c.UpdateLink = strings.Clone(d.UpdateLink)
	return &c
}

// SignatureString formats a signature as 0x%08X.
func SignatureString(sig uint32) string {
	return fmt.Sprintf("0x%08X", sig)
}

// ParseSignature parses a hexadecimal (0x prefixed) or decimal signature.
func ParseSignature(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid signature %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid signature %q: zero", s)
	}
	return uint32(n), nil
}
