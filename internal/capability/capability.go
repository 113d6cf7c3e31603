// Package capability holds the small value types shared between the addon
// manager, the module loaders and the subsystems that hold callbacks
// registered by addons.
package capability

import (
	"fmt"
	"reflect"
	"slices"
)

// API versions understood by the host.
const (
	V1 = 1
	V2 = 2
	V3 = 3

	// Latest is the newest capability table the host can hand out.
	Latest = V3
)

// AddressRange is a half-open range [Start, End) of addresses occupied by
// a mapped module. The zero value contains nothing.
type AddressRange struct {
	Start uintptr
	End   uintptr
}

// Contains reports whether addr lies within the range.
func (r AddressRange) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End
}

// IsZero reports whether the range is empty.
func (r AddressRange) IsZero() bool {
	return r.End <= r.Start
}

// Size returns the number of addresses covered.
func (r AddressRange) Size() uintptr {
	if r.IsZero() {
		return 0
	}
	return r.End - r.Start
}

// Overlaps reports whether two ranges share at least one address.
func (r AddressRange) Overlaps(o AddressRange) bool {
	if r.IsZero() || o.IsZero() {
		return false
	}
	return r.Start < o.End && o.Start < r.End
}

// String formats the range as [0xstart, 0xend).
func (r AddressRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Start, r.End)
}

// Tagger assigns the address recorded alongside a callback when a module
// registers it with a host subsystem. The address must fall inside the
// module's AddressRange for reference cleanup to find it.
type Tagger interface {
	Tag(fn any) uintptr
}

// TaggerFunc adapts a function to the Tagger interface.
type TaggerFunc func(fn any) uintptr

// Tag calls f(fn).
func (f TaggerFunc) Tag(fn any) uintptr {
	return f(fn)
}

// CodePointer tags callbacks with the entry address of the function value.
// Non-function values are tagged with 0, which no module range contains.
var CodePointer Tagger = TaggerFunc(codePointer)

func codePointer(fn any) uintptr {
	if fn == nil {
		return 0
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return v.Pointer()
}

// Supported reports whether version is in the list of host API versions.
func Supported(version int, versions []int) bool {
	return slices.Contains(versions, version)
}
