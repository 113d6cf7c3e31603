package config

import (
	"fmt"
	"strings"

	"github.com/dshills/addonhost/internal/addon"
)

// ParseSignatureList parses a comma or space separated list of addon
// signatures, as given to the -addons flag. An empty list yields a non-nil
// empty slice, which pins the session to no addons at all.
func ParseSignatureList(s string) ([]uint32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]uint32, 0, len(fields))
	seen := make(map[uint32]bool, len(fields))
	for _, f := range fields {
		sig, err := addon.ParseSignature(f)
		if err != nil {
			return nil, fmt.Errorf("addon signature %q: %w", f, err)
		}
		if !seen[sig] {
			seen[sig] = true
			out = append(out, sig)
		}
	}
	return out, nil
}
