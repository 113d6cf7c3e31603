package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dshills/addonhost/internal/capability"
)

// parseMaps returns the span of every mapping of path in a
// /proc/<pid>/maps listing.
func parseMaps(r io.Reader, path string) (capability.AddressRange, error) {
	var rng capability.AddressRange
	found := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		// start-end perms offset dev inode pathname
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 || strings.Join(fields[5:], " ") != path {
			continue
		}
		start, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		s, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			return capability.AddressRange{}, fmt.Errorf("maps line %q: %w", sc.Text(), err)
		}
		e, err := strconv.ParseUint(end, 16, 64)
		if err != nil {
			return capability.AddressRange{}, fmt.Errorf("maps line %q: %w", sc.Text(), err)
		}
		if !found || uintptr(s) < rng.Start {
			rng.Start = uintptr(s)
		}
		if !found || uintptr(e) > rng.End {
			rng.End = uintptr(e)
		}
		found = true
	}
	if err := sc.Err(); err != nil {
		return capability.AddressRange{}, err
	}
	if !found {
		return capability.AddressRange{}, fmt.Errorf("%s: %w", path, ErrNotMapped)
	}
	return rng, nil
}
