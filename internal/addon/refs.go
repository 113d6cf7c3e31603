package addon

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/capability"
)

// Leak is the count of references one subsystem still held.
type Leak struct {
	Subsystem string
	Count     uint32
}

// LeakReport lists the subsystems that still held references into a
// module when it was unloaded.
type LeakReport struct {
	Addon string
	Range capability.AddressRange
	Leaks []Leak
}

// Total returns the number of leaked references.
func (r LeakReport) Total() uint32 {
	var n uint32
	for _, l := range r.Leaks {
		n += l.Count
	}
	return n
}

// Err returns an error wrapping ErrReferenceLeak, or nil if nothing leaked.
func (r LeakReport) Err() error {
	if len(r.Leaks) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.Leaks))
	for _, l := range r.Leaks {
		parts = append(parts, fmt.Sprintf("%s: %d", l.Subsystem, l.Count))
	}
	return fmt.Errorf("%s %s: %w (%s)", r.Addon, r.Range, ErrReferenceLeak, strings.Join(parts, ", "))
}

// cleanupReferences asks every cleaner to drop references into rng. It
// must run while the module is still mapped. Leaks are advisory.
func (m *Manager) cleanupReferences(addon string, rng capability.AddressRange) LeakReport {
	report := LeakReport{Addon: addon, Range: rng}
	if rng.IsZero() {
		return report
	}
	for _, c := range m.cleaners {
		n := c.CleanupReferences(rng.Start, rng.End)
		if n == 0 {
			continue
		}
		report.Leaks = append(report.Leaks, Leak{Subsystem: c.Name(), Count: n})
		m.metrics.leak(c.Name(), n)
	}
	if err := report.Err(); err != nil {
		fields := logrus.Fields{"addon": addon, "range": rng.String(), "total": report.Total()}
		for _, l := range report.Leaks {
			fields["leak."+l.Subsystem] = l.Count
		}
		m.log.WithFields(fields).Warn("addon left references behind; removed them")
	}
	return report
}
