package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressRangeContains(t *testing.T) {
	r := AddressRange{Start: 0x1000, End: 0x2000}

	tests := []struct {
		addr uintptr
		want bool
	}{
		{0x0fff, false},
		{0x1000, true},
		{0x1fff, true},
		{0x2000, false},
		{0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Contains(tt.addr), "addr %#x", tt.addr)
	}
}

func TestAddressRangeZero(t *testing.T) {
	var r AddressRange
	assert.True(t, r.IsZero())
	assert.False(t, r.Contains(0))
	assert.Equal(t, uintptr(0), r.Size())

	r = AddressRange{Start: 10, End: 10}
	assert.True(t, r.IsZero())
}

func TestAddressRangeOverlaps(t *testing.T) {
	a := AddressRange{Start: 0x1000, End: 0x2000}
	assert.True(t, a.Overlaps(AddressRange{Start: 0x1800, End: 0x2800}))
	assert.False(t, a.Overlaps(AddressRange{Start: 0x2000, End: 0x3000}))
	assert.False(t, a.Overlaps(AddressRange{}))
}

func TestCodePointer(t *testing.T) {
	fn := func() {}
	assert.NotZero(t, CodePointer.Tag(fn))
	assert.Zero(t, CodePointer.Tag(nil))
	assert.Zero(t, CodePointer.Tag(42))

	var nilFn func()
	assert.Zero(t, CodePointer.Tag(nilFn))
}

func TestSupported(t *testing.T) {
	versions := []int{V1, V2, V3}
	assert.True(t, Supported(V2, versions))
	assert.False(t, Supported(4, versions))
	assert.False(t, Supported(V1, nil))
}
