package addon

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// HashFile returns the xxhash64 digest of the file's contents.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
