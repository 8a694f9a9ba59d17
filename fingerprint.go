package hotlib

import (
	"os"

	"github.com/cespare/xxhash/v2"
)

// fingerprintFile hashes the whole content of f. The hash is not
// cryptographic, it only gates duplicate change signals. An unreadable file
// hashes to 0.
func fingerprintFile(f string) uint64 {
	b, err := os.ReadFile(f)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}
