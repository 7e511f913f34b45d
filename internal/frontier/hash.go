package frontier

import (
	"fmt"

	"github.com/OneOfOne/xxhash"
)

// URLHash returns the xxHash32 (seed 0) digest of a canonical URL as eight
// lowercase hex digits. The input is hashed verbatim; callers canonicalize first.
func URLHash(canonicalURL string) string {
	return fmt.Sprintf("%08x", xxhash.Checksum32([]byte(canonicalURL)))
}
